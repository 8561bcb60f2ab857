package app

import (
	"context"
	"fmt"

	"jobsched/internal/config"
	"jobsched/internal/jobs"
	logx "jobsched/pkg/logx"
)

// restoreJobs re-schedules persisted jobs, then creates the jobs declared in
// the config file. Creation is idempotent by name, so a declared job that was
// restored is left as stored.
func (a *App) restoreJobs(ctx context.Context, declared []config.JobConfig) error {
	n, err := a.jobs.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore jobs: %w", err)
	}
	a.log.Info("jobs restored", logx.Int("count", n))

	failed := 0
	for _, jc := range declared {
		if err := a.createDeclared(ctx, jc); err != nil {
			failed++
			a.log.Error("configured job rejected", logx.String("job", jc.Name), logx.Err(err))
		}
	}
	if len(declared) > 0 {
		a.log.Info("configured jobs applied", logx.Int("count", len(declared)-failed), logx.Int("failed", failed))
	}
	return nil
}

func (a *App) createDeclared(ctx context.Context, jc config.JobConfig) error {
	switch jc.Kind {
	case "scheduled":
		_, err := a.jobs.CreateScheduled(ctx, jobs.ScheduledRequest{
			Name:     jc.Name,
			Method:   jc.Method,
			URL:      jc.URL,
			Body:     jc.Body,
			Headers:  jc.Headers,
			Interval: jc.Interval,
			Start:    jc.Start,
			End:      jc.End,
		})
		return err
	case "one_time":
		_, err := a.jobs.CreateOneTime(ctx, jobs.OneTimeRequest{
			Name:        jc.Name,
			Method:      jc.Method,
			URL:         jc.URL,
			Body:        jc.Body,
			Headers:     jc.Headers,
			TriggerTime: jc.TriggerTime,
		})
		return err
	default:
		return fmt.Errorf("unknown job kind %q", jc.Kind)
	}
}
