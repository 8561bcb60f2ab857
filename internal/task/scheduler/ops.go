package scheduler

import (
	"context"
	"errors"
	"time"

	"jobsched/internal/job"
	"jobsched/internal/storage"
	logx "jobsched/pkg/logx"
)

// AddJob queues the job's next instance. A job with nothing left to run is
// deleted, unless it is sidelined.
func (e *Engine) AddJob(ctx context.Context, j *job.Job) {
	if j == nil {
		return
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.addJobLocked(ctx, j)
}

func (e *Engine) addJobLocked(ctx context.Context, j *job.Job) {
	if !j.Recurring() && e.q.ContainsName(j.Name) {
		e.log.Error("one-time job already queued; refusing second instance", logx.String("job", j.Name))
		return
	}

	inst := j.NextInstance(e.now(), e.firstRunGrace())
	if inst == nil {
		if j.Sidelined() {
			e.log.Debug("job sidelined; not scheduling", logx.String("job", j.Name))
			return
		}
		e.deleteJobLocked(ctx, j, "exhausted")
		return
	}

	e.q.Push(inst)
	e.ensureRunning()
	e.log.Debug("job scheduled", logx.String("job", j.Name), logx.Time("at", inst.TimeToRun))
	e.jobEvent("job.scheduled", inst, JobEvent{})
}

// firstRunGrace is how far in the past a new job's first point may lie and
// still be queued. It matches the lateness bound so a point that went by
// while the job was being created is not lost.
func (e *Engine) firstRunGrace() time.Duration {
	if e.cfg.MaxLateness > 0 {
		return e.cfg.MaxLateness
	}
	return DefaultMaxLateness
}

// RemoveJob drops every queued instance of the named job. The store is not
// touched; an in-flight dispatch still reports its outcome.
func (e *Engine) RemoveJob(name string) int {
	e.opMu.Lock()
	n := e.q.RemoveByName(name)
	e.opMu.Unlock()
	if n > 0 {
		e.signal()
		e.log.Debug("job removed from queue", logx.String("job", name), logx.Int("instances", n))
	}
	return n
}

func (e *Engine) deleteJobLocked(ctx context.Context, j *job.Job, reason string) {
	e.q.RemoveByName(j.Name)
	if e.store != nil {
		sctx, cancel := e.storeCtx(ctx)
		err := e.store.Delete(sctx, j)
		cancel()
		if err != nil {
			e.log.Error("job delete failed", logx.String("job", j.Name), logx.Err(err))
			return
		}
	}
	e.deleted.Add(1)
	e.log.Info("job deleted", logx.String("job", j.Name), logx.String("reason", reason))
	e.publish("job.deleted", JobEvent{Name: j.Name, Kind: j.Kind, Reason: reason})
}

// HandleOutcome applies an invocation outcome to the job's sideline state.
// It is safe to call from any goroutine.
func (e *Engine) HandleOutcome(inst *job.Instance, out job.Outcome) {
	if inst == nil || inst.Job == nil {
		return
	}
	j := inst.Job
	ev := JobEvent{Outcome: string(out.Kind), Status: out.Status}
	if out.Err != nil {
		ev.Error = out.Err.Error()
	}
	e.jobEvent("job.outcome", inst, ev)

	if j.Sidelined() {
		e.log.Debug("outcome ignored: job sidelined", logx.String("job", j.Name), logx.String("outcome", string(out.Kind)))
		return
	}

	ctx := context.Background()
	switch out.Kind {
	case job.OutcomeNotFound:
		if !j.CanSideline() {
			e.log.Info("target not found for one-time job; ignored", logx.String("job", j.Name), logx.Int("status", out.Status))
			return
		}
		if j.RecordNotFound(e.cfg.SidelineThreshold) {
			e.quarantine(ctx, j, "target not found")
			return
		}
		e.log.Debug("target not found",
			logx.String("job", j.Name),
			logx.Int("status", out.Status),
			logx.Int("count", j.NotFoundCount()),
			logx.Int("threshold", e.cfg.SidelineThreshold),
		)
		e.persist(ctx, j)
	default:
		if out.Kind == job.OutcomeFailure {
			e.log.Debug("job invocation failed", logx.String("job", j.Name), logx.Int("status", out.Status), logx.Err(out.Err))
		}
		if j.ResetNotFound() {
			e.persist(ctx, j)
		}
	}
}

// quarantine finishes sidelining a job whose flag is already set: its queued
// instances are dropped and the new state is persisted.
func (e *Engine) quarantine(ctx context.Context, j *job.Job, reason string) {
	n := e.q.RemoveByName(j.Name)
	e.signal()
	e.sidelined.Add(1)
	e.log.Warn("job sidelined",
		logx.String("job", j.Name),
		logx.String("reason", reason),
		logx.Int("not_found", j.NotFoundCount()),
		logx.Int("dropped_instances", n),
	)
	e.publish("job.sidelined", JobEvent{Name: j.Name, Kind: j.Kind, Reason: reason})
	e.persist(ctx, j)
}

func (e *Engine) persist(ctx context.Context, j *job.Job) {
	if e.store == nil {
		return
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if _, err := e.store.Save(sctx, j); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			e.log.Debug("job gone from store; state not saved", logx.String("job", j.Name))
			return
		}
		e.log.Error("job save failed", logx.String("job", j.Name), logx.Err(err))
	}
}
