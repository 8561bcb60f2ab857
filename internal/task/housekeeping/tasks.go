package housekeeping

import (
	"context"
	"time"

	"jobsched/internal/storage"
	"jobsched/internal/task/engine"
	"jobsched/internal/task/scheduler"
	logx "jobsched/pkg/logx"
)

const (
	StatusReportName = "status_report"
	CompactName      = "store_compact"
)

// StatusSource provides the numbers the status report logs.
type StatusSource interface {
	Snapshot() scheduler.Snapshot
}

// PoolSource provides worker pool numbers for the status report.
type PoolSource interface {
	Snapshot() engine.Snapshot
}

// StatusReport logs one line summarizing scheduler and pool state.
func StatusReport(sched StatusSource, pool PoolSource, log logx.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		s := sched.Snapshot()
		fields := []logx.Field{
			logx.String("state", s.State),
			logx.Int("queued", s.QueueLen),
			logx.Uint64("dispatched", s.Dispatched),
			logx.Uint64("dispatch_failed", s.DispatchFailed),
			logx.Uint64("skipped_late", s.SkippedLate),
			logx.Uint64("sidelined", s.Sidelined),
			logx.Uint64("deleted", s.Deleted),
			logx.Uint64("loop_restarts", s.LoopRestarts),
		}
		if !s.NextDue.IsZero() {
			fields = append(fields, logx.Time("next_due", s.NextDue))
		}
		if pool != nil {
			p := pool.Snapshot()
			fields = append(fields,
				logx.Int("pool_in_flight", p.InFlight),
				logx.Int("pool_queue", p.QueueLen),
				logx.Uint64("pool_dropped", p.Dropped),
			)
		}
		log.Info("scheduler status", fields...)
		return nil
	}
}

// Compact runs store compaction and logs how long it took.
func Compact(c storage.Compactor, log logx.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		start := time.Now()
		if err := c.Compact(ctx); err != nil {
			log.Warn("store compaction failed", logx.Err(err))
			return err
		}
		log.Debug("store compacted", logx.Duration("took", time.Since(start)))
		return nil
	}
}

// Register (re)installs the built-in tasks for cfg. Tasks whose schedule is
// empty, or compaction for a store that does not support it, are removed.
func (s *Service) Register(cfg Config, sched StatusSource, pool PoolSource, store storage.Store) error {
	if cfg.StatusReport == "" {
		s.Remove(StatusReportName)
	} else if err := s.AddSchedule(StatusReportName, cfg.StatusReport, 10*time.Second, StatusReport(sched, pool, s.log)); err != nil {
		return err
	}

	c, ok := store.(storage.Compactor)
	if !ok || cfg.Compact == "" {
		s.Remove(CompactName)
		return nil
	}
	return s.AddSchedule(CompactName, cfg.Compact, time.Minute, Compact(c, s.log))
}
