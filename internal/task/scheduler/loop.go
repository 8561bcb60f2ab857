package scheduler

import (
	"context"
	"time"

	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

// loop is the control loop. It returns nil on halt or shutdown; anything else
// (including a panic) ends this loop instance and the supervisor starts a
// replacement over the same queue.
func (e *Engine) loop(ctx context.Context) error {
	for {
		if !e.awaitRunning(ctx) {
			return nil
		}

		inst := e.q.Peek()
		if inst == nil {
			e.pauseIfIdle()
			continue
		}

		// An instance can outlive its job's sidelining when an outcome lands
		// between reschedule and push.
		if inst.Job.Sidelined() {
			e.q.PopIf(inst)
			continue
		}
		if inst.ShouldBeSidelined(e.cfg.SidelineThreshold) {
			if e.q.PopIf(inst) && inst.Job.Sideline() {
				e.quarantine(ctx, inst.Job, "threshold reached before dispatch")
			}
			continue
		}

		now := e.now()
		if !inst.TimeToRun.After(now) {
			e.runSingleJob(ctx, now)
			continue
		}

		if !e.sleep(ctx, inst.TimeToRun.Sub(now)) {
			return nil
		}
	}
}

// awaitRunning blocks while paused. It reports false once the engine is
// halted or ctx is done.
func (e *Engine) awaitRunning(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		e.mu.Lock()
		st := e.state
		e.mu.Unlock()

		switch st {
		case Running:
			return true
		case Halted:
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-e.wake:
		}
	}
}

// pauseIfIdle moves Running to Paused when the queue is still empty. The
// emptiness check happens under mu so an arrival cannot be lost between the
// loop's peek and the transition.
func (e *Engine) pauseIfIdle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Running && e.q.Len() == 0 {
		e.state = Paused
		e.log.Trace("queue empty; pausing")
	}
}

// sleep waits for d or a wake signal. It reports false when ctx is done.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-e.wake:
	case <-t.C:
	}
	return true
}

// runSingleJob dequeues the due head, dispatches it (or skips it when too
// late) and reschedules or deletes its job. The reschedule also runs when
// dispatch panics, before the supervisor sees the panic.
func (e *Engine) runSingleJob(ctx context.Context, now time.Time) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	inst := e.q.PopDue(now)
	if inst == nil {
		return
	}
	j := inst.Job
	defer func() {
		if j.Recurring() {
			e.addJobLocked(ctx, j)
			return
		}
		e.deleteJobLocked(ctx, j, "fired")
	}()

	if late := inst.Lateness(now); e.cfg.MaxLateness > 0 && late > e.cfg.MaxLateness {
		e.skipLate(inst, late)
		return
	}
	e.dispatch(inst, now)
}

func (e *Engine) dispatch(inst *job.Instance, now time.Time) {
	e.dispatched.Add(1)
	e.log.Debug("job dispatched",
		logx.String("job", inst.Name()),
		logx.Time("due", inst.TimeToRun),
		logx.Duration("lateness", inst.Lateness(now)),
	)
	e.jobEvent("job.dispatched", inst, JobEvent{Lateness: inst.Lateness(now)})

	if e.exec == nil {
		return
	}
	err := e.exec.ExecuteAsync(inst, func(out job.Outcome) { e.HandleOutcome(inst, out) })
	if err == nil {
		return
	}
	e.dispatchFailed.Add(1)
	e.log.Warn("job dispatch failed", logx.String("job", inst.Name()), logx.Err(err))
	e.jobEvent("job.dispatch_failed", inst, JobEvent{Error: err.Error()})
	e.HandleOutcome(inst, job.Failure(0, err))
}

func (e *Engine) skipLate(inst *job.Instance, late time.Duration) {
	e.skippedLate.Add(1)
	e.jobEvent("job.skipped_late", inst, JobEvent{Lateness: late})
	if e.lateWarn.allow(inst.Name(), time.Now()) {
		e.log.Warn("job skipped: too late",
			logx.String("job", inst.Name()),
			logx.Time("due", inst.TimeToRun),
			logx.Duration("lateness", late),
			logx.Duration("max_lateness", e.cfg.MaxLateness),
			logx.Uint64("skipped_late", e.skippedLate.Load()),
		)
	}
}
