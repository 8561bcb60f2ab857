// Package executor hands job instances to the worker pool and routes each
// invocation outcome back to the scheduler.
package executor

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"jobsched/internal/job"
	"jobsched/internal/task/engine"
	logx "jobsched/pkg/logx"
)

// Invoker performs one action.
type Invoker interface {
	Invoke(ctx context.Context, a job.Action) job.Outcome
}

// Pool accepts tasks without blocking.
type Pool interface {
	Enqueue(t engine.Task) error
}

type Executor struct {
	pool    Pool
	invoker Invoker
	log     logx.Logger
}

func New(pool Pool, invoker Invoker, log logx.Logger) *Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Executor{pool: pool, invoker: invoker, log: log.With(logx.String("comp", "executor"))}
}

// ExecuteAsync submits the instance's action. report is called exactly once
// if and only if the submission succeeds.
func (x *Executor) ExecuteAsync(inst *job.Instance, report func(job.Outcome)) error {
	if inst == nil || inst.Job == nil {
		return errors.New("executor: nil instance")
	}
	id := uuid.NewString()
	action := inst.Job.Action
	name := inst.Name()

	return x.pool.Enqueue(engine.Task{
		ID:   id,
		Name: "job:" + name,
		Run: func(ctx context.Context) error {
			out := x.invoker.Invoke(ctx, action)
			x.log.Debug("job invoked",
				logx.String("job", name),
				logx.String("task_id", id),
				logx.String("outcome", string(out.Kind)),
				logx.Int("status", out.Status),
				logx.Duration("dur", out.Duration),
			)
			if report != nil {
				report(out)
			}
			if out.Kind == job.OutcomeFailure {
				return out.Err
			}
			return nil
		},
		Dropped: func(err error) {
			x.log.Warn("job dispatch dropped", logx.String("job", name), logx.String("task_id", id), logx.Err(err))
			if report != nil {
				report(job.Failure(0, err))
			}
		},
	})
}
