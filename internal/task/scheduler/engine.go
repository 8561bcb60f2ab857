package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"jobsched/internal/eventbus"
	"jobsched/internal/job"
	"jobsched/internal/queue"
	rtsup "jobsched/internal/runtime/supervisor"
	logx "jobsched/pkg/logx"
)

const loopName = "scheduler.loop"

type Option func(*Engine)

// WithClock replaces time.Now. Tests use it to pin "now".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine owns the instance queue and the control loop.
type Engine struct {
	cfg   Config
	log   logx.Logger
	bus   eventbus.Bus
	store Store
	exec  Executor
	now   func() time.Time

	q *queue.Queue

	// mu guards state; wake is signalled after every state change or arrival.
	mu    sync.Mutex
	state State
	wake  chan struct{}

	// opMu serializes dispatch-and-reschedule against removal.
	opMu sync.Mutex

	lifeMu sync.Mutex
	sup    *rtsup.Supervisor

	dispatched     atomic.Uint64
	dispatchFailed atomic.Uint64
	skippedLate    atomic.Uint64
	sidelined      atomic.Uint64
	deleted        atomic.Uint64
	restarts       atomic.Uint64

	lateWarn throttle
}

func New(cfg Config, store Store, exec Executor, log logx.Logger, bus eventbus.Bus, opts ...Option) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		cfg:      cfg.withDefaults(),
		log:      log.With(logx.String("comp", "scheduler")),
		bus:      bus,
		store:    store,
		exec:     exec,
		now:      time.Now,
		q:        queue.New(),
		state:    Paused,
		wake:     make(chan struct{}, 1),
		lateWarn: newThrottle(lateWarnEvery),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start launches the supervised control loop. It is a no-op if the loop is
// already running, and fails once the engine has been halted.
func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.State() == Halted {
		return ErrHalted
	}

	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.sup != nil {
		return nil
	}
	e.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(e.log),
		rtsup.WithCancelOnError(false),
	)
	e.sup.GoRestart(loopName, e.loop,
		rtsup.WithImmediateRestart(true),
		rtsup.WithRestartBackoff(e.cfg.RestartBackoff, e.cfg.RestartBackoffMax),
		rtsup.WithOnRestart(e.onLoopRestart),
	)
	e.log.Info("scheduler started",
		logx.Duration("max_lateness", e.cfg.MaxLateness),
		logx.Int("sideline_threshold", e.cfg.SidelineThreshold),
		logx.Int("queued", e.q.Len()),
	)
	return nil
}

// Stop halts the engine and waits for the loop to exit.
func (e *Engine) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e.Halt()

	e.lifeMu.Lock()
	sup := e.sup
	e.lifeMu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Cancel()
	err := sup.Wait(ctx)
	e.log.Info("scheduler stopped", logx.Int("queued", e.q.Len()))
	return err
}

// Supervisor exposes the loop's supervisor for diagnostics (nil before Start).
func (e *Engine) Supervisor() *rtsup.Supervisor {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	return e.sup
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pause drops every queued instance and moves a running engine to paused.
// Jobs must be re-added to run again.
func (e *Engine) Pause() int {
	e.opMu.Lock()
	n := e.q.Clear()
	e.mu.Lock()
	if e.state == Running {
		e.state = Paused
	}
	e.mu.Unlock()
	e.opMu.Unlock()
	e.signal()
	e.log.Info("scheduler paused", logx.Int("cleared", n))
	return n
}

// Resume moves a paused engine to running.
func (e *Engine) Resume() error {
	e.mu.Lock()
	switch e.state {
	case Halted:
		e.mu.Unlock()
		return ErrHalted
	case Paused:
		e.state = Running
	}
	e.mu.Unlock()
	e.signal()
	return nil
}

// Halt stops the loop for good. Queued instances are kept but never run.
func (e *Engine) Halt() {
	e.mu.Lock()
	already := e.state == Halted
	e.state = Halted
	e.mu.Unlock()
	e.signal()
	if !already {
		e.log.Info("scheduler halted", logx.Int("queued", e.q.Len()))
	}
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// ensureRunning is called after an instance was pushed.
func (e *Engine) ensureRunning() {
	e.mu.Lock()
	if e.state == Paused {
		e.state = Running
	}
	e.mu.Unlock()
	e.signal()
}

func (e *Engine) onLoopRestart(name string, restarts int, err error) {
	e.restarts.Add(1)
	e.publish("scheduler.loop_restarted", map[string]any{
		"name":     name,
		"restarts": restarts,
		"err":      errString(err),
	})
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: e.now(), Data: data})
}

func (e *Engine) jobEvent(typ string, inst *job.Instance, ev JobEvent) {
	if inst != nil && inst.Job != nil {
		ev.Name = inst.Job.Name
		ev.Kind = inst.Job.Kind
		ev.TimeToRun = inst.TimeToRun
	}
	e.publish(typ, ev)
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.cfg.StoreTimeout)
}

func (e *Engine) Snapshot() Snapshot {
	pending := e.q.Snapshot()
	items := make([]PendingItem, 0, len(pending))
	for _, inst := range pending {
		items = append(items, PendingItem{Name: inst.Name(), Kind: inst.Job.Kind, TimeToRun: inst.TimeToRun})
	}
	s := Snapshot{
		State:             e.State().String(),
		QueueLen:          len(items),
		Dispatched:        e.dispatched.Load(),
		DispatchFailed:    e.dispatchFailed.Load(),
		SkippedLate:       e.skippedLate.Load(),
		Sidelined:         e.sidelined.Load(),
		Deleted:           e.deleted.Load(),
		LoopRestarts:      e.restarts.Load(),
		MaxLateness:       e.cfg.MaxLateness,
		SidelineThreshold: e.cfg.SidelineThreshold,
		Pending:           items,
	}
	if len(items) > 0 {
		s.NextDue = items[0].TimeToRun
	}
	return s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
