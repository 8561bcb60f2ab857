// Package app wires configuration into the scheduler's components and owns
// their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"jobsched/internal/config"
	"jobsched/internal/eventbus"
	"jobsched/internal/invoke"
	"jobsched/internal/jobs"
	"jobsched/internal/observability/opsserver"
	rtsup "jobsched/internal/runtime/supervisor"
	"jobsched/internal/storage"
	"jobsched/internal/task/engine"
	"jobsched/internal/task/executor"
	"jobsched/internal/task/housekeeping"
	"jobsched/internal/task/scheduler"
	logx "jobsched/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	pool  *engine.Service
	inv   *invoke.HTTP
	sched *scheduler.Engine
	jobs  *jobs.Service
	hk    *housekeeping.Service
	ops   *opsserver.Service
}

// New loads and validates the config file and builds every component.
// Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(validateConfig)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return build(cfgm, cfg)
}

func build(cfgm *config.Manager, cfg *config.Config) (*App, error) {
	logSvc, root, err := logx.New(mapLoggingConfig(cfg))
	log := root.With(logx.String("comp", "app"))
	if err != nil {
		log.Warn("log file unavailable; logging to console", logx.Err(err))
	}
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	fail := func(err error) (*App, error) {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return fail(err)
	}
	invCfg, err := mapInvokerConfig(cfg)
	if err != nil {
		return fail(err)
	}
	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return fail(err)
	}
	opsCfg, err := mapOpsConfig(cfg)
	if err != nil {
		return fail(err)
	}

	bus := eventbus.New()
	pool := engine.New(engCfg, root, bus)
	inv := invoke.New(invCfg, &http.Client{}, root)
	exec := executor.New(pool, inv, root)
	sched := scheduler.New(schedCfg, store, exec, root, bus)
	js, err := jobs.New(store, sched, root)
	if err != nil {
		return fail(err)
	}
	hk := housekeeping.New(mapHousekeepingConfig(cfg), pool, root, bus)

	a := &App{
		cfgm:  cfgm,
		log:   log,
		logs:  logSvc,
		bus:   bus,
		store: store,
		pool:  pool,
		inv:   inv,
		sched: sched,
		jobs:  js,
		hk:    hk,
	}
	a.ops = opsserver.New(opsCfg, root,
		opsserver.WithStatus(func() any { return a.Status() }),
		opsserver.WithHealth(a.health),
	)
	log.Info("storage opened", logx.String("driver", sc.Driver))
	return a, nil
}

// Jobs is the job operations service an API layer calls.
func (a *App) Jobs() *jobs.Service { return a.jobs }

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Status is served at /status and summarizes every component.
type Status struct {
	Scheduler     scheduler.Snapshot    `json:"scheduler"`
	Pool          engine.Snapshot       `json:"pool"`
	Housekeeping  housekeeping.Snapshot `json:"housekeeping"`
	EventsDropped uint64                `json:"events_dropped"`

	Goroutines map[string][]rtsup.GoroutineStats `json:"goroutines"`
}

func (a *App) Status() Status {
	st := Status{
		Scheduler:     a.sched.Snapshot(),
		Pool:          a.pool.Snapshot(),
		Housekeeping:  a.hk.Snapshot(),
		EventsDropped: a.bus.Dropped(),
		Goroutines:    map[string][]rtsup.GoroutineStats{},
	}
	st.Pool.History = nil
	for name, sup := range map[string]*rtsup.Supervisor{
		"app":       a.sup,
		"scheduler": a.sched.Supervisor(),
		"pool":      a.pool.Supervisor(),
	} {
		if sup != nil {
			st.Goroutines[name] = sup.Snapshot()
		}
	}
	return st
}

func (a *App) health() error {
	if s := a.sched.State(); s == scheduler.Halted {
		return errors.New("scheduler halted")
	}
	if !a.pool.Snapshot().Running {
		return errors.New("worker pool not running")
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()
	cfg := a.cfgm.Get()

	a.pool.Start(runCtx)
	if err := a.sched.Start(runCtx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := a.restoreJobs(runCtx, cfg.Jobs); err != nil {
		return err
	}

	if err := a.hk.Register(mapHousekeepingConfig(cfg), a.sched, a.pool, a.store); err != nil {
		return fmt.Errorf("housekeeping: %w", err)
	}
	a.hk.Start(runCtx)

	if opsCfg, err := mapOpsConfig(cfg); err == nil {
		a.ops.Reconfigure(runCtx, opsCfg)
	}

	a.startEventLog()
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.String("config", a.cfgm.Path()))
	return nil
}

// startEventLog mirrors bus events into debug logs.
func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				if a.log.Enabled(logx.LevelDebug) {
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
				}
			}
		}
	})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// Order matters: nothing may report into the scheduler or the store after
	// they are gone, so triggers stop first and the store closes last.
	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "housekeeping", time.Second, func(c context.Context) error { a.hk.Stop(c); return nil })
	a.step(ctx, "scheduler", 2*time.Second, a.sched.Stop)
	a.step(ctx, "pool", 3*time.Second, func(c context.Context) error { a.pool.Stop(c); return nil })
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by max (and by ctx). A step that
// overruns is logged and left running so the rest of shutdown proceeds.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped: no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
		}()
	}
}
