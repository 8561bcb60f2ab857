package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jobsched/internal/config"
	"jobsched/internal/invoke"
	"jobsched/internal/observability/opsserver"
	"jobsched/internal/storage"
	"jobsched/internal/task/engine"
	"jobsched/internal/task/housekeeping"
	"jobsched/internal/task/scheduler"
	logx "jobsched/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	maxLate, err := config.ParseDurationUnlessEmpty("scheduler.max_lateness", sc.MaxLateness, scheduler.DefaultMaxLateness)
	if err != nil {
		return scheduler.Config{}, err
	}
	backoff, err := config.ParseDurationField("scheduler.restart_backoff", sc.RestartBackoff)
	if err != nil {
		return scheduler.Config{}, err
	}
	backoffMax, err := config.ParseDurationField("scheduler.restart_backoff_max", sc.RestartBackoffMax)
	if err != nil {
		return scheduler.Config{}, err
	}
	storeTimeout, err := config.ParseDurationField("scheduler.store_timeout", sc.StoreTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	if backoffMax > 0 && backoff > backoffMax {
		return scheduler.Config{}, fmt.Errorf("scheduler.restart_backoff must be <= restart_backoff_max")
	}
	return scheduler.Config{
		MaxLateness:       maxLate,
		SidelineThreshold: sc.SidelineThreshold,
		RestartBackoff:    backoff,
		RestartBackoffMax: backoffMax,
		StoreTimeout:      storeTimeout,
	}, nil
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	ec := cfg.Executor
	defTimeout, err := config.ParseDurationField("executor.default_timeout", ec.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("executor.max_queue_delay", ec.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Workers:        ec.Workers,
		QueueSize:      ec.QueueSize,
		DefaultTimeout: defTimeout,
		MaxQueueDelay:  maxDelay,
		HistorySize:    ec.HistorySize,
	}, nil
}

func mapInvokerConfig(cfg *config.Config) (invoke.Config, error) {
	ic := cfg.Invoker
	timeout, err := config.ParseDurationField("invoker.timeout", ic.Timeout)
	if err != nil {
		return invoke.Config{}, err
	}
	return invoke.Config{
		Timeout:          timeout,
		RatePerSec:       ic.RatePerSec,
		Burst:            ic.Burst,
		UserAgent:        ic.UserAgent,
		NotFoundStatuses: append([]int(nil), ic.NotFoundStatuses...),
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:       strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:         strings.TrimSpace(sc.Path),
		BusyTimeout:  busy,
		CompactEvery: sc.CompactEvery,
	}, nil
}

func mapHousekeepingConfig(cfg *config.Config) housekeeping.Config {
	return housekeeping.Config{
		Timezone:     strings.TrimSpace(cfg.Housekeeping.Timezone),
		StatusReport: strings.TrimSpace(cfg.Housekeeping.StatusReport),
		Compact:      strings.TrimSpace(cfg.Housekeeping.Compact),
	}
}

func mapOpsConfig(cfg *config.Config) (opsserver.Config, error) {
	oc := cfg.Ops
	read, err := config.ParseDurationField("ops.read_timeout", oc.ReadTimeout)
	if err != nil {
		return opsserver.Config{}, err
	}
	write, err := config.ParseDurationField("ops.write_timeout", oc.WriteTimeout)
	if err != nil {
		return opsserver.Config{}, err
	}
	idle, err := config.ParseDurationField("ops.idle_timeout", oc.IdleTimeout)
	if err != nil {
		return opsserver.Config{}, err
	}
	return opsserver.Config{
		Enabled:              oc.Enabled,
		Addr:                 strings.TrimSpace(oc.Addr),
		Prefix:               oc.Prefix,
		Token:                strings.TrimSpace(oc.Token),
		AllowInsecure:        oc.AllowInsecure,
		ReadTimeout:          read,
		WriteTimeout:         write,
		IdleTimeout:          idle,
		MutexProfileFraction: oc.MutexProfileFraction,
		BlockProfileRate:     oc.BlockProfileRate,
	}, nil
}

// validateConfig is installed as the config manager's validator, so a bad
// file is rejected both at startup and on hot reload.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	var errs []error
	if _, err := mapSchedulerConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	for name, raw := range map[string]string{
		"housekeeping.status_report": cfg.Housekeeping.StatusReport,
		"housekeeping.compact":       cfg.Housekeeping.Compact,
	} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := housekeeping.ParseSchedule(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
