package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "jobsched/pkg/logx"
)

// Validate checks the parts of cfg that can be checked without building
// components: duration syntax, bounds and enum values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		check(err)
	}
	nonNeg := func(path string, v int) {
		if v < 0 {
			check(fmt.Errorf("%s must be >= 0", path))
		}
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		check(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}

	dur("scheduler.max_lateness", cfg.Scheduler.MaxLateness)
	dur("scheduler.restart_backoff", cfg.Scheduler.RestartBackoff)
	dur("scheduler.restart_backoff_max", cfg.Scheduler.RestartBackoffMax)
	dur("scheduler.store_timeout", cfg.Scheduler.StoreTimeout)
	nonNeg("scheduler.sideline_threshold", cfg.Scheduler.SidelineThreshold)

	nonNeg("executor.workers", cfg.Executor.Workers)
	nonNeg("executor.queue_size", cfg.Executor.QueueSize)
	nonNeg("executor.history_size", cfg.Executor.HistorySize)
	dur("executor.default_timeout", cfg.Executor.DefaultTimeout)
	dur("executor.max_queue_delay", cfg.Executor.MaxQueueDelay)

	dur("invoker.timeout", cfg.Invoker.Timeout)
	nonNeg("invoker.rate_per_sec", cfg.Invoker.RatePerSec)
	nonNeg("invoker.burst", cfg.Invoker.Burst)
	for _, code := range cfg.Invoker.NotFoundStatuses {
		if code < 100 || code > 599 {
			check(fmt.Errorf("invoker.not_found_statuses: %d is not an HTTP status", code))
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			check(fmt.Errorf("storage.path is required when storage.driver=%s", cfg.Storage.Driver))
		}
	default:
		check(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)
	nonNeg("storage.compact_every", cfg.Storage.CompactEvery)

	if tz := strings.TrimSpace(cfg.Housekeeping.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			check(fmt.Errorf("housekeeping.timezone: invalid %q: %w", tz, err))
		}
	}

	dur("ops.read_timeout", cfg.Ops.ReadTimeout)
	dur("ops.write_timeout", cfg.Ops.WriteTimeout)
	dur("ops.idle_timeout", cfg.Ops.IdleTimeout)

	seen := make(map[string]struct{}, len(cfg.Jobs))
	for i, j := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		name := strings.TrimSpace(j.Name)
		if name == "" {
			check(fmt.Errorf("%s.name is required", path))
		} else if _, dup := seen[name]; dup {
			check(fmt.Errorf("%s.name: duplicate %q", path, name))
		}
		seen[name] = struct{}{}
		switch j.Kind {
		case "scheduled", "one_time":
		default:
			check(fmt.Errorf("%s.kind: want scheduled or one_time, got %q", path, j.Kind))
		}
	}

	return errors.Join(errs...)
}
