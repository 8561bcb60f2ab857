package config

import (
	"reflect"
	"sort"
	"strings"

	logx "jobsched/pkg/logx"
)

// SummarizeConfigChange returns the sorted names of the sections that differ
// and log fields describing their new values. Secrets (the ops token) are
// only reported as set or unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.max_lateness", strings.TrimSpace(newCfg.Scheduler.MaxLateness)),
			logx.Int("scheduler.sideline_threshold", newCfg.Scheduler.SidelineThreshold),
		)
	}

	if oldCfg.Executor != newCfg.Executor {
		changed = append(changed, "executor")
		attrs = append(attrs,
			logx.Int("executor.workers", newCfg.Executor.Workers),
			logx.Int("executor.queue_size", newCfg.Executor.QueueSize),
			logx.String("executor.max_queue_delay", strings.TrimSpace(newCfg.Executor.MaxQueueDelay)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Invoker, newCfg.Invoker) {
		changed = append(changed, "invoker")
		attrs = append(attrs,
			logx.String("invoker.timeout", strings.TrimSpace(newCfg.Invoker.Timeout)),
			logx.Int("invoker.rate_per_sec", newCfg.Invoker.RatePerSec),
			logx.Int("invoker.burst", newCfg.Invoker.Burst),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)))
	}

	if oldCfg.Housekeeping != newCfg.Housekeeping {
		changed = append(changed, "housekeeping")
		attrs = append(attrs,
			logx.String("housekeeping.timezone", strings.TrimSpace(newCfg.Housekeeping.Timezone)),
			logx.String("housekeeping.status_report", strings.TrimSpace(newCfg.Housekeeping.StatusReport)),
			logx.String("housekeeping.compact", strings.TrimSpace(newCfg.Housekeeping.Compact)),
		)
	}

	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
			logx.Bool("ops.allow_insecure", newCfg.Ops.AllowInsecure),
		)
	}

	if !reflect.DeepEqual(oldCfg.Jobs, newCfg.Jobs) {
		changed = append(changed, "jobs")
		attrs = append(attrs, logx.Int("jobs.count", len(newCfg.Jobs)))
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists the changed sections that only take effect after a
// restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "scheduler", "storage", "jobs":
			out = append(out, s)
		}
	}
	return out
}
