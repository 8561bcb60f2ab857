package config

import "time"

// Config is the on-disk configuration. Files may be JSON or YAML; unknown
// keys are rejected in both.
//
// Durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Logging      LoggingConfig      `json:"logging"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	Executor     ExecutorConfig     `json:"executor"`
	Invoker      InvokerConfig      `json:"invoker"`
	Storage      StorageConfig      `json:"storage"`
	Housekeeping HousekeepingConfig `json:"housekeeping"`
	Ops          OpsConfig          `json:"ops,omitempty"`

	// Jobs are created (idempotently, by name) at startup.
	Jobs []JobConfig `json:"jobs,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the scheduling engine.
//
// Defaults (when omitted):
//   - max_lateness: "5s"; an explicit "0s" disables late skipping
//   - sideline_threshold: 3
//   - restart_backoff: "50ms", restart_backoff_max: "5s"
//   - store_timeout: "5s"
type SchedulerConfig struct {
	MaxLateness       string `json:"max_lateness,omitempty"`
	SidelineThreshold int    `json:"sideline_threshold,omitempty"`
	RestartBackoff    string `json:"restart_backoff,omitempty"`
	RestartBackoffMax string `json:"restart_backoff_max,omitempty"`
	StoreTimeout      string `json:"store_timeout,omitempty"`
}

// ExecutorConfig controls the worker pool that runs invocations.
type ExecutorConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`

	// DefaultTimeout bounds a task that sets no timeout of its own.
	DefaultTimeout string `json:"default_timeout,omitempty"`
	// MaxQueueDelay drops tasks that waited longer than this for a worker.
	// "0s" disables stale dropping.
	MaxQueueDelay string `json:"max_queue_delay,omitempty"`

	HistorySize int `json:"history_size,omitempty"`
}

// InvokerConfig controls outbound HTTP calls.
type InvokerConfig struct {
	Timeout          string `json:"timeout,omitempty"`
	RatePerSec       int    `json:"rate_per_sec,omitempty"`
	Burst            int    `json:"burst,omitempty"`
	UserAgent        string `json:"user_agent,omitempty"`
	NotFoundStatuses []int  `json:"not_found_statuses,omitempty"`
}

// StorageConfig selects the job store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/jobs.db" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path,omitempty"`
	BusyTimeout  string `json:"busy_timeout,omitempty"`  // sqlite
	CompactEvery int    `json:"compact_every,omitempty"` // file
}

// HousekeepingConfig schedules maintenance tasks. Empty disables a task.
type HousekeepingConfig struct {
	Timezone     string `json:"timezone,omitempty"`
	StatusReport string `json:"status_report,omitempty"`
	Compact      string `json:"compact,omitempty"`
}

// OpsConfig controls the optional ops HTTP server (pprof, /healthz, /status).
//
// Prefer binding to localhost. A non-loopback address needs a token or
// allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6061"
	Prefix        string `json:"prefix,omitempty"` // pprof prefix, default "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

// JobConfig declares a job to create at startup.
type JobConfig struct {
	Name    string            `json:"name"`
	Kind    string            `json:"kind"` // "scheduled" or "one_time"
	Method  string            `json:"method,omitempty"`
	URL     string            `json:"url"`
	Body    string            `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// scheduled
	Interval string    `json:"interval,omitempty"`
	Start    time.Time `json:"start,omitempty"`
	End      time.Time `json:"end,omitempty"`

	// one_time
	TriggerTime time.Time `json:"trigger_time,omitempty"`
}
