package scheduler

import (
	"context"
	"errors"
	"time"

	"jobsched/internal/job"
)

var ErrHalted = errors.New("scheduler halted")

// Config controls the engine.
type Config struct {
	// MaxLateness is the staleness bound: an instance dequeued later than this
	// past its due time is skipped. 0 disables the check.
	MaxLateness time.Duration
	// SidelineThreshold is the number of consecutive not-found outcomes that
	// sideline a recurring job.
	SidelineThreshold int

	RestartBackoff    time.Duration
	RestartBackoffMax time.Duration

	// StoreTimeout bounds each store call made by the engine.
	StoreTimeout time.Duration
}

const (
	DefaultMaxLateness       = 5 * time.Second
	DefaultSidelineThreshold = 3
)

func (c Config) withDefaults() Config {
	if c.MaxLateness < 0 {
		c.MaxLateness = 0
	}
	if c.SidelineThreshold <= 0 {
		c.SidelineThreshold = DefaultSidelineThreshold
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = 50 * time.Millisecond
	}
	if c.RestartBackoffMax <= 0 {
		c.RestartBackoffMax = 5 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	return c
}

// Executor runs an instance's action without blocking the caller and reports
// the outcome later through report.
type Executor interface {
	ExecuteAsync(inst *job.Instance, report func(job.Outcome)) error
}

// Store is the part of the job store the engine writes to.
type Store interface {
	Save(ctx context.Context, j *job.Job) (*job.Job, error)
	Delete(ctx context.Context, j *job.Job) error
}

type State int

const (
	Paused State = iota
	Running
	Halted
)

func (s State) String() string {
	switch s {
	case Paused:
		return "paused"
	case Running:
		return "running"
	case Halted:
		return "halted"
	default:
		return "unknown"
	}
}

// PendingItem is one queued instance as seen by diagnostics.
type PendingItem struct {
	Name      string    `json:"name"`
	Kind      job.Kind  `json:"kind"`
	TimeToRun time.Time `json:"time_to_run"`
}

type Snapshot struct {
	State    string    `json:"state"`
	QueueLen int       `json:"queue_len"`
	NextDue  time.Time `json:"next_due,omitempty"`

	Dispatched     uint64 `json:"dispatched"`
	DispatchFailed uint64 `json:"dispatch_failed"`
	SkippedLate    uint64 `json:"skipped_late"`
	Sidelined      uint64 `json:"sidelined"`
	Deleted        uint64 `json:"deleted"`
	LoopRestarts   uint64 `json:"loop_restarts"`

	MaxLateness       time.Duration `json:"max_lateness"`
	SidelineThreshold int           `json:"sideline_threshold"`

	Pending []PendingItem `json:"pending"`
}

// JobEvent is the payload of job.* events on the bus.
type JobEvent struct {
	Name      string        `json:"name"`
	Kind      job.Kind      `json:"kind"`
	TimeToRun time.Time     `json:"time_to_run,omitempty"`
	Lateness  time.Duration `json:"lateness,omitempty"`
	Outcome   string        `json:"outcome,omitempty"`
	Status    int           `json:"status,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
}
