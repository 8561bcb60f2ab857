package housekeeping

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"jobsched/internal/eventbus"
	"jobsched/internal/task/engine"
	logx "jobsched/pkg/logx"
)

// Config controls maintenance triggers. Schedules accept cron expressions,
// descriptors ("@every 1m", "@hourly"), HH:MM intervals or Go durations.
// An empty schedule disables that task.
type Config struct {
	Timezone     string
	StatusReport string
	Compact      string
}

// Pool runs triggered tasks.
type Pool interface {
	Enqueue(t engine.Task) error
}

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	run     func(ctx context.Context) error
	entryID cron.EntryID
	running *runGate
}

// runGate keeps a maintenance task from stacking up behind itself when a run
// takes longer than its interval.
type runGate struct {
	mu      sync.Mutex
	running bool
}

func (g *runGate) tryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return false
	}
	g.running = true
	return true
}

func (g *runGate) release() {
	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
}

// Service triggers maintenance tasks on cron schedules and runs them on the
// worker pool.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	pool Pool

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// Enqueue error throttling: key is schedule name.
	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name    string        `json:"name"`
	Spec    string        `json:"spec"`
	Timeout time.Duration `json:"timeout"`
	Next    time.Time     `json:"next"`
	Prev    time.Time     `json:"prev"`
}

type Snapshot struct {
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
}
