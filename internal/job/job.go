package job

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Kind tags the job variant.
type Kind string

const (
	KindOneTime   Kind = "one_time"
	KindScheduled Kind = "scheduled"
)

var (
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrNameRequired    = errors.New("job name is required")
)

// Schedule describes the firing points Start, Start+Interval, ... up to End.
type Schedule struct {
	Start    time.Time
	End      time.Time
	Interval time.Duration
}

func (s Schedule) Validate() error {
	if s.Interval <= 0 {
		return fmt.Errorf("%w: interval must be > 0", ErrInvalidSchedule)
	}
	if s.Start.IsZero() || s.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidSchedule)
	}
	if s.End.Before(s.Start) {
		return fmt.Errorf("%w: end is before start", ErrInvalidSchedule)
	}
	return nil
}

// next returns the earliest point >= at that is <= End.
func (s Schedule) next(at time.Time) (time.Time, bool) {
	if at.Before(s.Start) {
		at = s.Start
	}
	steps := at.Sub(s.Start) / s.Interval
	p := s.Start.Add(steps * s.Interval)
	if p.Before(at) {
		p = p.Add(s.Interval)
	}
	if p.After(s.End) {
		return time.Time{}, false
	}
	return p, true
}

// Job is a named unit of recurring or one-shot work.
//
// Identity fields are set at construction and never change afterwards, except
// ID which the store assigns on first save. Scheduling state (sideline flag,
// not-found counter, one-shot latch) is guarded by mu because outcome callbacks
// update it concurrently with the control loop.
type Job struct {
	ID          int64
	Name        string
	Kind        Kind
	Action      Action
	Schedule    Schedule  // scheduled jobs only
	TriggerTime time.Time // one-time jobs only
	CreatedAt   time.Time

	mu        sync.Mutex
	sidelined bool
	notFound  int
	fired     bool
	last      time.Time
}

// NewScheduled builds a recurring job. Times are truncated to milliseconds.
func NewScheduled(name string, action Action, sched Schedule) (*Job, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	sched.Start = sched.Start.Truncate(time.Millisecond)
	sched.End = sched.End.Truncate(time.Millisecond)
	if err := sched.Validate(); err != nil {
		return nil, err
	}
	return &Job{
		Name:      name,
		Kind:      KindScheduled,
		Action:    action.normalized(),
		Schedule:  sched,
		CreatedAt: time.Now(),
	}, nil
}

// NewOneTime builds a job that fires once at triggerTime.
func NewOneTime(name string, action Action, triggerTime time.Time) (*Job, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if triggerTime.IsZero() {
		return nil, fmt.Errorf("%w: trigger time is required", ErrInvalidSchedule)
	}
	return &Job{
		Name:        name,
		Kind:        KindOneTime,
		Action:      action.normalized(),
		TriggerTime: triggerTime.Truncate(time.Millisecond),
		CreatedAt:   time.Now(),
	}, nil
}

func (j *Job) Recurring() bool { return j.Kind == KindScheduled }

// CanSideline reports whether the sideline policy applies to this job.
func (j *Job) CanSideline() bool { return j.Recurring() }

func (j *Job) SameNameAs(name string) bool { return j != nil && j.Name == name }

// NextInstance returns the next instance to run, or nil if the job has
// nothing left to schedule. For a recurring job that has not produced an
// instance yet, a point up to grace before now still counts; the dispatcher's
// lateness check decides whether it runs.
func (j *Job) NextInstance(now time.Time, grace time.Duration) *Instance {
	now = now.Truncate(time.Millisecond)
	j.mu.Lock()
	defer j.mu.Unlock()

	switch j.Kind {
	case KindOneTime:
		if j.fired {
			return nil
		}
		j.fired = true
		return &Instance{TimeToRun: j.TriggerTime, Job: j}
	case KindScheduled:
		if j.sidelined {
			return nil
		}
		at := now
		switch {
		case j.last.IsZero():
			if grace > 0 {
				at = now.Add(-grace)
			}
		case !at.After(j.last):
			at = j.last.Add(time.Millisecond)
		}
		p, ok := j.Schedule.next(at)
		if !ok {
			return nil
		}
		j.last = p
		return &Instance{TimeToRun: p, Job: j}
	}
	return nil
}

// Sideline quarantines a recurring job. It reports whether the state changed;
// one-time jobs never change.
func (j *Job) Sideline() bool {
	if !j.CanSideline() {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.sidelined {
		return false
	}
	j.sidelined = true
	return true
}

// Unsideline lifts the quarantine and resets the not-found counter.
func (j *Job) Unsideline() bool {
	if !j.CanSideline() {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.sidelined {
		return false
	}
	j.sidelined = false
	j.notFound = 0
	return true
}

func (j *Job) Sidelined() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sidelined
}

func (j *Job) NotFoundCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.notFound
}

// RecordNotFound counts one consecutive not-found outcome. When the count
// reaches threshold the job is sidelined in the same critical section and
// RecordNotFound returns true.
func (j *Job) RecordNotFound(threshold int) bool {
	if !j.CanSideline() {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.sidelined {
		return false
	}
	j.notFound++
	if threshold > 0 && j.notFound >= threshold {
		j.sidelined = true
		return true
	}
	return false
}

// ResetNotFound zeroes the counter and reports whether it was non-zero.
func (j *Job) ResetNotFound() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.notFound == 0 {
		return false
	}
	j.notFound = 0
	return true
}

// ShouldBeSidelined reports a recurring job that reached threshold without
// having been sidelined yet (e.g. a lowered threshold or a loaded record).
func (j *Job) ShouldBeSidelined(threshold int) bool {
	if !j.CanSideline() || threshold <= 0 {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.sidelined && j.notFound >= threshold
}

func (j *Job) String() string {
	return fmt.Sprintf("%s(%s)", j.Name, j.Kind)
}
