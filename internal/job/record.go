package job

import (
	"fmt"
	"time"
)

// Record is the persisted shape of a Job.
type Record struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Kind          Kind      `json:"kind"`
	Action        Action    `json:"action"`
	Start         time.Time `json:"start,omitempty"`
	End           time.Time `json:"end,omitempty"`
	IntervalMS    int64     `json:"interval_ms,omitempty"`
	TriggerTime   time.Time `json:"trigger_time,omitempty"`
	Sidelined     bool      `json:"sidelined"`
	NotFoundCount int       `json:"not_found_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Record snapshots the job for storage.
func (j *Job) Record() Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	r := Record{
		ID:            j.ID,
		Name:          j.Name,
		Kind:          j.Kind,
		Action:        j.Action,
		TriggerTime:   j.TriggerTime,
		Sidelined:     j.sidelined,
		NotFoundCount: j.notFound,
		CreatedAt:     j.CreatedAt,
	}
	if j.Kind == KindScheduled {
		r.Start = j.Schedule.Start
		r.End = j.Schedule.End
		r.IntervalMS = j.Schedule.Interval.Milliseconds()
	}
	return r
}

// FromRecord rebuilds a Job from its persisted form.
func FromRecord(r Record) (*Job, error) {
	var (
		j   *Job
		err error
	)
	switch r.Kind {
	case KindScheduled:
		j, err = NewScheduled(r.Name, r.Action, Schedule{
			Start:    r.Start,
			End:      r.End,
			Interval: time.Duration(r.IntervalMS) * time.Millisecond,
		})
	case KindOneTime:
		j, err = NewOneTime(r.Name, r.Action, r.TriggerTime)
	default:
		return nil, fmt.Errorf("job %q: unknown kind %q", r.Name, r.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", r.Name, err)
	}
	j.ID = r.ID
	if !r.CreatedAt.IsZero() {
		j.CreatedAt = r.CreatedAt
	}
	if j.Recurring() {
		j.sidelined = r.Sidelined
		j.notFound = r.NotFoundCount
	}
	return j, nil
}
