package job

import "time"

// Instance is one pending firing of a Job. The Job is shared with every other
// instance of it and outlives them.
type Instance struct {
	TimeToRun time.Time
	Job       *Job
}

func (i *Instance) Name() string {
	if i == nil || i.Job == nil {
		return ""
	}
	return i.Job.Name
}

// Lateness is how far past due the instance is at now (0 when not yet due).
func (i *Instance) Lateness(now time.Time) time.Duration {
	d := now.Sub(i.TimeToRun)
	if d < 0 {
		return 0
	}
	return d
}

// ShouldBeSidelined reports whether the owning job crossed the not-found threshold.
func (i *Instance) ShouldBeSidelined(threshold int) bool {
	return i != nil && i.Job != nil && i.Job.ShouldBeSidelined(threshold)
}
