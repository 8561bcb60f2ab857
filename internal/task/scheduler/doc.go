// Package scheduler is the job scheduling engine.
//
// One Engine owns a time-ordered queue of job instances and a single control
// loop that sleeps until the earliest instance is due (or it is woken), then
// hands the instance to an Executor. The loop runs under a supervisor and is
// replaced if it panics or fails; queued work survives the replacement.
//
// Outcomes come back through HandleOutcome, which drives the sideline policy:
// a recurring job whose target keeps answering "not found" is quarantined
// until it is explicitly un-sidelined.
package scheduler
