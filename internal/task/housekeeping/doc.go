// Package housekeeping triggers the service's own maintenance work (status
// reports, store compaction) on cron or interval schedules and runs it on the
// worker pool.
package housekeeping
