// Package storage persists job definitions, including each job's sideline
// flag and not-found counter, so scheduling can be rebuilt after a restart.
//
// Every read returns a freshly built *job.Job; callers never share job values
// through the store.
package storage
