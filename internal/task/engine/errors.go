package engine

import "errors"

var (
	ErrStopped    = errors.New("task engine stopped")
	ErrStopping   = errors.New("task engine stopping")
	ErrQueueFull  = errors.New("task engine queue full")
	ErrStaleQueue = errors.New("task dropped: stale in queue")
)
