package scheduler

import (
	"sync"
	"time"
)

const lateWarnEvery = 30 * time.Second

// throttle rate-limits per-key warnings. A job that keeps falling behind
// should not flood the log.
type throttle struct {
	every time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

func newThrottle(every time.Duration) throttle {
	return throttle{every: every, last: map[string]time.Time{}}
}

func (t *throttle) allow(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.last[key]; ok && now.Sub(prev) < t.every {
		return false
	}
	t.last[key] = now
	if len(t.last) > 1024 {
		for k, at := range t.last {
			if now.Sub(at) >= t.every {
				delete(t.last, k)
			}
		}
	}
	return true
}
