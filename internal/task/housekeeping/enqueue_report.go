package housekeeping

import (
	"time"

	"jobsched/internal/eventbus"
	logx "jobsched/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func (s *Service) reportEnqueueError(name string, err error) {
	if err == nil {
		return
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "housekeeping.enqueue_failed", Data: map[string]string{"schedule": name, "err": err.Error()}})
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[name] = now
	s.enqMu.Unlock()

	s.log.Warn("schedule failed to enqueue task", logx.String("schedule", name), logx.Err(err))
}
