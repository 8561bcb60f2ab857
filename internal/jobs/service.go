// Package jobs exposes the job operations an API layer needs: create, look
// up, delete and un-sideline, plus startup restore. Every change goes through
// the store first and then through the scheduler.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"jobsched/internal/job"
	"jobsched/internal/storage"
	logx "jobsched/pkg/logx"
)

var ErrNotFound = storage.ErrNotFound

// Scheduler is the part of the engine the service drives.
type Scheduler interface {
	AddJob(ctx context.Context, j *job.Job)
	RemoveJob(name string) int
}

type Option func(*Service)

// WithClock replaces time.Now for defaulting the start of scheduled jobs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

type Service struct {
	store     storage.Store
	sched     Scheduler
	log       logx.Logger
	validator *validator.Validate
	now       func() time.Time
}

func New(store storage.Store, sched Scheduler, log logx.Logger, opts ...Option) (*Service, error) {
	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		store:     store,
		sched:     sched,
		log:       log.With(logx.String("comp", "jobs")),
		validator: v,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// CreateScheduled creates and schedules a recurring job. If a job with the
// same name exists it is returned as-is.
func (s *Service) CreateScheduled(ctx context.Context, req ScheduledRequest) (*job.Job, error) {
	if req.Start.IsZero() {
		req.Start = s.now()
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if existing, err := s.store.FindByName(ctx, req.Name); err == nil {
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	every, err := job.ParseInterval(req.Interval)
	if err != nil {
		return nil, err
	}
	j, err := job.NewScheduled(req.Name, action(req.Method, req.URL, req.Body, req.Headers),
		job.Schedule{Start: req.Start, End: req.End, Interval: every})
	if err != nil {
		return nil, err
	}
	return s.create(ctx, j)
}

// CreateOneTime creates and schedules a one-shot job. If a job with the same
// name exists it is returned as-is.
func (s *Service) CreateOneTime(ctx context.Context, req OneTimeRequest) (*job.Job, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if existing, err := s.store.FindByName(ctx, req.Name); err == nil {
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	j, err := job.NewOneTime(req.Name, action(req.Method, req.URL, req.Body, req.Headers), req.TriggerTime)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, j)
}

func (s *Service) create(ctx context.Context, j *job.Job) (*job.Job, error) {
	if _, err := s.store.Save(ctx, j); err != nil {
		if errors.Is(err, storage.ErrDuplicateName) {
			// Lost a race with a concurrent create of the same name.
			return s.store.FindByName(ctx, j.Name)
		}
		return nil, err
	}
	s.log.Info("job created", logx.String("job", j.Name), logx.String("kind", string(j.Kind)), logx.Int64("id", j.ID))
	s.sched.AddJob(ctx, j)
	return j, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*job.Job, error) {
	return s.store.FindByID(ctx, id)
}

func (s *Service) GetByName(ctx context.Context, name string) (*job.Job, error) {
	return s.store.FindByName(ctx, name)
}

func (s *Service) List(ctx context.Context) ([]*job.Job, error) {
	return s.store.List(ctx)
}

// Delete unschedules and removes a job. An in-flight dispatch may still
// finish, but its outcome is not persisted.
func (s *Service) Delete(ctx context.Context, name string) error {
	j, err := s.store.FindByName(ctx, name)
	if err != nil {
		return err
	}
	s.sched.RemoveJob(name)
	if err := s.store.Delete(ctx, j); err != nil {
		return err
	}
	s.log.Info("job deleted", logx.String("job", name))
	return nil
}

// Unsideline lifts a job's quarantine and schedules exactly one new instance.
// One-time jobs and jobs that are not sidelined are returned unchanged.
func (s *Service) Unsideline(ctx context.Context, name string) (*job.Job, error) {
	j, err := s.store.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !j.CanSideline() {
		s.log.Warn("unsideline ignored: one-time job", logx.String("job", name))
		return j, nil
	}
	if !j.Unsideline() {
		s.log.Info("unsideline ignored: job not sidelined", logx.String("job", name))
		return j, nil
	}
	if _, err := s.store.Save(ctx, j); err != nil {
		return nil, err
	}
	s.sched.RemoveJob(name)
	s.sched.AddJob(ctx, j)
	s.log.Info("job unsidelined", logx.String("job", name))
	return j, nil
}

// Restore schedules every persisted job that is not sidelined. It returns the
// number of jobs handed to the scheduler.
func (s *Service) Restore(ctx context.Context) (int, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	n, sidelined := 0, 0
	for _, j := range all {
		if j.Sidelined() {
			sidelined++
			continue
		}
		s.sched.AddJob(ctx, j)
		n++
	}
	s.log.Info("jobs restored", logx.Int("scheduled", n), logx.Int("sidelined", sidelined))
	return n, nil
}
