package storage

import (
	"context"
	"errors"
	"strings"

	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

// Store is the persistence API used by the scheduler and the jobs service.
type Store interface {
	FindByName(ctx context.Context, name string) (*job.Job, error)
	FindByID(ctx context.Context, id int64) (*job.Job, error)
	// Save inserts a job with ID 0 (assigning its ID) or updates an existing one.
	// Updating a record that no longer exists returns ErrNotFound.
	Save(ctx context.Context, j *job.Job) (*job.Job, error)
	// Delete removes the job's record. Deleting a missing record is not an error.
	Delete(ctx context.Context, j *job.Job) error
	List(ctx context.Context) ([]*job.Job, error)
	Close() error
}

// Compactor is implemented by stores that benefit from periodic maintenance.
type Compactor interface {
	Compact(ctx context.Context) error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
