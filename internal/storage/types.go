package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrDuplicateName = errors.New("job name already exists")
	ErrClosed        = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "memory": process-local map (default; nothing survives a restart)
//   - "file": jsonl journal + snapshot next to Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// CompactEvery compacts the file journal after this many writes (file only; 0 means 500).
	CompactEvery int
}
