package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

// fileStore persists jobs without a database.
//
// Files:
//   - <prefix>.jobs.snapshot.json (full record set, rewritten on compaction)
//   - <prefix>.jobs.journal.jsonl (append-only put/del entries since the snapshot)
//
// Open replays the snapshot, then the journal.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex
	rs *records

	snapshotPath string
	journal      *os.File

	writes       int
	compactEvery int
}

type journalEntry struct {
	Op     string      `json:"op"` // "put" | "del"
	ID     int64       `json:"id"`
	Record *job.Record `json:"record,omitempty"`
}

type snapshotFile struct {
	NextID  int64        `json:"next_id"`
	Records []job.Record `json:"records"`
}

func openFile(cfg Config, log logx.Logger) (*fileStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".jobs.snapshot.json"
	journalPath := prefix + ".jobs.journal.jsonl"

	rs := newRecords()
	if err := loadSnapshot(snapPath, rs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	skipped, err := replayJournal(journalPath, rs)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if skipped > 0 {
		log.Warn("job journal had unreadable lines", logx.Int("skipped", skipped), logx.String("path", journalPath))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	every := cfg.CompactEvery
	if every <= 0 {
		every = 500
	}
	log.Debug("file store opened", logx.String("snapshot", snapPath), logx.Int("jobs", len(rs.byID)))
	return &fileStore{
		log:          log,
		rs:           rs,
		snapshotPath: snapPath,
		journal:      jf,
		compactEvery: every,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) FindByName(_ context.Context, name string) (*job.Job, error) {
	s.mu.Lock()
	id, ok := s.rs.byName[name]
	r := s.rs.byID[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return job.FromRecord(r)
}

func (s *fileStore) FindByID(_ context.Context, id int64) (*job.Job, error) {
	s.mu.Lock()
	r, ok := s.rs.byID[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return job.FromRecord(r)
}

func (s *fileStore) List(_ context.Context) ([]*job.Job, error) {
	s.mu.Lock()
	rs := s.rs.list()
	s.mu.Unlock()
	return buildAll(rs)
}

func (s *fileStore) Save(_ context.Context, j *job.Job) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	r, err := s.rs.prepare(j.Record())
	if err != nil {
		return nil, err
	}
	if err := s.appendLocked(journalEntry{Op: "put", ID: r.ID, Record: &r}); err != nil {
		return nil, err
	}
	s.rs.apply(r)
	s.maybeCompactLocked()
	if j.ID == 0 {
		j.ID = r.ID
	}
	return j, nil
}

func (s *fileStore) Delete(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	id := j.ID
	if id == 0 {
		id = s.rs.byName[j.Name]
	}
	if _, ok := s.rs.byID[id]; !ok {
		return nil
	}
	if err := s.appendLocked(journalEntry{Op: "del", ID: id}); err != nil {
		return err
	}
	s.rs.remove(id)
	s.maybeCompactLocked()
	return nil
}

// Compact folds the journal into a fresh snapshot.
func (s *fileStore) Compact(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	return s.compactLocked()
}

func (s *fileStore) appendLocked(e journalEntry) error {
	return json.NewEncoder(s.journal).Encode(e)
}

func (s *fileStore) maybeCompactLocked() {
	s.writes++
	if s.writes%s.compactEvery != 0 {
		return
	}
	if err := s.compactLocked(); err != nil {
		s.log.Warn("job journal compact failed", logx.Err(err))
	}
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	snap := snapshotFile{NextID: s.rs.nextID, Records: s.rs.list()}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	s.log.Debug("job journal compacted", logx.Int("jobs", len(snap.Records)))
	return err
}

func loadSnapshot(path string, rs *records) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshotFile
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, r := range snap.Records {
		rs.apply(r)
	}
	if snap.NextID > rs.nextID {
		rs.nextID = snap.NextID
	}
	return nil
}

// replayJournal applies journal entries in order and returns how many lines were unreadable.
func replayJournal(path string, rs *records) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e journalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			skipped++
			continue
		}
		switch e.Op {
		case "put":
			if e.Record != nil {
				rs.apply(*e.Record)
			}
		case "del":
			rs.remove(e.ID)
		default:
			skipped++
		}
	}
	return skipped, sc.Err()
}
