package storage

import (
	"context"
	"sort"
	"sync"

	"jobsched/internal/job"
)

// records is the in-memory index shared by the memory and file drivers.
type records struct {
	byID   map[int64]job.Record
	byName map[string]int64
	nextID int64
}

func newRecords() *records {
	return &records{byID: map[int64]job.Record{}, byName: map[string]int64{}}
}

// prepare validates an insert or update and assigns the ID of a new record.
// It does not modify rs.
func (rs *records) prepare(r job.Record) (job.Record, error) {
	if r.ID == 0 {
		if _, dup := rs.byName[r.Name]; dup {
			return job.Record{}, ErrDuplicateName
		}
		r.ID = rs.nextID + 1
		return r, nil
	}
	prev, ok := rs.byID[r.ID]
	if !ok {
		return job.Record{}, ErrNotFound
	}
	if prev.Name != r.Name {
		if _, dup := rs.byName[r.Name]; dup {
			return job.Record{}, ErrDuplicateName
		}
	}
	return r, nil
}

// apply stores r unconditionally (also used for journal replay).
func (rs *records) apply(r job.Record) {
	if prev, ok := rs.byID[r.ID]; ok && prev.Name != r.Name {
		delete(rs.byName, prev.Name)
	}
	rs.byID[r.ID] = r
	rs.byName[r.Name] = r.ID
	if r.ID > rs.nextID {
		rs.nextID = r.ID
	}
}

func (rs *records) remove(id int64) bool {
	r, ok := rs.byID[id]
	if !ok {
		return false
	}
	delete(rs.byID, id)
	if rs.byName[r.Name] == id {
		delete(rs.byName, r.Name)
	}
	return true
}

func (rs *records) list() []job.Record {
	out := make([]job.Record, 0, len(rs.byID))
	for _, r := range rs.byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func buildAll(rs []job.Record) ([]*job.Job, error) {
	out := make([]*job.Job, 0, len(rs))
	for _, r := range rs {
		j, err := job.FromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// Memory is a process-local Store.
type Memory struct {
	mu sync.Mutex
	rs *records
}

func NewMemory() *Memory { return &Memory{rs: newRecords()} }

func (m *Memory) FindByName(_ context.Context, name string) (*job.Job, error) {
	m.mu.Lock()
	id, ok := m.rs.byName[name]
	r := m.rs.byID[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return job.FromRecord(r)
}

func (m *Memory) FindByID(_ context.Context, id int64) (*job.Job, error) {
	m.mu.Lock()
	r, ok := m.rs.byID[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return job.FromRecord(r)
}

func (m *Memory) Save(_ context.Context, j *job.Job) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.rs.prepare(j.Record())
	if err != nil {
		return nil, err
	}
	m.rs.apply(r)
	if j.ID == 0 {
		j.ID = r.ID
	}
	return j, nil
}

func (m *Memory) Delete(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := j.ID
	if id == 0 {
		id = m.rs.byName[j.Name]
	}
	m.rs.remove(id)
	return nil
}

func (m *Memory) List(_ context.Context) ([]*job.Job, error) {
	m.mu.Lock()
	rs := m.rs.list()
	m.mu.Unlock()
	return buildAll(rs)
}

func (m *Memory) Close() error { return nil }
