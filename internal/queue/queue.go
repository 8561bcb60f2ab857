// Package queue holds pending job instances ordered by due time.
package queue

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"jobsched/internal/job"
)

// Queue is a min-priority queue of job instances keyed by TimeToRun.
// Instances with equal TimeToRun come out in insertion order.
// All methods are safe for concurrent use.
type Queue struct {
	mu  sync.Mutex
	h   instHeap
	seq uint64
}

func New() *Queue { return &Queue{} }

type entry struct {
	inst *job.Instance
	seq  uint64
}

type instHeap []entry

func (h instHeap) Len() int { return len(h) }
func (h instHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if !a.inst.TimeToRun.Equal(b.inst.TimeToRun) {
		return a.inst.TimeToRun.Before(b.inst.TimeToRun)
	}
	return a.seq < b.seq
}
func (h instHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *instHeap) Push(x any)   { *h = append(*h, x.(entry)) }
func (h *instHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return e
}

func (q *Queue) Push(inst *job.Instance) {
	if inst == nil {
		return
	}
	q.mu.Lock()
	q.seq++
	heap.Push(&q.h, entry{inst: inst, seq: q.seq})
	q.mu.Unlock()
}

// Peek returns the earliest instance without removing it.
func (q *Queue) Peek() *job.Instance {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0].inst
}

// PopDue removes and returns the earliest instance only if it is due at now.
func (q *Queue) PopDue(now time.Time) *job.Instance {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 || q.h[0].inst.TimeToRun.After(now) {
		return nil
	}
	return heap.Pop(&q.h).(entry).inst
}

// PopIf removes the head only if it is exactly inst.
func (q *Queue) PopIf(inst *job.Instance) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 || q.h[0].inst != inst {
		return false
	}
	heap.Pop(&q.h)
	return true
}

// RemoveFunc removes every instance matching fn and returns how many were removed.
func (q *Queue) RemoveFunc(fn func(*job.Instance) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.h[:0]
	removed := 0
	for _, e := range q.h {
		if fn(e.inst) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.h); i++ {
		q.h[i] = entry{}
	}
	q.h = kept
	if removed > 0 {
		heap.Init(&q.h)
	}
	return removed
}

func (q *Queue) RemoveByName(name string) int {
	return q.RemoveFunc(func(i *job.Instance) bool { return i.Job.SameNameAs(name) })
}

func (q *Queue) ContainsName(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.h {
		if e.inst.Job.SameNameAs(name) {
			return true
		}
	}
	return false
}

// Clear drops every pending instance and returns how many there were.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.h)
	q.h = nil
	return n
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// Snapshot returns the pending instances in dispatch order.
func (q *Queue) Snapshot() []*job.Instance {
	q.mu.Lock()
	es := make([]entry, len(q.h))
	copy(es, q.h)
	q.mu.Unlock()

	sort.Slice(es, func(i, j int) bool { return instHeap(es).Less(i, j) })
	out := make([]*job.Instance, len(es))
	for i, e := range es {
		out[i] = e.inst
	}
	return out
}
