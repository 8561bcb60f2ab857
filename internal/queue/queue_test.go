package queue

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsched/internal/job"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func inst(t *testing.T, name string, at time.Time) *job.Instance {
	t.Helper()
	j, err := job.NewOneTime(name, job.Action{URL: "http://x.test"}, at)
	require.NoError(t, err)
	return &job.Instance{TimeToRun: at, Job: j}
}

// pop removes the head regardless of due time.
func pop(q *Queue) *job.Instance {
	return q.PopDue(base.Add(24 * time.Hour))
}

func TestPopOrdersByDueTimeThenArrival(t *testing.T) {
	q := New()
	q.Push(inst(t, "late", base.Add(3*time.Second)))
	q.Push(inst(t, "tie-1", base.Add(time.Second)))
	q.Push(inst(t, "early", base))
	q.Push(inst(t, "tie-2", base.Add(time.Second)))
	q.Push(inst(t, "tie-3", base.Add(time.Second)))

	var got []string
	for i := pop(q); i != nil; i = pop(q) {
		got = append(got, i.Name())
	}
	assert.Equal(t, []string{"early", "tie-1", "tie-2", "tie-3", "late"}, got)
	assert.Nil(t, q.Peek())
}

func TestMinPriorityUnderRandomInsertions(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	q := New()
	for i := 0; i < 500; i++ {
		q.Push(inst(t, fmt.Sprintf("j%d", i), base.Add(time.Duration(rng.Intn(50))*time.Millisecond)))
	}
	prev := pop(q)
	for cur := pop(q); cur != nil; cur = pop(q) {
		require.False(t, cur.TimeToRun.Before(prev.TimeToRun))
		prev = cur
	}
}

func TestPopDue(t *testing.T) {
	q := New()
	q.Push(inst(t, "a", base.Add(time.Second)))

	assert.Nil(t, q.PopDue(base))
	assert.Equal(t, 1, q.Len())

	got := q.PopDue(base.Add(time.Second))
	require.NotNil(t, got)
	assert.Equal(t, "a", got.Name())
}

func TestPopIfOnlyRemovesHead(t *testing.T) {
	q := New()
	a := inst(t, "a", base)
	b := inst(t, "b", base.Add(time.Second))
	q.Push(a)
	q.Push(b)

	assert.False(t, q.PopIf(b))
	assert.True(t, q.PopIf(a))
	assert.Same(t, b, q.Peek())
}

func TestRemoveByNameLeavesOthers(t *testing.T) {
	q := New()
	x := inst(t, "x", base)
	q.Push(x)
	q.Push(inst(t, "y", base.Add(time.Second)))
	q.Push(&job.Instance{TimeToRun: base.Add(2 * time.Second), Job: x.Job})
	q.Push(inst(t, "z", base.Add(500*time.Millisecond)))

	assert.Equal(t, 2, q.RemoveByName("x"))
	assert.False(t, q.ContainsName("x"))
	assert.True(t, q.ContainsName("y"))

	var names []string
	for _, i := range q.Snapshot() {
		names = append(names, i.Name())
	}
	assert.Equal(t, []string{"z", "y"}, names)
	assert.Zero(t, q.RemoveByName("missing"))
}

func TestClear(t *testing.T) {
	q := New()
	q.Push(inst(t, "a", base))
	q.Push(inst(t, "b", base))
	assert.Equal(t, 2, q.Clear())
	assert.Zero(t, q.Len())
	q.Push(inst(t, "c", base))
	assert.Equal(t, "c", q.Peek().Name())
}

func TestConcurrentAccess(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(inst(t, fmt.Sprintf("w%d-%d", w, i), base.Add(time.Duration(i)*time.Millisecond)))
				_ = q.Peek()
				if i%10 == 0 {
					q.RemoveByName(fmt.Sprintf("w%d-%d", w, i))
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 8*90, q.Len())
}
