package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsched/internal/job"
	"jobsched/internal/task/engine"
	logx "jobsched/pkg/logx"
)

type stubInvoker struct {
	mu   sync.Mutex
	seen []job.Action
	out  job.Outcome
}

func (s *stubInvoker) Invoke(_ context.Context, a job.Action) job.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, a)
	return s.out
}

type rejectingPool struct{ err error }

func (p rejectingPool) Enqueue(engine.Task) error { return p.err }

func instance(t *testing.T, name string) *job.Instance {
	t.Helper()
	j, err := job.NewOneTime(name, job.Action{URL: "http://example.test/" + name}, time.Now())
	require.NoError(t, err)
	return j.NextInstance(time.Now(), 0)
}

func TestExecuteAsyncReportsOutcome(t *testing.T) {
	pool := engine.New(engine.Config{Workers: 2}, logx.Nop(), nil)
	pool.Start(context.Background())
	defer pool.Stop(context.Background())

	inv := &stubInvoker{out: job.NotFound(404)}
	x := New(pool, inv, logx.Nop())

	got := make(chan job.Outcome, 1)
	require.NoError(t, x.ExecuteAsync(instance(t, "a"), func(o job.Outcome) { got <- o }))

	select {
	case o := <-got:
		assert.Equal(t, job.OutcomeNotFound, o.Kind)
		assert.Equal(t, 404, o.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("outcome was not reported")
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	require.Len(t, inv.seen, 1)
	assert.Equal(t, "http://example.test/a", inv.seen[0].URL)

	require.Eventually(t, func() bool { return len(pool.Snapshot().History) == 1 }, time.Second, 5*time.Millisecond)
	h := pool.Snapshot().History
	assert.Equal(t, "job:a", h[0].Name)
	assert.Len(t, h[0].ID, 36)
}

func TestExecuteAsyncRejectionIsReturned(t *testing.T) {
	x := New(rejectingPool{err: engine.ErrQueueFull}, &stubInvoker{}, logx.Nop())
	called := false
	err := x.ExecuteAsync(instance(t, "a"), func(job.Outcome) { called = true })
	assert.ErrorIs(t, err, engine.ErrQueueFull)
	assert.False(t, called)
}

func TestDroppedTaskReportsFailure(t *testing.T) {
	pool := engine.New(engine.Config{Workers: 1, QueueSize: 4}, logx.Nop(), nil)
	pool.Start(context.Background())

	started := make(chan struct{})
	require.NoError(t, pool.Enqueue(engine.Task{Name: "block", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	}}))
	<-started

	x := New(pool, &stubInvoker{out: job.Success(200)}, logx.Nop())
	got := make(chan job.Outcome, 1)
	require.NoError(t, x.ExecuteAsync(instance(t, "a"), func(o job.Outcome) { got <- o }))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pool.Stop(ctx)

	select {
	case o := <-got:
		assert.Equal(t, job.OutcomeFailure, o.Kind)
		assert.True(t, errors.Is(o.Err, engine.ErrStopped))
	case <-time.After(2 * time.Second):
		t.Fatal("drop was not reported")
	}
}

func TestExecuteAsyncRejectsNilInstance(t *testing.T) {
	x := New(rejectingPool{}, &stubInvoker{}, logx.Nop())
	assert.Error(t, x.ExecuteAsync(nil, nil))
}
