package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsched/internal/eventbus"
	logx "jobsched/pkg/logx"
)

func startPool(t *testing.T, cfg Config, bus eventbus.Bus) *Service {
	t.Helper()
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestEnqueueRunsEachTaskOnce(t *testing.T) {
	s := startPool(t, Config{Workers: 3, QueueSize: 64}, nil)

	var runs atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, s.Enqueue(Task{Name: "hit", Run: func(context.Context) error {
			defer wg.Done()
			runs.Add(1)
			return nil
		}}))
	}
	wg.Wait()
	assert.EqualValues(t, 20, runs.Load())

	require.Eventually(t, func() bool { return s.Snapshot().Completed == 20 }, time.Second, 5*time.Millisecond)
	snap := s.Snapshot()
	assert.True(t, snap.Running)
	assert.Len(t, snap.History, 20)
	assert.NotEmpty(t, snap.History[0].ID)
}

func TestFailedTaskIsNotRetried(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8, "task.failed")
	defer unsub()
	s := startPool(t, Config{Workers: 1}, bus)

	var runs atomic.Int32
	require.NoError(t, s.Enqueue(Task{Name: "boom", Run: func(context.Context) error {
		runs.Add(1)
		return errors.New("downstream 500")
	}}))

	select {
	case e := <-events:
		assert.Equal(t, "downstream 500", e.Data.(TaskEvent).Error)
	case <-time.After(time.Second):
		t.Fatal("no task.failed event")
	}
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, runs.Load())
	assert.EqualValues(t, 1, s.Snapshot().Failed)
}

func TestPanickingTaskKeepsWorkerAlive(t *testing.T) {
	s := startPool(t, Config{Workers: 1}, nil)

	require.NoError(t, s.Enqueue(Task{Name: "panic", Run: func(context.Context) error { panic("bad") }}))
	done := make(chan struct{})
	require.NoError(t, s.Enqueue(Task{Name: "after", Run: func(context.Context) error {
		close(done)
		return nil
	}}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}
	require.Eventually(t, func() bool { return s.Snapshot().Failed == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, s.Snapshot().History[0].Error, "panic: bad")
}

func TestQueueFullRejects(t *testing.T) {
	s := startPool(t, Config{Workers: 1, QueueSize: 1}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Enqueue(Task{Name: "block", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started
	require.NoError(t, s.Enqueue(Task{Name: "queued", Run: func(context.Context) error { return nil }}))

	err := s.Enqueue(Task{Name: "overflow", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.EqualValues(t, 1, s.Snapshot().DroppedQueueFull)
	close(release)
}

func TestStaleTaskIsDropped(t *testing.T) {
	s := startPool(t, Config{Workers: 1, QueueSize: 4, MaxQueueDelay: 10 * time.Millisecond}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Enqueue(Task{Name: "block", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	dropped := make(chan error, 1)
	var ran atomic.Bool
	require.NoError(t, s.Enqueue(Task{
		Name:    "late",
		Run:     func(context.Context) error { ran.Store(true); return nil },
		Dropped: func(err error) { dropped <- err },
	}))
	time.Sleep(30 * time.Millisecond)
	close(release)

	select {
	case err := <-dropped:
		assert.ErrorIs(t, err, ErrStaleQueue)
	case <-time.After(time.Second):
		t.Fatal("stale task was not dropped")
	}
	assert.False(t, ran.Load())
	assert.EqualValues(t, 1, s.Snapshot().DroppedStale)
}

func TestTimeoutCancelsTaskContext(t *testing.T) {
	s := startPool(t, Config{Workers: 1, DefaultTimeout: 20 * time.Millisecond}, nil)

	got := make(chan error, 1)
	require.NoError(t, s.Enqueue(Task{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		got <- ctx.Err()
		return ctx.Err()
	}}))
	select {
	case err := <-got:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("task context was not canceled")
	}
}

func TestStopDropsQueuedTasks(t *testing.T) {
	s := New(Config{Workers: 1, QueueSize: 4}, logx.Nop(), nil)
	s.Start(context.Background())

	started := make(chan struct{})
	require.NoError(t, s.Enqueue(Task{Name: "block", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}))
	<-started

	dropped := make(chan error, 1)
	require.NoError(t, s.Enqueue(Task{
		Name:    "waiting",
		Run:     func(context.Context) error { return nil },
		Dropped: func(err error) { dropped <- err },
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	select {
	case err := <-dropped:
		assert.ErrorIs(t, err, ErrStopped)
	default:
		t.Fatal("queued task was not dropped on stop")
	}
	assert.ErrorIs(t, s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}), ErrStopped)
	assert.False(t, s.Snapshot().Running)
}

func TestEnqueueValidation(t *testing.T) {
	s := startPool(t, Config{}, nil)
	assert.Error(t, s.Enqueue(Task{Name: "x"}))
	assert.Error(t, s.Enqueue(Task{Name: "  ", Run: func(context.Context) error { return nil }}))
}
