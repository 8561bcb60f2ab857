package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoRestartRecoversPanicImmediately(t *testing.T) {
	s := NewSupervisor(context.Background())
	defer s.Stop(context.Background())

	var runs atomic.Int32
	var hooked atomic.Int32
	done := make(chan struct{})

	s.GoRestart("loop", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			panic("queue exploded")
		}
		close(done)
		<-ctx.Done()
		return nil
	},
		WithRestartBackoff(time.Hour, time.Hour),
		WithImmediateRestart(true),
		WithOnRestart(func(name string, restarts int, err error) {
			assert.Equal(t, "loop", name)
			assert.Equal(t, 1, restarts)
			assert.ErrorContains(t, err, "queue exploded")
			hooked.Add(1)
		}),
	)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop was not restarted")
	}
	assert.Equal(t, int32(2), runs.Load())
	assert.Equal(t, int32(1), hooked.Load())

	stats := s.Snapshot()
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(1), stats[0].Panics)
	assert.Equal(t, uint64(1), stats[0].Restarts)
	assert.True(t, stats[0].Active)
}

func TestGoRestartCleanExitIsNotRestarted(t *testing.T) {
	s := NewSupervisor(context.Background())

	var runs atomic.Int32
	s.GoRestart("once", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, WithImmediateRestart(true))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Cancel()
	require.NoError(t, s.Wait(ctx))
	assert.Equal(t, int32(1), runs.Load())
}

func TestGoRestartGivesUp(t *testing.T) {
	s := NewSupervisor(context.Background(), WithCancelOnError(true))

	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("nope")
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond), WithMaxRestarts(2))

	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor was not canceled")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "flaky: nope")
	assert.Equal(t, int32(3), runs.Load())
}

func TestGoRecordsPanicAsError(t *testing.T) {
	s := NewSupervisor(context.Background())
	s.Go("boom", func(ctx context.Context) error { panic("bad") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "panic: bad")
	assert.Zero(t, s.Active())
}
