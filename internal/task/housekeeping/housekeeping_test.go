package housekeeping

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsched/internal/storage"
	"jobsched/internal/task/engine"
	"jobsched/internal/task/scheduler"
	logx "jobsched/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	cases := []struct {
		in    string
		kind  SpecKind
		cron  string
		every time.Duration
		err   bool
	}{
		{in: "*/5 * * * *", kind: SpecCron, cron: "*/5 * * * *"},
		{in: "@hourly", kind: SpecCron, cron: "@hourly"},
		{in: "cron: 0 30 3 * * *", kind: SpecCron, cron: "0 30 3 * * *"},
		{in: "55m", kind: SpecInterval, every: 55 * time.Minute},
		{in: "02:30", kind: SpecInterval, every: 2*time.Hour + 30*time.Minute},
		{in: "every: 10s", kind: SpecInterval, every: 10 * time.Second},
		{in: "interval:1h", kind: SpecInterval, every: time.Hour},
		{in: "", err: true},
		{in: "cron:", err: true},
		{in: "soon", err: true},
		{in: "-5m", err: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			ps, err := ParseSchedule(tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.kind, ps.Kind)
			assert.Equal(t, tc.cron, ps.Cron)
			assert.Equal(t, tc.every, ps.Every)
		})
	}
}

func startPool(t *testing.T) *engine.Service {
	t.Helper()
	p := engine.New(engine.Config{Workers: 2}, logx.Nop(), nil)
	p.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		p.Stop(ctx)
	})
	return p
}

func noop(context.Context) error { return nil }

func TestAddScheduleReplacesByName(t *testing.T) {
	s := New(Config{}, startPool(t), logx.Nop(), nil)

	require.NoError(t, s.AddSchedule("report", "5m", time.Second, noop))
	require.NoError(t, s.AddSchedule("report", "@hourly", time.Second, noop))
	require.NoError(t, s.AddSchedule("compact", "0 3 * * *", time.Minute, noop))

	snap := s.Snapshot()
	assert.False(t, snap.Running)
	require.Len(t, snap.Schedules, 2)
	assert.Equal(t, "report", snap.Schedules[0].Name)
	assert.Equal(t, "@hourly", snap.Schedules[0].Spec)
	assert.Equal(t, "compact", snap.Schedules[1].Name)

	assert.True(t, s.Remove("report"))
	assert.False(t, s.Remove("report"))
	assert.Len(t, s.Snapshot().Schedules, 1)
}

func TestAddScheduleRejectsBadInput(t *testing.T) {
	s := New(Config{}, startPool(t), logx.Nop(), nil)

	assert.Error(t, s.AddSchedule("x", "not a cron", time.Second, noop))
	assert.Error(t, s.AddSchedule("x", "soon", time.Second, noop))
	assert.Error(t, s.AddSchedule("", "5m", time.Second, noop))
	assert.Error(t, s.AddSchedule("x", "5m", time.Second, nil))
	assert.Empty(t, s.Snapshot().Schedules)
}

func TestScheduleRunsOnPool(t *testing.T) {
	pool := startPool(t)
	s := New(Config{Timezone: "UTC"}, pool, logx.Nop(), nil)

	var runs atomic.Int32
	require.NoError(t, s.AddSchedule("tick", "@every 1s", time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	s.Start(context.Background())
	defer s.Stop(context.Background())

	snap := s.Snapshot()
	assert.True(t, snap.Running)
	assert.Equal(t, "UTC", snap.Timezone)
	require.Len(t, snap.Schedules, 1)
	assert.False(t, snap.Schedules[0].Next.IsZero())

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, h := range pool.Snapshot().History {
			if h.Name == "housekeeping:tick" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

type rejectingPool struct{ calls atomic.Int32 }

func (p *rejectingPool) Enqueue(engine.Task) error {
	p.calls.Add(1)
	return engine.ErrQueueFull
}

func TestEnqueueFailureReleasesGate(t *testing.T) {
	pool := &rejectingPool{}
	s := New(Config{}, pool, logx.Nop(), nil)
	require.NoError(t, s.AddSchedule("tick", "@every 1s", time.Second, noop))
	s.Start(context.Background())
	defer s.Stop(context.Background())

	// A held gate would stop every trigger after the first.
	require.Eventually(t, func() bool { return pool.calls.Load() >= 2 }, 4*time.Second, 20*time.Millisecond)
}

type fakeSched struct{ snap scheduler.Snapshot }

func (f fakeSched) Snapshot() scheduler.Snapshot { return f.snap }

func TestStatusReportLogsSnapshot(t *testing.T) {
	var buf bytes.Buffer
	log := logx.NewWriter(&buf, "info")
	run := StatusReport(fakeSched{snap: scheduler.Snapshot{State: "running", QueueLen: 3, Dispatched: 7}}, nil, log)

	require.NoError(t, run(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "scheduler status")
	assert.Contains(t, out, `"queued":3`)
	assert.Contains(t, out, `"dispatched":7`)
}

type failingCompactor struct{}

func (failingCompactor) Compact(context.Context) error { return errors.New("disk full") }

func TestCompactPropagatesError(t *testing.T) {
	err := Compact(failingCompactor{}, logx.Nop())(context.Background())
	assert.EqualError(t, err, "disk full")
}

func TestRegisterSkipsCompactionForMemoryStore(t *testing.T) {
	s := New(Config{}, startPool(t), logx.Nop(), nil)
	cfg := Config{StatusReport: "1m", Compact: "@daily"}

	require.NoError(t, s.Register(cfg, fakeSched{}, nil, storage.NewMemory()))
	snap := s.Snapshot()
	require.Len(t, snap.Schedules, 1)
	assert.Equal(t, StatusReportName, snap.Schedules[0].Name)

	require.NoError(t, s.Register(Config{}, fakeSched{}, nil, storage.NewMemory()))
	assert.Empty(t, s.Snapshot().Schedules)
}
