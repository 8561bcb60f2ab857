package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testAction() Action { return Action{URL: "http://example.test/hook"} }

func TestOneTimeJobFiresOnce(t *testing.T) {
	j, err := NewOneTime("a", testAction(), base.Add(100*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, j.Recurring())
	assert.Equal(t, "POST", j.Action.Method)

	inst := j.NextInstance(base, 0)
	require.NotNil(t, inst)
	assert.Equal(t, base.Add(100*time.Millisecond), inst.TimeToRun)
	assert.Same(t, j, inst.Job)

	assert.Nil(t, j.NextInstance(base, 0))
	assert.Nil(t, j.NextInstance(base.Add(time.Hour), 0))
}

func TestOneTimeJobCannotBeSidelined(t *testing.T) {
	j, err := NewOneTime("a", testAction(), base)
	require.NoError(t, err)

	assert.False(t, j.Sideline())
	assert.False(t, j.Unsideline())
	assert.False(t, j.RecordNotFound(1))
	assert.False(t, j.Sidelined())
	assert.False(t, j.ShouldBeSidelined(1))
}

func TestScheduledJobInstanceCount(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		span     time.Duration
		interval time.Duration
	}{
		{"exact multiple", 10 * time.Second, 2 * time.Second},
		{"remainder", 10*time.Second + 999*time.Millisecond, 2 * time.Second},
		{"single point", 0, time.Second},
		{"interval larger than span", time.Second, time.Minute},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sched := Schedule{Start: base, End: base.Add(tc.span), Interval: tc.interval}
			j, err := NewScheduled("b", testAction(), sched)
			require.NoError(t, err)

			want := int(tc.span/tc.interval) + 1

			var got []time.Time
			now := base
			for inst := j.NextInstance(now, 0); inst != nil; inst = j.NextInstance(now, 0) {
				got = append(got, inst.TimeToRun)
				now = inst.TimeToRun
			}
			require.Len(t, got, want)
			for i, at := range got {
				assert.Equal(t, base.Add(time.Duration(i)*tc.interval), at)
			}
		})
	}
}

func TestScheduledJobSkipsPastPoints(t *testing.T) {
	j, err := NewScheduled("b", testAction(), Schedule{Start: base, End: base.Add(10 * time.Second), Interval: 2 * time.Second})
	require.NoError(t, err)

	inst := j.NextInstance(base.Add(4500*time.Millisecond), 0)
	require.NotNil(t, inst)
	assert.Equal(t, base.Add(6*time.Second), inst.TimeToRun)

	assert.Nil(t, j.NextInstance(base.Add(11*time.Second), 0))
}

func TestFirstInstanceAcceptsPointWithinGrace(t *testing.T) {
	sched := Schedule{Start: base, End: base.Add(10 * time.Second), Interval: 2 * time.Second}

	j, err := NewScheduled("b", testAction(), sched)
	require.NoError(t, err)
	inst := j.NextInstance(base.Add(3*time.Millisecond), 5*time.Second)
	require.NotNil(t, inst)
	assert.Equal(t, base, inst.TimeToRun)

	// Grace only applies to the first instance.
	inst = j.NextInstance(base.Add(3*time.Millisecond), 5*time.Second)
	require.NotNil(t, inst)
	assert.Equal(t, base.Add(2*time.Second), inst.TimeToRun)

	j, err = NewScheduled("c", testAction(), sched)
	require.NoError(t, err)
	inst = j.NextInstance(base.Add(4500*time.Millisecond), time.Second)
	require.NotNil(t, inst)
	assert.Equal(t, base.Add(4*time.Second), inst.TimeToRun)
}

func TestScheduledJobBeforeStart(t *testing.T) {
	j, err := NewScheduled("b", testAction(), Schedule{Start: base, End: base.Add(time.Minute), Interval: time.Second})
	require.NoError(t, err)

	inst := j.NextInstance(base.Add(-time.Hour), 0)
	require.NotNil(t, inst)
	assert.Equal(t, base, inst.TimeToRun)
}

func TestSidelineLifecycle(t *testing.T) {
	j, err := NewScheduled("b", testAction(), Schedule{Start: base, End: base.Add(time.Minute), Interval: time.Second})
	require.NoError(t, err)

	assert.False(t, j.RecordNotFound(3))
	assert.False(t, j.RecordNotFound(3))
	assert.True(t, j.RecordNotFound(3))
	assert.True(t, j.Sidelined())
	assert.Equal(t, 3, j.NotFoundCount())
	assert.Nil(t, j.NextInstance(base, 0))

	// Further outcomes on a sidelined job change nothing.
	assert.False(t, j.RecordNotFound(3))
	assert.Equal(t, 3, j.NotFoundCount())
	assert.False(t, j.Sideline())

	assert.True(t, j.Unsideline())
	assert.False(t, j.Sidelined())
	assert.Zero(t, j.NotFoundCount())
	assert.False(t, j.Unsideline())
	assert.NotNil(t, j.NextInstance(base, 0))
}

func TestResetNotFound(t *testing.T) {
	j, err := NewScheduled("b", testAction(), Schedule{Start: base, End: base.Add(time.Minute), Interval: time.Second})
	require.NoError(t, err)

	assert.False(t, j.ResetNotFound())
	j.RecordNotFound(3)
	j.RecordNotFound(3)
	assert.True(t, j.ResetNotFound())
	assert.Zero(t, j.NotFoundCount())
	j.RecordNotFound(3)
	assert.False(t, j.Sidelined())
}

func TestShouldBeSidelinedAfterThresholdDrop(t *testing.T) {
	j, err := NewScheduled("b", testAction(), Schedule{Start: base, End: base.Add(time.Minute), Interval: time.Second})
	require.NoError(t, err)

	j.RecordNotFound(5)
	j.RecordNotFound(5)
	inst := j.NextInstance(base, 0)
	assert.False(t, inst.ShouldBeSidelined(3))
	assert.True(t, inst.ShouldBeSidelined(2))
	assert.False(t, inst.ShouldBeSidelined(0))
}

func TestNewScheduledValidation(t *testing.T) {
	t.Parallel()
	_, err := NewScheduled("", testAction(), Schedule{Start: base, End: base, Interval: time.Second})
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = NewScheduled("x", testAction(), Schedule{Start: base, End: base, Interval: 0})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = NewScheduled("x", testAction(), Schedule{Start: base, End: base.Add(-time.Second), Interval: time.Second})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = NewOneTime("x", testAction(), time.Time{})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestRecordRoundTripKeepsSidelineState(t *testing.T) {
	j, err := NewScheduled("b", Action{Method: "put", URL: " http://x.test/a ", Headers: map[string]string{"X-Key": "1"}},
		Schedule{Start: base, End: base.Add(time.Minute), Interval: 1500 * time.Millisecond})
	require.NoError(t, err)
	j.ID = 7
	j.RecordNotFound(3)
	j.RecordNotFound(3)
	j.RecordNotFound(3)

	r := j.Record()
	assert.Equal(t, int64(1500), r.IntervalMS)
	assert.Equal(t, "PUT", r.Action.Method)
	assert.Equal(t, "http://x.test/a", r.Action.URL)

	back, err := FromRecord(r)
	require.NoError(t, err)
	assert.Equal(t, int64(7), back.ID)
	assert.True(t, back.Sidelined())
	assert.Equal(t, 3, back.NotFoundCount())
	assert.Equal(t, j.Schedule, back.Schedule)
	assert.Equal(t, j.CreatedAt, back.CreatedAt)

	_, err = FromRecord(Record{Name: "z", Kind: "weekly"})
	assert.Error(t, err)
}

func TestParseInterval(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "2s", want: 2 * time.Second},
		{in: "00:50", want: 50 * time.Minute},
		{in: "02:30", want: 2*time.Hour + 30*time.Minute},
		{in: "every: 5m", want: 5 * time.Minute},
		{in: "interval:1h", want: time.Hour},
		{in: "", wantErr: true},
		{in: "00:00", wantErr: true},
		{in: "01:75", wantErr: true},
		{in: "-3s", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tc := range cases {
		d, err := ParseInterval(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, d, tc.in)
	}
}
