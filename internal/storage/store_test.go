package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type driverCase struct {
	name string
	open func(t *testing.T, dir string) Store
}

func drivers() []driverCase {
	return []driverCase{
		{"memory", func(t *testing.T, _ string) Store { return NewMemory() }},
		{"file", func(t *testing.T, dir string) Store {
			st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "jobs.db")}, logx.Nop())
			require.NoError(t, err)
			return st
		}},
		{"sqlite", func(t *testing.T, dir string) Store {
			st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "jobs.db")}, logx.Nop())
			require.NoError(t, err)
			return st
		}},
	}
}

func scheduled(t *testing.T, name string) *job.Job {
	t.Helper()
	j, err := job.NewScheduled(name, job.Action{
		Method:  "POST",
		URL:     "http://example.test/" + name,
		Body:    `{"ping":true}`,
		Headers: map[string]string{"X-Token": "t"},
	}, job.Schedule{Start: base, End: base.Add(time.Hour), Interval: 2 * time.Second})
	require.NoError(t, err)
	return j
}

func oneTime(t *testing.T, name string) *job.Job {
	t.Helper()
	j, err := job.NewOneTime(name, job.Action{URL: "http://example.test/" + name}, base.Add(100*time.Millisecond))
	require.NoError(t, err)
	return j
}

func TestStoreContract(t *testing.T) {
	for _, d := range drivers() {
		d := d
		t.Run(d.name, func(t *testing.T) {
			ctx := context.Background()
			st := d.open(t, t.TempDir())
			defer st.Close()

			a := scheduled(t, "a")
			saved, err := st.Save(ctx, a)
			require.NoError(t, err)
			assert.Same(t, a, saved)
			require.NotZero(t, a.ID)

			b := oneTime(t, "b")
			_, err = st.Save(ctx, b)
			require.NoError(t, err)
			assert.Greater(t, b.ID, a.ID)

			_, err = st.Save(ctx, scheduled(t, "a"))
			assert.ErrorIs(t, err, ErrDuplicateName)

			got, err := st.FindByName(ctx, "a")
			require.NoError(t, err)
			assert.NotSame(t, a, got)
			assert.Equal(t, a.ID, got.ID)
			assert.Equal(t, job.KindScheduled, got.Kind)
			assert.Equal(t, a.Action, got.Action)
			assert.True(t, a.Schedule.Start.Equal(got.Schedule.Start))
			assert.True(t, a.Schedule.End.Equal(got.Schedule.End))
			assert.Equal(t, a.Schedule.Interval, got.Schedule.Interval)

			got, err = st.FindByID(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, "b", got.Name)
			assert.True(t, b.TriggerTime.Equal(got.TriggerTime))

			_, err = st.FindByName(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = st.FindByID(ctx, 9999)
			assert.ErrorIs(t, err, ErrNotFound)

			all, err := st.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "a", all[0].Name)
			assert.Equal(t, "b", all[1].Name)

			require.NoError(t, st.Delete(ctx, b))
			require.NoError(t, st.Delete(ctx, b))
			_, err = st.FindByName(ctx, "b")
			assert.ErrorIs(t, err, ErrNotFound)

			// Updating a deleted record must not bring it back.
			_, err = st.Save(ctx, b)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = st.FindByName(ctx, "b")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreKeepsSidelineState(t *testing.T) {
	for _, d := range drivers() {
		d := d
		t.Run(d.name, func(t *testing.T) {
			ctx := context.Background()
			st := d.open(t, t.TempDir())
			defer st.Close()

			a := scheduled(t, "a")
			_, err := st.Save(ctx, a)
			require.NoError(t, err)

			a.RecordNotFound(3)
			a.RecordNotFound(3)
			_, err = st.Save(ctx, a)
			require.NoError(t, err)
			got, err := st.FindByName(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, 2, got.NotFoundCount())
			assert.False(t, got.Sidelined())

			a.RecordNotFound(3)
			_, err = st.Save(ctx, a)
			require.NoError(t, err)
			got, err = st.FindByID(ctx, a.ID)
			require.NoError(t, err)
			assert.True(t, got.Sidelined())
			assert.Equal(t, 3, got.NotFoundCount())
		})
	}
}

func TestDurableDriversSurviveReopen(t *testing.T) {
	for _, d := range drivers()[1:] {
		d := d
		t.Run(d.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			st := d.open(t, dir)
			a := scheduled(t, "a")
			_, err := st.Save(ctx, a)
			require.NoError(t, err)
			b := oneTime(t, "b")
			_, err = st.Save(ctx, b)
			require.NoError(t, err)
			a.RecordNotFound(1)
			_, err = st.Save(ctx, a)
			require.NoError(t, err)
			require.NoError(t, st.Delete(ctx, b))
			require.NoError(t, st.Close())

			st = d.open(t, dir)
			defer st.Close()
			all, err := st.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "a", all[0].Name)
			assert.True(t, all[0].Sidelined())

			// IDs keep growing after a reopen.
			c := oneTime(t, "c")
			_, err = st.Save(ctx, c)
			require.NoError(t, err)
			assert.Greater(t, c.ID, b.ID)
		})
	}
}

func TestFileStoreCompaction(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.db")

	fs, err := openFile(Config{Path: path, CompactEvery: 3}, logx.Nop())
	require.NoError(t, err)
	for _, n := range []string{"a", "b", "c", "d"} {
		_, err := fs.Save(ctx, oneTime(t, n))
		require.NoError(t, err)
	}
	require.NoError(t, fs.Compact(ctx))
	require.NoError(t, fs.Close())

	fs, err = openFile(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	defer fs.Close()
	all, err := fs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mongo"}, logx.Nop())
	assert.Error(t, err)

	st, err := Open(Config{}, logx.Logger{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}
