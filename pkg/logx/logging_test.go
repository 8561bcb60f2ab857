package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFieldsInOrder(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "scheduler"))

	log.Info("job scheduled",
		String("job", "nightly"),
		Int("pending", 3),
		Duration("wait", 1500*time.Millisecond),
		Err(errors.New("boom")),
		String("job", "override"),
	)

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "info", m["level"])
	assert.Equal(t, "job scheduled", m["message"])
	assert.Equal(t, "scheduler", m["comp"])
	assert.Equal(t, float64(3), m["pending"])
	assert.Equal(t, "boom", m["err"])
	assert.Contains(t, m["caller"], "logging_test.go:")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")

	log.Debug("hidden")
	log.Info("hidden too")
	assert.Zero(t, buf.Len())
	assert.False(t, log.Enabled(LevelInfo))
	assert.True(t, log.Enabled(LevelError))

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	assert.True(t, l.IsZero())
	l.Error("nothing happens", String("k", "v"))
	assert.False(t, Nop().IsZero())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]Level{
		"trace":   LevelTrace,
		" DEBUG ": LevelDebug,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in, LevelInfo), in)
	}
	assert.True(t, ValidLevel(""))
	assert.False(t, ValidLevel("loud"))
}

func TestServiceFileSink(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.log")
	svc, log, err := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}})
	require.NoError(t, err)
	defer svc.Close()

	log.With(String("comp", "test")).Info("to file")
	data, err := os.ReadFile(first)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &m))
	assert.Equal(t, "to file", m["message"])
	assert.Equal(t, "test", m["comp"])

	// Derived loggers follow the new level and path.
	second := filepath.Join(dir, "b.log")
	require.NoError(t, svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: second}}))
	assert.False(t, log.Enabled(LevelWarn))
	log.Error("moved")
	data, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Contains(t, string(data), "moved")
}

func TestServiceApplyReportsUnopenableFile(t *testing.T) {
	svc, log, err := New(Config{Level: "info"})
	require.NoError(t, err)
	defer svc.Close()

	bad := filepath.Join(t.TempDir(), "missing", "dir", "x.log")
	err = svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: bad}})
	assert.ErrorContains(t, err, "open log file")
	assert.True(t, log.Enabled(LevelDebug))
}
