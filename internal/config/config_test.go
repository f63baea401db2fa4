package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/refs/internal/errors"
	"github.com/vango-dev/refs/pkg/loop"
	"github.com/vango-dev/refs/pkg/refs"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))
	return dir
}

func TestNew_Defaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, loop.DefaultFrameInterval, cfg.Loop.FrameInterval)
	assert.Equal(t, loop.DefaultQueueSize, cfg.Loop.QueueSize)
	assert.Equal(t, DefaultAddr, cfg.Inspect.Addr)
	assert.Equal(t, DefaultHeartbeat, cfg.Inspect.Heartbeat)
	assert.Equal(t, DefaultNamespace, cfg.Metrics.Namespace)
	assert.Equal(t, DefaultWrites, cfg.Bench.Writes)
	assert.Equal(t, DefaultFanout, cfg.Bench.Fanout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOptional_MissingFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, New(), cfg)
}

func TestLoadOptional_ParsesFile(t *testing.T) {
	dir := writeConfig(t, `
log:
  level: debug
  format: json
loop:
  frameInterval: 8ms
inspect:
  addr: ":9000"
limits:
  search:
    strategy: debounce
    interval: 250ms
  scroll:
    strategy: throttle
    timing: frame
bench:
  writes: 50
`)

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8*time.Millisecond, cfg.Loop.FrameInterval)
	assert.Equal(t, loop.DefaultQueueSize, cfg.Loop.QueueSize)
	assert.Equal(t, ":9000", cfg.Inspect.Addr)
	assert.Equal(t, 50, cfg.Bench.Writes)
	assert.Equal(t, DefaultFanout, cfg.Bench.Fanout)
	assert.Equal(t, filepath.Join(dir, ConfigFileName), cfg.Path())

	search, err := cfg.Limits["search"].LimitConfig()
	require.NoError(t, err)
	assert.Equal(t, refs.LimitConfig{Strategy: refs.Debounce, Timing: refs.TimingTimeout, Interval: 250 * time.Millisecond}, search)

	scroll, err := cfg.Limits["scroll"].LimitConfig()
	require.NoError(t, err)
	assert.Equal(t, refs.Throttle, scroll.Strategy)
	assert.Equal(t, refs.TimingFrame, scroll.Timing)
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    string
		target  error
	}{
		{"invalid yaml", "log: [", "R101", nil},
		{"bad level", "log:\n  level: loud\n", "R102", nil},
		{"bad format", "log:\n  format: xml\n", "R102", nil},
		{"unknown timing", "limits:\n  a:\n    strategy: debounce\n    timing: idle\n", "R103", refs.ErrUnknownTiming},
		{"missing interval", "limits:\n  a:\n    strategy: throttle\n", "R102", refs.ErrInvalidInterval},
		{"throttle on ticks", "limits:\n  a:\n    strategy: throttle\n    timing: tick\n", "R102", refs.ErrUnsupportedTiming},
		{"unknown strategy", "limits:\n  a:\n    strategy: sample\n    interval: 1s\n", "R102", refs.ErrUnknownStrategy},
		{"negative queue", "loop:\n  queueSize: -1\n", "R102", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.content)
			_, err := LoadOptional(dir)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.code), "expected code %s, got %v", tt.code, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	cfg := New()
	cfg.Inspect.Addr = ":8181"
	cfg.Limits = map[string]LimitSpec{
		"search": {Strategy: "debounce", Timing: "timeout", Interval: 300 * time.Millisecond},
	}

	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, cfg.SaveTo(path))
	assert.Equal(t, path, cfg.Path())

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":8181", loaded.Inspect.Addr)
	assert.Equal(t, cfg.Limits, loaded.Limits)
	assert.Equal(t, cfg.Loop, loaded.Loop)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := New()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"key":"value"`)
}

func TestLoopOptions(t *testing.T) {
	cfg := New()
	cfg.Loop.FrameInterval = 5 * time.Millisecond

	l := loop.New(cfg.LoopOptions(nil)...)
	assert.Equal(t, 5*time.Millisecond, l.FrameInterval())
}
