package config

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/refs/internal/errors"
	"github.com/vango-dev/refs/pkg/loop"
	"github.com/vango-dev/refs/pkg/refs"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "reflab.yaml"

	// DefaultAddr is the default inspector listen address.
	DefaultAddr = "127.0.0.1:7070"

	// DefaultHeartbeat is the default websocket ping interval.
	DefaultHeartbeat = 15 * time.Second

	// DefaultNamespace is the default Prometheus namespace.
	DefaultNamespace = "refs"

	// DefaultWrites is the default number of writes per bench run.
	DefaultWrites = 10000

	// DefaultFanout is the default number of derived references per bench run.
	DefaultFanout = 8
)

// Config represents the complete reflab.yaml configuration.
type Config struct {
	Log     LogConfig            `yaml:"log"`
	Loop    LoopConfig           `yaml:"loop"`
	Inspect InspectConfig        `yaml:"inspect"`
	Metrics MetricsConfig        `yaml:"metrics"`
	Tracing TracingConfig        `yaml:"tracing"`
	Limits  map[string]LimitSpec `yaml:"limits,omitempty"`
	Bench   BenchConfig          `yaml:"bench"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level,omitempty"`

	// Format is text or json.
	Format string `yaml:"format,omitempty"`
}

// LoopConfig configures the event loop.
type LoopConfig struct {
	FrameInterval time.Duration `yaml:"frameInterval,omitempty"`
	QueueSize     int           `yaml:"queueSize,omitempty"`
}

// InspectConfig configures the inspector server.
type InspectConfig struct {
	Addr      string        `yaml:"addr,omitempty"`
	Heartbeat time.Duration `yaml:"heartbeat,omitempty"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Namespace string `yaml:"namespace,omitempty"`
	Subsystem string `yaml:"subsystem,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool `yaml:"enabled,omitempty"`
	Deliveries bool `yaml:"deliveries,omitempty"`
}

// LimitSpec configures a named rate limiter used by the demo scenarios.
type LimitSpec struct {
	// Strategy is debounce or throttle.
	Strategy string `yaml:"strategy"`

	// Timing is timeout, frame or tick (default: timeout).
	Timing string `yaml:"timing,omitempty"`

	// Interval is required for timeout timing.
	Interval time.Duration `yaml:"interval,omitempty"`
}

// BenchConfig configures the bench command.
type BenchConfig struct {
	Writes int `yaml:"writes,omitempty"`
	Fanout int `yaml:"fanout,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadOptional reads reflab.yaml from dir if present. A missing file yields
// the defaults.
func LoadOptional(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); stderrors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	return LoadFile(path)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("R101").Wrap(err).
			WithDetailf("failed to read %s: %v", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("R101").Wrap(err).
			WithDetailf("failed to parse %s: %v", path, err).
			WithSuggestion("Check that " + ConfigFileName + " is valid YAML")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.New("R101").Wrap(err).WithDetail(err.Error())
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New("R101").Wrap(err).WithDetail(err.Error())
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Loop.FrameInterval == 0 {
		c.Loop.FrameInterval = loop.DefaultFrameInterval
	}
	if c.Loop.QueueSize == 0 {
		c.Loop.QueueSize = loop.DefaultQueueSize
	}

	if c.Inspect.Addr == "" {
		c.Inspect.Addr = DefaultAddr
	}
	if c.Inspect.Heartbeat == 0 {
		c.Inspect.Heartbeat = DefaultHeartbeat
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}

	for name, spec := range c.Limits {
		if spec.Timing == "" {
			spec.Timing = string(refs.TimingTimeout)
			c.Limits[name] = spec
		}
	}

	if c.Bench.Writes == 0 {
		c.Bench.Writes = DefaultWrites
	}
	if c.Bench.Fanout == 0 {
		c.Bench.Fanout = DefaultFanout
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.Log.Level); err != nil {
		return errors.New("R102").Wrap(err).WithDetail(err.Error()).
			WithSuggestion("Use one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.New("R102").WithDetailf("log format %q is not text or json", c.Log.Format)
	}

	if c.Loop.FrameInterval < 0 {
		return errors.New("R102").WithDetailf("loop frameInterval must be positive, got %s", c.Loop.FrameInterval)
	}
	if c.Loop.QueueSize < 0 {
		return errors.New("R102").WithDetailf("loop queueSize must be positive, got %d", c.Loop.QueueSize)
	}
	if c.Inspect.Heartbeat < 0 {
		return errors.New("R102").WithDetailf("inspect heartbeat must be positive, got %s", c.Inspect.Heartbeat)
	}
	if c.Bench.Writes < 0 || c.Bench.Fanout < 0 {
		return errors.New("R102").WithDetail("bench writes and fanout must be positive")
	}

	for name, spec := range c.Limits {
		if _, err := spec.LimitConfig(); err != nil {
			code := "R102"
			if stderrors.Is(err, refs.ErrUnknownTiming) {
				code = "R103"
			}
			return errors.New(code).Wrap(err).WithDetailf("limit %q: %v", name, err)
		}
	}
	return nil
}

// LimitConfig converts the spec to a refs.LimitConfig and validates it
// without a scheduler.
func (s LimitSpec) LimitConfig() (refs.LimitConfig, error) {
	var cfg refs.LimitConfig
	switch strings.ToLower(strings.TrimSpace(s.Strategy)) {
	case "debounce":
		cfg.Strategy = refs.Debounce
	case "throttle":
		cfg.Strategy = refs.Throttle
	default:
		return cfg, fmt.Errorf("%w: %q", refs.ErrUnknownStrategy, s.Strategy)
	}

	timing := refs.TimingTimeout
	if s.Timing != "" {
		t, err := refs.ParseTiming(s.Timing)
		if err != nil {
			return cfg, err
		}
		timing = t
	}
	cfg.Timing = timing
	cfg.Interval = s.Interval

	if err := cfg.Validate(nil); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoopOptions returns the loop options described by the configuration.
func (c *Config) LoopOptions(logger *slog.Logger) []loop.Option {
	return []loop.Option{
		loop.WithFrameInterval(c.Loop.FrameInterval),
		loop.WithQueueSize(c.Loop.QueueSize),
		loop.WithLogger(logger),
	}
}

// Logger builds a logger writing to w with the configured level and format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}
