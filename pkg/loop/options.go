package loop

import (
	"log/slog"
	"time"
)

const (
	// DefaultFrameInterval is roughly one frame at 60Hz.
	DefaultFrameInterval = 16 * time.Millisecond

	// DefaultQueueSize bounds the macrotask queue of a Loop.
	DefaultQueueSize = 256
)

// Option configures a Loop or a Manual scheduler.
type Option func(*options)

type options struct {
	frameInterval time.Duration
	queueSize     int
	logger        *slog.Logger
	start         time.Time
}

func defaultOptions() options {
	return options{
		frameInterval: DefaultFrameInterval,
		queueSize:     DefaultQueueSize,
		logger:        slog.Default(),
		start:         time.Unix(0, 0).UTC(),
	}
}

// WithFrameInterval sets the period between frame boundaries.
// Non-positive values are ignored.
func WithFrameInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.frameInterval = d
		}
	}
}

// WithQueueSize sets the capacity of the macrotask queue.
// Non-positive values are ignored.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithLogger sets the logger used for dropped callbacks and panics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStart sets the initial virtual time of a Manual scheduler.
// Loop ignores it.
func WithStart(t time.Time) Option {
	return func(o *options) {
		o.start = t
	}
}
