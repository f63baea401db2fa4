package refs

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vango-dev/refs/pkg/loop"
)

// Strategy selects how a Limited reference rate-limits writes.
type Strategy int

const (
	// Debounce applies only the last write of a burst, once the interval
	// has passed without another write. Every write restarts the interval.
	Debounce Strategy = iota

	// Throttle applies the first write of a window immediately. Writes
	// inside the window replace a pending value, which is applied when the
	// window ends and opens the next window.
	Throttle
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case Debounce:
		return "debounce"
	case Throttle:
		return "throttle"
	default:
		return "unknown"
	}
}

// Timing is the clock a rate limiter measures its interval on.
type Timing string

const (
	// TimingTimeout uses a real-time interval on the timer tier.
	TimingTimeout Timing = "timeout"

	// TimingFrame waits for the next animation-frame boundary.
	TimingFrame Timing = "frame"

	// TimingTick waits for the next scheduling tick. Debounce only.
	TimingTick Timing = "tick"
)

var timingAliases = map[string]Timing{
	"timeout":        TimingTimeout,
	"timer":          TimingTimeout,
	"frame":          TimingFrame,
	"animationframe": TimingFrame,
	"raf":            TimingFrame,
	"tick":           TimingTick,
	"microtask":      TimingTick,
}

// ParseTiming parses a timing identifier. Matching ignores case and
// surrounding space.
func ParseTiming(s string) (Timing, error) {
	t, ok := timingAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTiming, s)
	}
	return t, nil
}

// LimitConfig configures a Limited reference.
type LimitConfig struct {
	Strategy Strategy

	// Timing defaults to TimingTimeout.
	Timing Timing

	// Interval is required for TimingTimeout and ignored otherwise.
	Interval time.Duration
}

// Validate checks the configuration against a scheduler. A nil scheduler
// skips the frame capability check.
func (c LimitConfig) Validate(s loop.Scheduler) error {
	switch c.Strategy {
	case Debounce, Throttle:
	default:
		return fmt.Errorf("%w: %d", ErrUnknownStrategy, int(c.Strategy))
	}

	switch c.timing() {
	case TimingTimeout:
		if c.Interval <= 0 {
			return fmt.Errorf("%w: got %s", ErrInvalidInterval, c.Interval)
		}
	case TimingFrame:
		if s == nil {
			return nil
		}
		if _, ok := s.(loop.FrameScheduler); !ok {
			return fmt.Errorf("%w: scheduler %T has no frames", ErrUnsupportedTiming, s)
		}
	case TimingTick:
		if c.Strategy == Throttle {
			return fmt.Errorf("%w: throttle cannot use tick timing", ErrUnsupportedTiming)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTiming, string(c.Timing))
	}
	return nil
}

func (c LimitConfig) timing() Timing {
	if c.Timing == "" {
		return TimingTimeout
	}
	return c.Timing
}

// Limited wraps the write path of a reference with debounce or throttle.
// Reads and subscriptions go straight to the origin; only Set is delayed.
type Limited[T any] struct {
	node
	origin   Writable[T]
	strategy Strategy
	timing   Timing
	interval time.Duration
	frames   loop.FrameScheduler

	mu         sync.Mutex
	pending    T
	hasPending bool
	windowOpen bool
	timer      loop.Timer
	gen        uint64
	disposed   bool
}

// Limit wraps origin. Configuration errors are returned here rather than on
// the first write.
func Limit[T any](origin Writable[T], cfg LimitConfig, opts ...Option) (*Limited[T], error) {
	mustObservable(origin, "limit origin")

	n := newNode(KindLimited, runtimeOf(origin), opts)
	if err := cfg.Validate(n.rt.scheduler); err != nil {
		return nil, err
	}
	l := &Limited[T]{
		node:     n,
		origin:   origin,
		strategy: cfg.Strategy,
		timing:   cfg.timing(),
		interval: cfg.Interval,
	}
	if l.timing == TimingFrame {
		l.frames = n.rt.scheduler.(loop.FrameScheduler)
	}
	return l, nil
}

// MustLimit is like Limit but panics on a configuration error.
func MustLimit[T any](origin Writable[T], cfg LimitConfig, opts ...Option) *Limited[T] {
	l, err := Limit(origin, cfg, opts...)
	if err != nil {
		panic(err)
	}
	return l
}

// Debounced wraps origin with a timeout-based debounce.
func Debounced[T any](origin Writable[T], interval time.Duration, opts ...Option) *Limited[T] {
	return MustLimit(origin, LimitConfig{Strategy: Debounce, Timing: TimingTimeout, Interval: interval}, opts...)
}

// Throttled wraps origin with a timeout-based throttle.
func Throttled[T any](origin Writable[T], interval time.Duration, opts ...Option) *Limited[T] {
	return MustLimit(origin, LimitConfig{Strategy: Throttle, Timing: TimingTimeout, Interval: interval}, opts...)
}

// Value returns the origin's current value. Pending writes are not visible.
func (l *Limited[T]) Value() T {
	return l.origin.Value()
}

// Set queues v under the limiter's strategy.
func (l *Limited[T]) Set(v T) {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		l.rt.logger.Debug("write to disposed limiter dropped", "name", l.name, "id", l.id)
		return
	}
	if l.strategy == Debounce {
		l.debounceLocked(v)
		return
	}
	l.throttleLocked(v)
}

// Update sets the value to fn applied to the most recent attempted value,
// which is the pending value if there is one.
func (l *Limited[T]) Update(fn func(T) T) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	base, ok := l.pending, l.hasPending
	l.mu.Unlock()
	if !ok {
		base = l.origin.Value()
	}
	l.Set(fn(base))
}

// Subscribe subscribes to the origin.
func (l *Limited[T]) Subscribe(fn func(T)) Unsubscribe {
	return l.origin.Subscribe(fn)
}

// Watch watches the origin.
func (l *Limited[T]) Watch(fn func(T)) Unsubscribe {
	return l.origin.Watch(fn)
}

// OnChange implements Dependency.
func (l *Limited[T]) OnChange(fn func()) Unsubscribe {
	return l.origin.OnChange(fn)
}

// Pending reports whether a write is waiting to be applied.
func (l *Limited[T]) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasPending
}

// Flush applies the pending write now. Returns false if nothing was pending.
// A throttle window stays open.
func (l *Limited[T]) Flush() bool {
	l.mu.Lock()
	if !l.hasPending {
		l.mu.Unlock()
		return false
	}
	v := l.takePendingLocked()
	if l.strategy == Debounce {
		l.stopTimerLocked()
	}
	l.mu.Unlock()

	l.apply(v)
	return true
}

// Dispose cancels the timer and drops any pending write. Later writes are
// ignored.
func (l *Limited[T]) Dispose() {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return
	}
	l.disposed = true
	l.stopTimerLocked()
	dropped := l.hasPending
	l.takePendingLocked()
	l.mu.Unlock()

	if dropped {
		l.rt.hooks.OnLimit(l.name, l.strategy, LimitDropped)
	}
}

// Strategy returns the configured strategy.
func (l *Limited[T]) Strategy() Strategy {
	return l.strategy
}

func (l *Limited[T]) debounceLocked(v T) {
	superseded := l.hasPending
	l.pending, l.hasPending = v, true
	l.stopTimerLocked()
	gen := l.gen
	l.timer = l.arm(func() { l.fireDebounce(gen) })
	l.mu.Unlock()

	if superseded {
		l.rt.hooks.OnLimit(l.name, l.strategy, LimitSuperseded)
	}
	l.rt.hooks.OnLimit(l.name, l.strategy, LimitDeferred)
}

func (l *Limited[T]) fireDebounce(gen uint64) {
	l.mu.Lock()
	if l.disposed || gen != l.gen || !l.hasPending {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	v := l.takePendingLocked()
	l.mu.Unlock()

	l.apply(v)
}

func (l *Limited[T]) throttleLocked(v T) {
	if !l.windowOpen {
		l.windowOpen = true
		l.timer = l.arm(l.closeWindow)
		l.mu.Unlock()

		l.apply(v)
		return
	}

	superseded := l.hasPending
	l.pending, l.hasPending = v, true
	l.mu.Unlock()

	if superseded {
		l.rt.hooks.OnLimit(l.name, l.strategy, LimitSuperseded)
	}
	l.rt.hooks.OnLimit(l.name, l.strategy, LimitDeferred)
}

// closeWindow ends a throttle window. A pending write is applied and opens
// the next window.
func (l *Limited[T]) closeWindow() {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	if !l.hasPending {
		l.windowOpen = false
		l.mu.Unlock()
		return
	}
	v := l.takePendingLocked()
	l.timer = l.arm(l.closeWindow)
	l.mu.Unlock()

	l.apply(v)
}

func (l *Limited[T]) apply(v T) {
	l.origin.Set(v)
	l.rt.hooks.OnLimit(l.name, l.strategy, LimitApplied)
}

// arm schedules fn on the configured timing base. Tick callbacks cannot be
// stopped, so arm returns nil for them and debounce relies on gen instead.
func (l *Limited[T]) arm(fn func()) loop.Timer {
	switch l.timing {
	case TimingFrame:
		return l.frames.Frame(fn)
	case TimingTick:
		l.rt.scheduler.Tick(fn)
		return nil
	default:
		return l.rt.scheduler.After(l.interval, fn)
	}
}

func (l *Limited[T]) stopTimerLocked() {
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Limited[T]) takePendingLocked() T {
	v := l.pending
	var zero T
	l.pending, l.hasPending = zero, false
	return v
}

var _ Writable[int] = (*Limited[int])(nil)
