package loop

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRunning is returned by Run when the loop is already running.
var ErrRunning = errors.New("loop: already running")

// Scheduler is the set of asynchronous tiers a host provides to the
// reactive core.
type Scheduler interface {
	// Tick queues fn on the scheduling-tick tier. Tick callbacks run after
	// the current callback returns and before any timer or frame callback.
	Tick(fn func())

	// After queues fn on the timer tier, to run once d has elapsed.
	After(d time.Duration, fn func()) Timer

	// Now returns the scheduler's notion of the current time.
	Now() time.Time
}

// FrameScheduler is implemented by schedulers that can also run callbacks
// at animation-frame boundaries.
type FrameScheduler interface {
	Scheduler

	// Frame queues fn to run at the next frame boundary.
	Frame(fn func()) Timer
}

// Dispatcher is implemented by schedulers that accept work from other
// goroutines. Reactive state owned by the scheduler is only written from
// callbacks it runs, so other goroutines hand their writes over through
// Dispatch.
type Dispatcher interface {
	// Dispatch queues fn to run on the scheduler's goroutine. Returns false
	// if fn was not accepted.
	Dispatch(fn func()) bool
}

// Timer is a handle to a queued timer or frame callback.
type Timer interface {
	// Stop cancels the callback. It returns false if the callback already
	// ran or was already stopped.
	Stop() bool
}

const (
	taskPending int32 = iota
	taskRan
	taskStopped
)

// task is a cancellable callback shared by the timer and frame tiers.
type task struct {
	fn    func()
	state atomic.Int32
	timer atomic.Pointer[time.Timer]
}

func newTask(fn func()) *task {
	return &task{fn: fn}
}

// Stop implements Timer.
func (t *task) Stop() bool {
	if !t.state.CompareAndSwap(taskPending, taskStopped) {
		return false
	}
	if timer := t.timer.Load(); timer != nil {
		timer.Stop()
	}
	return true
}

// claim marks the task as ran. Returns false if it was stopped.
func (t *task) claim() bool {
	return t.state.CompareAndSwap(taskPending, taskRan)
}

func (t *task) pending() bool {
	return t.state.Load() == taskPending
}

// Loop is a single-goroutine event loop. Every callback queued through
// Dispatch, Tick, After or Frame runs on the goroutine that called Run, so
// reactive state touched only from callbacks needs no further coordination.
//
// After each macrotask (a dispatched function, a timer or a frame callback)
// the tick queue is drained to empty before the next macrotask starts.
//
// Tick, After and Frame may be called from any goroutine, but a tick queued
// from outside the loop can run between two callbacks of the caller's own
// sequence. Code that writes reactive state from another goroutine does so
// inside Dispatch.
type Loop struct {
	options options
	logger  *slog.Logger

	// tasks carries macrotasks into the loop.
	tasks chan func()

	// wake is signalled when ticks or frames are queued from outside the
	// loop goroutine. Buffered to one so signals coalesce.
	wake chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	running   atomic.Bool

	mu     sync.Mutex
	ticks  []func()
	frames []*task

	// due holds fired timers. It is unbounded so a full task queue never
	// loses a timer.
	due []*task
}

// New creates a loop. The loop does nothing until Run or Start is called.
func New(opts ...Option) *Loop {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Loop{
		options: o,
		logger:  o.logger.With("component", "loop"),
		tasks:   make(chan func(), o.queueSize),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Run processes callbacks until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	ticker := time.NewTicker(l.options.frameInterval)
	defer ticker.Stop()

	l.drain()
	for {
		// Only listen for frame boundaries while someone is waiting on one.
		var frameC <-chan time.Time
		if l.hasFrames() {
			frameC = ticker.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.tasks:
			l.execute(fn)
		case <-l.wake:
		case <-frameC:
			l.runFrames()
		}
		l.drain()
		l.runDue()
	}
}

// Start runs the loop on a new goroutine.
func (l *Loop) Start(ctx context.Context) {
	go func() {
		if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("loop stopped", "error", err)
		}
	}()
}

// Close stops the loop. Callbacks still queued are discarded.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}

// Done is closed when Close is called.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Dispatch queues fn as a macrotask. It is safe to call from any goroutine
// and is the way to hand work from other goroutines to the loop.
// Returns false if the loop is closed or its queue is full.
func (l *Loop) Dispatch(fn func()) bool {
	if fn == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	default:
		l.logger.Warn("dispatch queue full, discarding callback")
		return false
	}
}

// Tick implements Scheduler.
func (l *Loop) Tick(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.ticks = append(l.ticks, fn)
	l.mu.Unlock()
	l.signal()
}

// After implements Scheduler. The callback runs on the loop as a macrotask
// once the timer fires. Fired timers are never dropped, whatever the state
// of the Dispatch queue.
func (l *Loop) After(d time.Duration, fn func()) Timer {
	t := newTask(fn)
	if fn == nil {
		t.state.Store(taskStopped)
		return t
	}
	timer := time.AfterFunc(d, func() {
		if !t.pending() {
			return
		}
		l.mu.Lock()
		l.due = append(l.due, t)
		l.mu.Unlock()
		l.signal()
	})
	t.timer.Store(timer)
	return t
}

// Frame implements FrameScheduler.
func (l *Loop) Frame(fn func()) Timer {
	t := newTask(fn)
	if fn == nil {
		t.state.Store(taskStopped)
		return t
	}
	l.mu.Lock()
	l.frames = append(l.frames, t)
	l.mu.Unlock()
	l.signal()
	return t
}

// Now implements Scheduler.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// FrameInterval returns the configured frame period.
func (l *Loop) FrameInterval() time.Duration {
	return l.options.frameInterval
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) hasFrames() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames) > 0
}

// drain runs tick callbacks until the queue stays empty. Ticks queued by a
// tick callback run in the same drain.
func (l *Loop) drain() {
	for {
		l.mu.Lock()
		batch := l.ticks
		l.ticks = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			l.execute(fn)
		}
	}
}

// runFrames runs every frame callback registered before this boundary.
// Each callback is a macrotask of its own.
func (l *Loop) runFrames() {
	l.mu.Lock()
	batch := l.frames
	l.frames = nil
	l.mu.Unlock()

	for _, t := range batch {
		l.runTask(t)
		l.drain()
	}
}

// runDue runs fired timers in firing order, each as its own macrotask.
// Timers that fire meanwhile wait for the next loop iteration.
func (l *Loop) runDue() {
	l.mu.Lock()
	batch := l.due
	l.due = nil
	l.mu.Unlock()

	for _, t := range batch {
		l.runTask(t)
		l.drain()
	}
}

func (l *Loop) runTask(t *task) {
	if t.claim() {
		l.execute(t.fn)
	}
}

// execute runs fn with panic recovery.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("callback panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

var (
	defaultLoop     *Loop
	defaultLoopOnce sync.Once
)

// Default returns the process-wide loop, starting it on first use.
func Default() *Loop {
	defaultLoopOnce.Do(func() {
		defaultLoop = New()
		defaultLoop.Start(context.Background())
	})
	return defaultLoop
}

var (
	_ FrameScheduler = (*Loop)(nil)
	_ Dispatcher     = (*Loop)(nil)
	_ Timer          = (*task)(nil)
)
