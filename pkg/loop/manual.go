package loop

import (
	"container/heap"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Manual is a scheduler driven by explicit calls instead of wall time.
// Tests and deterministic hosts use it to step through tick, timer and frame
// tiers one at a time.
//
// Nothing runs until Flush, Advance or NextFrame is called. Advance drains
// the tick queue first, then fires due timers and frame boundaries in time
// order, draining ticks again after each callback.
type Manual struct {
	mu            sync.Mutex
	now           time.Time
	start         time.Time
	frameInterval time.Duration
	logger        *slog.Logger

	ticks  []func()
	timers timerQueue
	frames []*task
	seq    uint64
}

// NewManual creates a Manual scheduler. WithStart and WithFrameInterval
// configure its virtual clock.
func NewManual(opts ...Option) *Manual {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Manual{
		now:           o.start,
		start:         o.start,
		frameInterval: o.frameInterval,
		logger:        o.logger.With("component", "loop"),
	}
}

// Tick implements Scheduler.
func (m *Manual) Tick(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.ticks = append(m.ticks, fn)
	m.mu.Unlock()
}

// After implements Scheduler.
func (m *Manual) After(d time.Duration, fn func()) Timer {
	t := newTask(fn)
	if fn == nil {
		t.state.Store(taskStopped)
		return t
	}
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	m.seq++
	heap.Push(&m.timers, &timerEntry{at: m.now.Add(d), seq: m.seq, task: t})
	m.mu.Unlock()
	return t
}

// Frame implements FrameScheduler.
func (m *Manual) Frame(fn func()) Timer {
	t := newTask(fn)
	if fn == nil {
		t.state.Store(taskStopped)
		return t
	}
	m.mu.Lock()
	m.frames = append(m.frames, t)
	m.mu.Unlock()
	return t
}

// Now implements Scheduler.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Elapsed returns the virtual time passed since the scheduler was created.
func (m *Manual) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now.Sub(m.start)
}

// FrameInterval returns the configured frame period.
func (m *Manual) FrameInterval() time.Duration {
	return m.frameInterval
}

// Flush runs queued tick callbacks, including ticks queued while flushing,
// and returns how many ran.
func (m *Manual) Flush() int {
	count := 0
	for {
		m.mu.Lock()
		batch := m.ticks
		m.ticks = nil
		m.mu.Unlock()

		if len(batch) == 0 {
			return count
		}
		for _, fn := range batch {
			m.execute(fn)
			count++
		}
	}
}

// Advance moves the virtual clock forward by d, running every timer and
// frame boundary that falls inside the interval.
func (m *Manual) Advance(d time.Duration) {
	m.Flush()

	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for m.step(target) {
		m.Flush()
	}

	m.mu.Lock()
	if target.After(m.now) {
		m.now = target
	}
	m.mu.Unlock()
}

// NextFrame advances the virtual clock to the next frame boundary.
func (m *Manual) NextFrame() {
	m.mu.Lock()
	d := m.nextBoundaryLocked().Sub(m.now)
	m.mu.Unlock()
	m.Advance(d)
}

// Pending returns the number of queued ticks, live timers and frame
// callbacks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.ticks)
	for _, e := range m.timers {
		if e.task.pending() {
			n++
		}
	}
	for _, t := range m.frames {
		if t.pending() {
			n++
		}
	}
	return n
}

// step runs the earliest timer or frame boundary at or before target.
// Returns false when nothing is due. Timers win ties against frames.
func (m *Manual) step(target time.Time) bool {
	m.mu.Lock()
	m.discardStoppedLocked()

	var timer *timerEntry
	if len(m.timers) > 0 && !m.timers[0].at.After(target) {
		timer = m.timers[0]
	}

	var frameAt time.Time
	hasFrame := len(m.frames) > 0
	if hasFrame {
		frameAt = m.nextBoundaryLocked()
		hasFrame = !frameAt.After(target)
	}

	switch {
	case timer != nil && (!hasFrame || !timer.at.After(frameAt)):
		heap.Pop(&m.timers)
		m.now = timer.at
		m.mu.Unlock()
		if timer.task.claim() {
			m.execute(timer.task.fn)
		}
		return true

	case hasFrame:
		m.now = frameAt
		batch := m.frames
		m.frames = nil
		m.mu.Unlock()
		for _, t := range batch {
			if t.claim() {
				m.execute(t.fn)
			}
			m.Flush()
		}
		return true
	}

	m.mu.Unlock()
	return false
}

func (m *Manual) discardStoppedLocked() {
	for len(m.timers) > 0 && !m.timers[0].task.pending() {
		heap.Pop(&m.timers)
	}
	live := m.frames[:0]
	for _, t := range m.frames {
		if t.pending() {
			live = append(live, t)
		}
	}
	m.frames = live
}

// nextBoundaryLocked returns the first frame boundary strictly after now.
func (m *Manual) nextBoundaryLocked() time.Time {
	elapsed := m.now.Sub(m.start)
	n := elapsed/m.frameInterval + 1
	return m.start.Add(n * m.frameInterval)
}

func (m *Manual) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("callback panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

type timerEntry struct {
	at   time.Time
	seq  uint64
	task *task
}

// timerQueue orders timers by deadline, then by scheduling order.
type timerQueue []*timerEntry

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *timerQueue) Push(x any) { *q = append(*q, x.(*timerEntry)) }

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

var _ FrameScheduler = (*Manual)(nil)
