package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startLoop(t *testing.T, opts ...Option) *Loop {
	t.Helper()
	l := New(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	t.Cleanup(func() {
		cancel()
		l.Close()
	})
	return l
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for loop callback")
	}
}

func TestLoopDispatchAndTicks(t *testing.T) {
	l := startLoop(t)
	done := make(chan struct{})

	var mu sync.Mutex
	var calls []string

	l.Dispatch(func() {
		l.Tick(func() {
			mu.Lock()
			calls = append(calls, "tick")
			mu.Unlock()
			close(done)
		})
		mu.Lock()
		calls = append(calls, "dispatch")
		mu.Unlock()
	})
	waitFor(t, done)

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 || calls[0] != "dispatch" || calls[1] != "tick" {
		t.Errorf("unexpected order: %v", calls)
	}
}

func TestLoopTickFromOutsideWakesLoop(t *testing.T) {
	l := startLoop(t)
	done := make(chan struct{})

	l.Tick(func() { close(done) })
	waitFor(t, done)
}

func TestLoopAfter(t *testing.T) {
	l := startLoop(t)
	done := make(chan struct{})

	start := time.Now()
	l.After(20*time.Millisecond, func() { close(done) })
	waitFor(t, done)

	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("timer fired early after %v", elapsed)
	}
}

func TestLoopAfterStop(t *testing.T) {
	l := startLoop(t)
	fired := make(chan struct{}, 1)

	timer := l.After(20*time.Millisecond, func() { fired <- struct{}{} })
	if !timer.Stop() {
		t.Fatal("expected Stop to cancel pending timer")
	}

	select {
	case <-fired:
		t.Error("stopped timer fired")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestLoopFrame(t *testing.T) {
	l := startLoop(t, WithFrameInterval(5*time.Millisecond))
	done := make(chan struct{})

	l.Frame(func() { close(done) })
	waitFor(t, done)
}

func TestLoopRunTwice(t *testing.T) {
	l := startLoop(t)
	ready := make(chan struct{})
	l.Dispatch(func() { close(ready) })
	waitFor(t, ready)

	if err := l.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("expected ErrRunning, got %v", err)
	}
}

func TestLoopDispatchAfterClose(t *testing.T) {
	l := New()
	l.Close()
	if l.Dispatch(func() {}) {
		t.Error("expected dispatch on closed loop to fail")
	}
}

func TestLoopRecoversPanics(t *testing.T) {
	l := startLoop(t)
	done := make(chan struct{})

	l.Dispatch(func() { panic("boom") })
	l.Dispatch(func() { close(done) })
	waitFor(t, done)
}

func TestLoopAfterFiresWhileQueueIsFull(t *testing.T) {
	l := startLoop(t, WithQueueSize(1))
	fired := make(chan struct{})
	busy := make(chan struct{})
	release := make(chan struct{})

	l.Dispatch(func() {
		close(busy)
		<-release
	})
	waitFor(t, busy)

	l.After(5*time.Millisecond, func() { close(fired) })
	if !l.Dispatch(func() {}) {
		t.Fatal("expected the queue to accept one task while the loop is busy")
	}
	if l.Dispatch(func() {}) {
		t.Fatal("expected a full queue to reject dispatch")
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	waitFor(t, fired)
}

func TestLoopDueTimersDrainTicks(t *testing.T) {
	l := startLoop(t)
	done := make(chan struct{})

	var mu sync.Mutex
	var calls []string
	record := func(s string) {
		mu.Lock()
		calls = append(calls, s)
		mu.Unlock()
	}

	l.After(time.Millisecond, func() {
		record("first")
		l.Tick(func() { record("tick") })
	})
	l.After(20*time.Millisecond, func() {
		record("second")
		close(done)
	})
	waitFor(t, done)

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 3 || calls[0] != "first" || calls[1] != "tick" || calls[2] != "second" {
		t.Errorf("unexpected order: %v", calls)
	}
}

func TestLoopImplementsDispatcher(t *testing.T) {
	var s Scheduler = New()
	if _, ok := s.(Dispatcher); !ok {
		t.Error("expected Loop to accept work from other goroutines")
	}
	if _, ok := Scheduler(NewManual()).(Dispatcher); ok {
		t.Error("expected Manual to leave dispatch to its caller")
	}
}
