package refs

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vango-dev/refs/pkg/loop"
)

// testEnv is a runtime on a virtual clock that collects reported errors.
type testEnv struct {
	rt    *Runtime
	clock *loop.Manual
	errs  []error
}

func newTestEnv(t *testing.T, opts ...RuntimeOption) *testEnv {
	t.Helper()
	env := &testEnv{clock: loop.NewManual()}
	base := []RuntimeOption{
		WithScheduler(env.clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithErrorHandler(func(err error) { env.errs = append(env.errs, err) }),
	}
	env.rt = NewRuntime(append(base, opts...)...)
	return env
}

func (e *testEnv) opt() Option {
	return WithRuntime(e.rt)
}

func (e *testEnv) fault(t *testing.T, i int) *FaultError {
	t.Helper()
	if i >= len(e.errs) {
		t.Fatalf("expected at least %d reported errors, got %d", i+1, len(e.errs))
	}
	var f *FaultError
	if !errors.As(e.errs[i], &f) {
		t.Fatalf("expected *FaultError, got %T: %v", e.errs[i], e.errs[i])
	}
	return f
}

// recorder collects delivered values.
type recorder[T any] struct {
	values []T
}

func (r *recorder[T]) fn(v T) {
	r.values = append(r.values, v)
}

// timedRecorder collects delivered values with the virtual time they arrived.
type timedRecorder[T any] struct {
	clock  *loop.Manual
	values []T
	at     []time.Duration
}

func (r *timedRecorder[T]) fn(v T) {
	r.values = append(r.values, v)
	r.at = append(r.at, r.clock.Elapsed())
}

type recordingHooks struct {
	NopHooks
	delivers      int
	coalesces     int
	recomputes    int
	recomputeErrs []error
	limits        []LimitOutcome
	faults        []*FaultError
}

func (h *recordingHooks) OnDeliver(Kind, string, int) { h.delivers++ }
func (h *recordingHooks) OnCoalesce(Kind, string)     { h.coalesces++ }
func (h *recordingHooks) OnLimit(_ string, _ Strategy, o LimitOutcome) {
	h.limits = append(h.limits, o)
}
func (h *recordingHooks) OnFault(f *FaultError) { h.faults = append(h.faults, f) }

func (h *recordingHooks) OnRecompute(Kind, string) func(error) {
	h.recomputes++
	return func(err error) {
		if err != nil {
			h.recomputeErrs = append(h.recomputeErrs, err)
		}
	}
}

func (h *recordingHooks) count(o LimitOutcome) int {
	n := 0
	for _, got := range h.limits {
		if got == o {
			n++
		}
	}
	return n
}

// expectPanic runs fn and returns the recovered error.
func expectPanic(t *testing.T, fn func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		e, ok := r.(error)
		if !ok {
			t.Fatalf("expected error panic value, got %T: %v", r, r)
		}
		err = e
	}()
	fn()
	return nil
}
