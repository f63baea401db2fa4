package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/refs/internal/config"
	"github.com/vango-dev/refs/internal/inspect"
	"github.com/vango-dev/refs/pkg/loop"
	"github.com/vango-dev/refs/pkg/refs"
)

// stage hosts scenario graphs on a running event loop. Every write to a
// graph goes through do so that propagation happens on the loop goroutine.
type stage struct {
	cfg      *config.Config
	logger   *slog.Logger
	loop     *loop.Loop
	rt       *refs.Runtime
	registry *inspect.Registry
	out      io.Writer
	started  time.Time
	faults   atomic.Int64

	mu        sync.Mutex
	disposers []func()
}

func newStage(cfg *config.Config, logger *slog.Logger, hooks refs.Hooks, out io.Writer) *stage {
	l := loop.New(cfg.LoopOptions(logger)...)
	st := &stage{
		cfg:      cfg,
		logger:   logger,
		loop:     l,
		registry: inspect.NewRegistry(),
		out:      out,
	}
	st.rt = refs.NewRuntime(
		refs.WithScheduler(l),
		refs.WithLogger(logger.With("component", "refs")),
		refs.WithHooks(hooks),
		refs.WithErrorHandler(func(err error) {
			st.faults.Add(1)
			logger.Debug("fault reported", "error", err)
		}),
	)
	return st
}

// start runs the loop until close.
func (st *stage) start() {
	st.started = time.Now()
	st.loop.Start(context.Background())
}

// close disposes every graph and stops the loop.
func (st *stage) close() {
	st.mu.Lock()
	disposers := st.disposers
	st.disposers = nil
	st.mu.Unlock()

	dispose := func() {
		for i := len(disposers) - 1; i >= 0; i-- {
			disposers[i]()
		}
	}
	if !st.do(dispose) {
		dispose()
	}
	st.loop.Close()
}

// do runs fn on the loop and waits for it to return. Ticks queued by fn run
// after it, before the next dispatched callback.
func (st *stage) do(fn func()) bool {
	done := make(chan struct{})
	if !st.rt.Dispatch(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-st.loop.Done():
		return false
	}
}

// settle waits until everything queued before the call has run.
func (st *stage) settle() {
	st.do(func() {})
}

func (st *stage) onDispose(fn func()) {
	st.mu.Lock()
	st.disposers = append(st.disposers, fn)
	st.mu.Unlock()
}

// opts attaches a primitive to the stage runtime under name.
func (st *stage) opts(name string) []refs.Option {
	return []refs.Option{refs.WithRuntime(st.rt), refs.WithName(name)}
}

// limit returns the configured limiter named name, or def.
func (st *stage) limit(name string, def refs.LimitConfig) refs.LimitConfig {
	spec, ok := st.cfg.Limits[name]
	if !ok {
		return def
	}
	cfg, err := spec.LimitConfig()
	if err != nil {
		st.logger.Warn("ignoring invalid limit", "name", name, "error", err)
		return def
	}
	return cfg
}

func (st *stage) printf(format string, args ...any) {
	elapsed := time.Since(st.started).Round(time.Millisecond)
	fmt.Fprintf(st.out, "  %8s  %s\n", "+"+elapsed.String(), fmt.Sprintf(format, args...))
}

// show registers r with the inspector and prints its changes.
func show[T any](st *stage, name string, r refs.Readable[T]) {
	inspect.MustRegister(st.registry, name, r)
	st.onDispose(r.Watch(func(v T) {
		st.printf("%-16s %v", name, v)
	}))
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
