package refs

import (
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"github.com/vango-dev/refs/pkg/loop"
)

// Runtime is the root of a reference graph. It holds the scheduler that
// delivers notifications and the sinks that observe the graph: the error
// handler, the logger and the hooks.
//
// Primitives pick their runtime at construction: WithRuntime if given,
// otherwise the runtime of their first origin, otherwise DefaultRuntime.
//
// A runtime's graph is owned by its scheduler's goroutine. Primitives are
// created, written and subscribed to from scheduler callbacks; other
// goroutines go through Dispatch.
type Runtime struct {
	scheduler loop.Scheduler
	logger    *slog.Logger
	onError   ErrorHandler
	hooks     Hooks
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithScheduler sets the scheduler. Without one, the runtime uses
// loop.Default().
func WithScheduler(s loop.Scheduler) RuntimeOption {
	return func(rt *Runtime) {
		rt.scheduler = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithErrorHandler sets the error sink for this runtime. It takes precedence
// over the handler installed with SetGlobalUnknownErrorHandler.
func WithErrorHandler(h ErrorHandler) RuntimeOption {
	return func(rt *Runtime) {
		rt.onError = h
	}
}

// WithHooks sets the hooks that observe propagation.
func WithHooks(h Hooks) RuntimeOption {
	return func(rt *Runtime) {
		if h != nil {
			rt.hooks = h
		}
	}
}

// NewRuntime creates a runtime.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		logger: slog.Default().With("component", "refs"),
		hooks:  NopHooks{},
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.scheduler == nil {
		rt.scheduler = loop.Default()
	}
	return rt
}

var defaultRuntime atomic.Pointer[Runtime]

// DefaultRuntime returns the process-wide runtime, creating it on first use.
// Unless replaced with SetDefaultRuntime it runs on loop.Default(), whose
// goroutine is not the caller's: writes from main or a request handler
// belong inside rt.Dispatch.
func DefaultRuntime() *Runtime {
	if rt := defaultRuntime.Load(); rt != nil {
		return rt
	}
	rt := NewRuntime()
	if defaultRuntime.CompareAndSwap(nil, rt) {
		return rt
	}
	return defaultRuntime.Load()
}

// SetDefaultRuntime replaces the process-wide runtime and returns the
// previous one so callers can restore it. Passing nil makes the next
// DefaultRuntime call build a fresh one.
func SetDefaultRuntime(rt *Runtime) *Runtime {
	return defaultRuntime.Swap(rt)
}

// Scheduler returns the runtime's scheduler.
func (rt *Runtime) Scheduler() loop.Scheduler {
	return rt.scheduler
}

// Dispatch runs fn on the scheduler's goroutine. Writes made inside fn are
// seen by dependents as one step. Schedulers without a goroutine of their
// own, such as loop.Manual, run fn immediately on the caller's goroutine.
// Returns false if the scheduler rejected fn.
func (rt *Runtime) Dispatch(fn func()) bool {
	if fn == nil {
		return false
	}
	if d, ok := rt.scheduler.(loop.Dispatcher); ok {
		return d.Dispatch(fn)
	}
	fn()
	return true
}

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() *slog.Logger {
	return rt.logger
}

// Hooks returns the runtime's hooks.
func (rt *Runtime) Hooks() Hooks {
	return rt.hooks
}

// Report sends err to the error sink.
func (rt *Runtime) Report(err error) {
	if err == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error("error handler panic", "panic", r, "error", err)
		}
	}()

	if rt.onError != nil {
		rt.onError(err)
		return
	}
	if h := globalErrorHandler.Load(); h != nil {
		(*h)(err)
		return
	}
	rt.logger.Error("unhandled error", "error", err)
}

// Option configures a primitive at construction.
type Option func(*config)

type config struct {
	rt   *Runtime
	name string
}

// WithRuntime attaches the primitive to rt.
func WithRuntime(rt *Runtime) Option {
	return func(c *config) {
		c.rt = rt
	}
}

// WithName names the primitive in logs, hook calls and faults.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// node is the identity shared by every primitive.
type node struct {
	id   uint64
	name string
	kind Kind
	rt   *Runtime
}

func newNode(kind Kind, inherit *Runtime, opts []Option) node {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	rt := c.rt
	if rt == nil {
		rt = inherit
	}
	if rt == nil {
		rt = DefaultRuntime()
	}
	return node{id: nextID(), name: c.name, kind: kind, rt: rt}
}

// ID returns the unique identifier of the primitive.
func (n *node) ID() uint64 {
	return n.id
}

// Name returns the name given with WithName.
func (n *node) Name() string {
	return n.name
}

func (n *node) runtime() *Runtime {
	return n.rt
}

// guard runs fn, converting a panic into a fault routed to the error sink.
// Returns the fault if fn panicked.
func (n *node) guard(kind FaultKind, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = n.fault(kind, r, debug.Stack())
		}
	}()
	fn()
	return nil
}

func (n *node) fault(kind FaultKind, value any, stack []byte) *FaultError {
	f := &FaultError{
		Kind:   kind,
		Source: n.kind,
		ID:     n.id,
		Name:   n.name,
		Value:  value,
		Stack:  stack,
	}
	n.rt.hooks.OnFault(f)
	n.rt.Report(f)
	return f
}

// runtimeCarrier is implemented by every primitive in this package so
// derived primitives can inherit their origin's runtime.
type runtimeCarrier interface {
	runtime() *Runtime
}

func runtimeOf(v any) *Runtime {
	if c, ok := v.(runtimeCarrier); ok {
		return c.runtime()
	}
	return nil
}
