package refs

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrNotObservable is raised when a value that does not implement the
// subscribe capability is used where an observable is required.
var ErrNotObservable = errors.New("refs: value is not observable")

// ErrNilFunc is raised when a nil transform or compute function is passed to
// a derived reference constructor.
var ErrNilFunc = errors.New("refs: nil function")

// ErrUnknownTiming is returned when a rate limiter is configured with a
// timing base that does not exist.
var ErrUnknownTiming = errors.New("refs: unknown timing base")

// ErrUnsupportedTiming is returned when a timing base exists but cannot be
// used with the chosen strategy or scheduler, such as throttling on ticks or
// frame timing on a scheduler without frames.
var ErrUnsupportedTiming = errors.New("refs: unsupported timing base")

// ErrInvalidInterval is returned when a timeout-based rate limiter is
// configured without a positive interval.
var ErrInvalidInterval = errors.New("refs: rate limit interval must be positive")

// ErrUnknownStrategy is returned when a rate limiter strategy is not
// Debounce or Throttle.
var ErrUnknownStrategy = errors.New("refs: unknown rate limit strategy")

// FaultKind classifies errors routed to the error sink.
type FaultKind int

const (
	// FaultSubscriber is a panic raised by a subscriber callback.
	FaultSubscriber FaultKind = iota

	// FaultCompute is a panic raised by a transform or compute function.
	FaultCompute
)

// String returns the fault kind name.
func (k FaultKind) String() string {
	switch k {
	case FaultSubscriber:
		return "subscriber"
	case FaultCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// FaultError describes a panic recovered from a callback.
type FaultError struct {
	Kind FaultKind

	// Source identifies the primitive whose callback failed.
	Source Kind
	ID     uint64
	Name   string

	// Value is the recovered panic value.
	Value any

	// Stack is the goroutine stack at the point of recovery.
	Stack []byte
}

// Error implements the error interface.
func (e *FaultError) Error() string {
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("#%d", e.ID)
	}
	return fmt.Sprintf("refs: %s fault in %s %s: %v", e.Kind, e.Source, name, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *FaultError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ErrorHandler receives errors that no caller can handle: subscriber and
// compute faults.
type ErrorHandler func(err error)

var globalErrorHandler atomic.Pointer[ErrorHandler]

// SetGlobalUnknownErrorHandler installs the process-wide error sink used by
// runtimes that have no handler of their own, and returns the previous one.
// Passing nil restores the default, which logs through the runtime logger.
func SetGlobalUnknownErrorHandler(h ErrorHandler) ErrorHandler {
	var prev *ErrorHandler
	if h == nil {
		prev = globalErrorHandler.Swap(nil)
	} else {
		prev = globalErrorHandler.Swap(&h)
	}
	if prev == nil {
		return nil
	}
	return *prev
}
