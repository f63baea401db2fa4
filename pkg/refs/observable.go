package refs

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// Unsubscribe removes a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Subscribable is anything that multicasts values to subscribers.
type Subscribable[T any] interface {
	Subscribe(fn func(T)) Unsubscribe
}

// Dependency is the value-erased change capability that computed references
// consume. Every Readable is a Dependency.
type Dependency interface {
	// OnChange registers fn to run after each change notification. Unlike
	// Subscribe, it does not deliver the current value on registration.
	OnChange(fn func()) Unsubscribe
}

// Readable is a reference that can be read and observed.
type Readable[T any] interface {
	Subscribable[T]
	Dependency

	// Value returns the current value. It never triggers a notification.
	Value() T

	// Watch registers fn for change notifications only.
	Watch(fn func(T)) Unsubscribe
}

// Writable is a reference that can also be written.
type Writable[T any] interface {
	Readable[T]
	Set(v T)
}

type subscriber[T any] struct {
	fn     func(T)
	active atomic.Bool

	// initial marks a subscriber still owed the current value.
	// Guarded by Observable.mu.
	initial bool
}

// Observable is a multicast notification source without a stored value.
// It is the subscription core embedded by every other primitive.
//
// Delivery runs in registration order. A subscriber added during a
// delivery pass does not receive that pass; one removed during a pass is
// skipped for the rest of it. A panicking subscriber is reported to the
// runtime's error sink and delivery moves on to the next subscriber.
type Observable[T any] struct {
	node

	mu   sync.Mutex
	subs []*subscriber[T]
}

func newObservable[T any](n node) *Observable[T] {
	return &Observable[T]{node: n}
}

// Subscribe registers fn for every subsequent emission.
func (o *Observable[T]) Subscribe(fn func(T)) Unsubscribe {
	return o.remover(o.add(fn, false))
}

// Len returns the number of active subscribers.
func (o *Observable[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

func (o *Observable[T]) add(fn func(T), initial bool) *subscriber[T] {
	if fn == nil {
		panic(fmt.Errorf("%w: nil subscriber", ErrNilFunc))
	}
	sub := &subscriber[T]{fn: fn, initial: initial}
	sub.active.Store(true)

	o.mu.Lock()
	o.subs = append(o.subs, sub)
	o.mu.Unlock()
	return sub
}

func (o *Observable[T]) remover(sub *subscriber[T]) Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() {
			o.remove(sub)
		})
	}
}

func (o *Observable[T]) remove(sub *subscriber[T]) {
	sub.active.Store(false)

	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s == sub {
			o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
			return
		}
	}
}

func (o *Observable[T]) clear() {
	o.mu.Lock()
	subs := o.subs
	o.subs = nil
	o.mu.Unlock()
	for _, s := range subs {
		s.active.Store(false)
	}
}

// snapshot copies the subscribers for one delivery pass and clears their
// initial flag. With onlyInitial, only subscribers still owed the current
// value are included.
func (o *Observable[T]) snapshot(onlyInitial bool) []*subscriber[T] {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*subscriber[T], 0, len(o.subs))
	for _, s := range o.subs {
		if onlyInitial && !s.initial {
			continue
		}
		s.initial = false
		out = append(out, s)
	}
	return out
}

func (o *Observable[T]) deliver(subs []*subscriber[T], v T) {
	if len(subs) == 0 {
		return
	}
	delivered := 0
	for _, s := range subs {
		if !s.active.Load() {
			continue
		}
		o.guard(FaultSubscriber, func() { s.fn(v) })
		delivered++
	}
	o.rt.hooks.OnDeliver(o.kind, o.name, delivered)
}

// notify delivers v synchronously to every current subscriber.
func (o *Observable[T]) notify(v T) {
	o.deliver(o.snapshot(false), v)
}

// Emitter is an Observable that callers emit on directly. It is the raw
// event source for Merge and for hosts that bridge external events in.
type Emitter[T any] struct {
	*Observable[T]
}

// NewEmitter creates an emitter.
func NewEmitter[T any](opts ...Option) *Emitter[T] {
	return &Emitter[T]{Observable: newObservable[T](newNode(KindObservable, nil, opts))}
}

// Emit delivers v synchronously to every subscriber in registration order.
func (e *Emitter[T]) Emit(v T) {
	e.notify(v)
}

// isNil reports whether v is nil or a nil pointer, map, slice, func, chan or
// interface behind a non-nil interface value.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func mustObservable(v any, what string) {
	if isNil(v) {
		panic(fmt.Errorf("%w: nil %s", ErrNotObservable, what))
	}
}
