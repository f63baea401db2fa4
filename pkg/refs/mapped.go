package refs

import (
	"fmt"
	"sync"
)

// Mapped is a read-only reference whose value is a transform of one origin.
//
// The transform runs once at construction and again on every origin change,
// reading the origin's current value. A panicking transform is reported to
// the error sink and the previous value is kept.
type Mapped[T any] struct {
	ref *Ref[T]

	mu    sync.Mutex
	unsub Unsubscribe
}

// Map derives a read-only reference from origin.
func Map[S, T any](origin Readable[S], transform func(S) T, opts ...Option) *Mapped[T] {
	mustObservable(origin, "map origin")
	if transform == nil {
		panic(fmt.Errorf("%w: nil transform", ErrNilFunc))
	}

	var zero T
	m := &Mapped[T]{ref: newRef(KindMapped, runtimeOf(origin), zero, opts)}
	m.ref.obs.guard(FaultCompute, func() {
		m.ref.value = transform(origin.Value())
	})

	m.unsub = origin.OnChange(func() {
		m.recompute(func() T { return transform(origin.Value()) })
	})
	return m
}

// Mapper returns a curried Map for reuse across origins.
func Mapper[S, T any](transform func(S) T, opts ...Option) func(Readable[S]) *Mapped[T] {
	return func(origin Readable[S]) *Mapped[T] {
		return Map(origin, transform, opts...)
	}
}

// Fallback derives a reference that substitutes fallback for the zero value
// of origin.
func Fallback[T comparable](origin Readable[T], fallback T, opts ...Option) *Mapped[T] {
	var zero T
	return Map(origin, func(v T) T {
		if v == zero {
			return fallback
		}
		return v
	}, opts...)
}

// FallbackPtr derives a reference that dereferences origin, substituting
// fallback when it is nil.
func FallbackPtr[T any](origin Readable[*T], fallback T, opts ...Option) *Mapped[T] {
	return Map(origin, func(v *T) T {
		if v == nil {
			return fallback
		}
		return *v
	}, opts...)
}

func (m *Mapped[T]) recompute(fn func() T) {
	obs := m.ref.obs
	done := obs.rt.hooks.OnRecompute(obs.kind, obs.name)

	var v T
	err := obs.guard(FaultCompute, func() { v = fn() })
	done(err)
	if err != nil {
		return
	}
	m.ref.Set(v)
}

// Value returns the current derived value.
func (m *Mapped[T]) Value() T {
	return m.ref.Value()
}

// Subscribe registers fn for changes. fn receives the current value once on
// the next scheduling tick.
func (m *Mapped[T]) Subscribe(fn func(T)) Unsubscribe {
	return m.ref.Subscribe(fn)
}

// Watch registers fn for changes only.
func (m *Mapped[T]) Watch(fn func(T)) Unsubscribe {
	return m.ref.Watch(fn)
}

// OnChange implements Dependency.
func (m *Mapped[T]) OnChange(fn func()) Unsubscribe {
	return m.ref.OnChange(fn)
}

// ID returns the unique identifier of the reference.
func (m *Mapped[T]) ID() uint64 {
	return m.ref.ID()
}

// Name returns the name given with WithName.
func (m *Mapped[T]) Name() string {
	return m.ref.Name()
}

// Dispose detaches from the origin. The last value stays readable and no
// further changes are delivered.
func (m *Mapped[T]) Dispose() {
	m.mu.Lock()
	unsub := m.unsub
	m.unsub = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (m *Mapped[T]) runtime() *Runtime {
	return m.ref.runtime()
}

var _ Readable[int] = (*Mapped[int])(nil)
