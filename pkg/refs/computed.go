package refs

import (
	"fmt"
	"sync"
)

// ComputeConfig describes a computed reference.
type ComputeConfig[T any] struct {
	// Dependencies are the references whose changes trigger recomputation.
	// They are declared explicitly; reads inside Compute are not tracked.
	Dependencies []Dependency

	// Compute produces the value. It should read the dependencies' current
	// values.
	Compute func() T
}

// Computed is a read-only reference derived from several dependencies.
//
// Changes to any number of dependencies within one scheduling tick cause a
// single recomputation on the following tick, which sees every dependency's
// current value.
type Computed[T any] struct {
	ref     *Ref[T]
	compute func() T

	mu        sync.Mutex
	scheduled bool
	disposed  bool
	unsubs    []Unsubscribe
}

// Compute creates a computed reference. The value is computed once
// immediately, even with no dependencies.
func Compute[T any](cfg ComputeConfig[T], opts ...Option) *Computed[T] {
	if cfg.Compute == nil {
		panic(fmt.Errorf("%w: nil compute", ErrNilFunc))
	}
	var inherit *Runtime
	for i, dep := range cfg.Dependencies {
		if isNil(dep) {
			panic(fmt.Errorf("%w: dependency %d is nil", ErrNotObservable, i))
		}
		if inherit == nil {
			inherit = runtimeOf(dep)
		}
	}

	var zero T
	c := &Computed[T]{
		ref:     newRef(KindComputed, inherit, zero, opts),
		compute: cfg.Compute,
	}
	c.ref.obs.guard(FaultCompute, func() {
		c.ref.value = cfg.Compute()
	})

	for _, dep := range cfg.Dependencies {
		c.unsubs = append(c.unsubs, dep.OnChange(c.invalidate))
	}
	return c
}

// Compute2 computes from two references.
func Compute2[A, B, T any](a Readable[A], b Readable[B], fn func(A, B) T, opts ...Option) *Computed[T] {
	mustObservable(a, "dependency")
	mustObservable(b, "dependency")
	if fn == nil {
		panic(fmt.Errorf("%w: nil compute", ErrNilFunc))
	}
	return Compute(ComputeConfig[T]{
		Dependencies: []Dependency{a, b},
		Compute:      func() T { return fn(a.Value(), b.Value()) },
	}, opts...)
}

// Compute3 computes from three references.
func Compute3[A, B, C, T any](a Readable[A], b Readable[B], c Readable[C], fn func(A, B, C) T, opts ...Option) *Computed[T] {
	mustObservable(a, "dependency")
	mustObservable(b, "dependency")
	mustObservable(c, "dependency")
	if fn == nil {
		panic(fmt.Errorf("%w: nil compute", ErrNilFunc))
	}
	return Compute(ComputeConfig[T]{
		Dependencies: []Dependency{a, b, c},
		Compute:      func() T { return fn(a.Value(), b.Value(), c.Value()) },
	}, opts...)
}

// ComputeAll computes from a homogeneous list of references. fn receives
// their current values in order.
func ComputeAll[A, T any](deps []Readable[A], fn func([]A) T, opts ...Option) *Computed[T] {
	if fn == nil {
		panic(fmt.Errorf("%w: nil compute", ErrNilFunc))
	}
	list := make([]Dependency, len(deps))
	for i, d := range deps {
		mustObservable(d, "dependency")
		list[i] = d
	}
	return Compute(ComputeConfig[T]{
		Dependencies: list,
		Compute: func() T {
			values := make([]A, len(deps))
			for i, d := range deps {
				values[i] = d.Value()
			}
			return fn(values)
		},
	}, opts...)
}

func (c *Computed[T]) invalidate() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	if c.scheduled {
		c.mu.Unlock()
		c.ref.obs.rt.hooks.OnCoalesce(KindComputed, c.ref.obs.name)
		return
	}
	c.scheduled = true
	c.mu.Unlock()

	c.ref.obs.rt.scheduler.Tick(c.recompute)
}

func (c *Computed[T]) recompute() {
	c.mu.Lock()
	c.scheduled = false
	disposed := c.disposed
	c.mu.Unlock()
	if disposed {
		return
	}

	obs := c.ref.obs
	done := obs.rt.hooks.OnRecompute(obs.kind, obs.name)

	var v T
	err := obs.guard(FaultCompute, func() { v = c.compute() })
	done(err)
	if err != nil {
		return
	}
	c.ref.Set(v)
}

// Value returns the last computed value.
func (c *Computed[T]) Value() T {
	return c.ref.Value()
}

// Subscribe registers fn for changes. fn receives the current value once on
// the next scheduling tick.
func (c *Computed[T]) Subscribe(fn func(T)) Unsubscribe {
	return c.ref.Subscribe(fn)
}

// Watch registers fn for changes only.
func (c *Computed[T]) Watch(fn func(T)) Unsubscribe {
	return c.ref.Watch(fn)
}

// OnChange implements Dependency.
func (c *Computed[T]) OnChange(fn func()) Unsubscribe {
	return c.ref.OnChange(fn)
}

// ID returns the unique identifier of the reference.
func (c *Computed[T]) ID() uint64 {
	return c.ref.ID()
}

// Name returns the name given with WithName.
func (c *Computed[T]) Name() string {
	return c.ref.Name()
}

// Dispose detaches from every dependency and cancels a scheduled
// recomputation.
func (c *Computed[T]) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

func (c *Computed[T]) runtime() *Runtime {
	return c.ref.runtime()
}

var _ Readable[int] = (*Computed[int])(nil)
