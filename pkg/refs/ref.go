package refs

import "sync"

// Ref is a mutable reference: an Observable with a stored current value.
//
// Set stores the value synchronously and schedules one notification on the
// next scheduling tick. Writes made before that tick fires collapse into a
// single notification carrying the final value.
type Ref[T any] struct {
	obs *Observable[T]

	mu    sync.Mutex
	value T

	// dirty is set when a write is waiting for delivery.
	dirty bool

	// scheduled is set while a flush is queued on the scheduler.
	scheduled bool

	equal func(a, b T) bool
}

// NewRef creates a reference holding initial.
func NewRef[T any](initial T, opts ...Option) *Ref[T] {
	return newRef(KindRef, nil, initial, opts)
}

func newRef[T any](kind Kind, inherit *Runtime, initial T, opts []Option) *Ref[T] {
	return &Ref[T]{
		obs:   newObservable[T](newNode(kind, inherit, opts)),
		value: initial,
	}
}

// Value returns the current value.
func (r *Ref[T]) Value() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// Set stores v and schedules a notification.
//
// Writes must happen on the scheduler's goroutine: inside a Dispatch
// callback or another notification when the scheduler is a Loop. Two
// writes made in the same callback are observed together by dependents.
func (r *Ref[T]) Set(v T) {
	r.mu.Lock()
	if r.equal != nil && r.equal(r.value, v) {
		r.mu.Unlock()
		return
	}
	r.value = v
	coalesced := r.dirty
	r.dirty = true
	schedule := r.markScheduledLocked()
	r.mu.Unlock()

	if coalesced {
		r.obs.rt.hooks.OnCoalesce(r.obs.kind, r.obs.name)
	}
	if schedule {
		r.obs.rt.scheduler.Tick(r.flush)
	}
}

// Update sets the value to fn applied to the current value.
func (r *Ref[T]) Update(fn func(T) T) {
	if fn == nil {
		return
	}
	r.Set(fn(r.Value()))
}

// Subscribe registers fn for change notifications. fn also receives the
// current value once on the next scheduling tick, never synchronously.
func (r *Ref[T]) Subscribe(fn func(T)) Unsubscribe {
	sub := r.obs.add(fn, true)

	r.mu.Lock()
	schedule := r.markScheduledLocked()
	r.mu.Unlock()

	if schedule {
		r.obs.rt.scheduler.Tick(r.flush)
	}
	return r.obs.remover(sub)
}

// Watch registers fn for change notifications only.
func (r *Ref[T]) Watch(fn func(T)) Unsubscribe {
	return r.obs.Subscribe(fn)
}

// OnChange implements Dependency.
func (r *Ref[T]) OnChange(fn func()) Unsubscribe {
	if fn == nil {
		return r.Watch(nil)
	}
	return r.Watch(func(T) { fn() })
}

// ReadOnly returns a view sharing this reference's storage, without Set.
func (r *Ref[T]) ReadOnly() Readable[T] {
	return readOnly[T]{r: r}
}

// WithEquals makes Set ignore writes equal to the current value.
// By default every write notifies. fn runs while the reference is locked
// and must not call back into it.
func (r *Ref[T]) WithEquals(fn func(a, b T) bool) *Ref[T] {
	r.mu.Lock()
	r.equal = fn
	r.mu.Unlock()
	return r
}

// ID returns the unique identifier of the reference.
func (r *Ref[T]) ID() uint64 {
	return r.obs.id
}

// Name returns the name given with WithName.
func (r *Ref[T]) Name() string {
	return r.obs.name
}

// Subscribers returns the number of registered subscribers.
func (r *Ref[T]) Subscribers() int {
	return r.obs.Len()
}

func (r *Ref[T]) runtime() *Runtime {
	return r.obs.rt
}

func (r *Ref[T]) markScheduledLocked() bool {
	if r.scheduled {
		return false
	}
	r.scheduled = true
	return true
}

// flush delivers the pending notification, or the initial value to
// subscribers that are still owed it.
func (r *Ref[T]) flush() {
	r.mu.Lock()
	r.scheduled = false
	dirty := r.dirty
	r.dirty = false
	value := r.value
	r.mu.Unlock()

	r.obs.deliver(r.obs.snapshot(!dirty), value)
}

type readOnly[T any] struct {
	r *Ref[T]
}

func (v readOnly[T]) Value() T                         { return v.r.Value() }
func (v readOnly[T]) Subscribe(fn func(T)) Unsubscribe { return v.r.Subscribe(fn) }
func (v readOnly[T]) Watch(fn func(T)) Unsubscribe     { return v.r.Watch(fn) }
func (v readOnly[T]) OnChange(fn func()) Unsubscribe   { return v.r.OnChange(fn) }
func (v readOnly[T]) runtime() *Runtime                { return v.r.runtime() }

var (
	_ Writable[int] = (*Ref[int])(nil)
	_ Readable[int] = readOnly[int]{}
)
