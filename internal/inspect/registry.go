package inspect

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/vango-dev/refs/pkg/refs"
)

var (
	// ErrDuplicateName is returned when a name is registered twice.
	ErrDuplicateName = errors.New("inspect: name already registered")

	// ErrUnknownRef is returned for a name that is not registered.
	ErrUnknownRef = errors.New("inspect: unknown reference")
)

// Snapshot is the JSON view of one registered reference.
type Snapshot struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	ID    uint64 `json:"id,omitempty"`
	Value any    `json:"value"`
}

type entry struct {
	name  string
	kind  string
	id    uint64
	value func() any
	watch func(func(any)) refs.Unsubscribe
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{Name: e.name, Kind: e.kind, ID: e.id, Value: e.value()}
}

// Registry holds the references exposed by a Server.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register exposes ref under name.
func Register[T any](r *Registry, name string, ref refs.Readable[T]) error {
	if name == "" {
		return errors.New("inspect: empty name")
	}
	if ref == nil {
		return fmt.Errorf("inspect: nil reference %q", name)
	}

	e := &entry{
		name:  name,
		kind:  kindOf(ref),
		value: func() any { return ref.Value() },
		watch: func(fn func(any)) refs.Unsubscribe {
			return ref.Watch(func(v T) { fn(v) })
		},
	}
	if id, ok := any(ref).(interface{ ID() uint64 }); ok {
		e.id = id.ID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	r.entries[name] = e
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister[T any](r *Registry, name string, ref refs.Readable[T]) {
	if err := Register(r, name, ref); err != nil {
		panic(err)
	}
}

func kindOf[T any](ref refs.Readable[T]) string {
	switch any(ref).(type) {
	case *refs.Ref[T]:
		return refs.KindRef.String()
	case *refs.Mapped[T]:
		return refs.KindMapped.String()
	case *refs.Computed[T]:
		return refs.KindComputed.String()
	case *refs.Limited[T]:
		return refs.KindLimited.String()
	default:
		return "readable"
	}
}

// Unregister removes name. Existing watch streams keep their subscription
// until they close.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	return true
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Len returns the number of registered references.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns the current value of every reference, sorted by name.
func (r *Registry) Snapshot() []Snapshot {
	names := r.Names()
	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		if s, ok := r.Lookup(name); ok {
			out = append(out, s)
		}
	}
	return out
}

// Lookup returns the snapshot of one reference.
func (r *Registry) Lookup(name string) (Snapshot, bool) {
	e := r.get(name)
	if e == nil {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Watch calls fn with every change delivered by the named reference.
func (r *Registry) Watch(name string, fn func(any)) (refs.Unsubscribe, error) {
	e := r.get(name)
	if e == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRef, name)
	}
	return e.watch(fn), nil
}

func (r *Registry) get(name string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name]
}
