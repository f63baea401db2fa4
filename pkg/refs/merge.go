package refs

import "sync"

// Tagged is a value emitted by a Merged observable together with the
// constituent it came from.
type Tagged[T any] struct {
	// Index is the position of Source in the Merge argument list.
	Index  int
	Source Subscribable[T]
	Value  T
}

// Merged forwards every emission of its constituents, tagged by source, in
// the order the emissions occur. Nothing is buffered or deduplicated.
//
// It subscribes to the constituents when its first subscriber arrives and
// unsubscribes from all of them when the last one leaves.
type Merged[T any] struct {
	obs     *Observable[Tagged[T]]
	sources []Subscribable[T]

	mu          sync.Mutex
	subscribers int
	upstream    []Unsubscribe
	connecting  bool
	disposed    bool
}

// Merge merges sources into one stream.
func Merge[T any](sources ...Subscribable[T]) *Merged[T] {
	return MergeWith(nil, sources...)
}

// MergeWith is Merge with options.
func MergeWith[T any](opts []Option, sources ...Subscribable[T]) *Merged[T] {
	var inherit *Runtime
	for _, src := range sources {
		mustObservable(src, "merge source")
		if inherit == nil {
			inherit = runtimeOf(src)
		}
	}
	return &Merged[T]{
		obs:     newObservable[Tagged[T]](newNode(KindMerged, inherit, opts)),
		sources: append([]Subscribable[T](nil), sources...),
	}
}

// Subscribe registers fn for tagged emissions. The first subscriber
// connects the constituents. A constituent that emits while being
// subscribed reaches fn right away.
func (m *Merged[T]) Subscribe(fn func(Tagged[T])) Unsubscribe {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return func() {}
	}
	sub := m.obs.add(fn, false)
	m.subscribers++
	connect := m.subscribers == 1 && m.upstream == nil && !m.connecting
	if connect {
		m.connecting = true
	}
	m.mu.Unlock()

	if connect {
		m.connect()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.obs.remove(sub)
			m.release()
		})
	}
}

// Connected reports whether the constituents are subscribed.
func (m *Merged[T]) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upstream != nil
}

// ID returns the unique identifier of the merged observable.
func (m *Merged[T]) ID() uint64 {
	return m.obs.id
}

// Name returns the name given with WithName.
func (m *Merged[T]) Name() string {
	return m.obs.name
}

// Dispose disconnects from every constituent and drops all subscribers.
// Later subscriptions are no-ops.
func (m *Merged[T]) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	m.subscribers = 0
	upstream := m.upstream
	m.upstream = nil
	m.mu.Unlock()

	for _, unsub := range upstream {
		unsub()
	}
	m.obs.clear()
}

// connect subscribes to every constituent without holding m.mu, since
// constituents may emit from inside Subscribe. The subscriptions are kept
// only if someone is still listening once they are all in place.
func (m *Merged[T]) connect() {
	upstream := make([]Unsubscribe, 0, len(m.sources))
	for i, src := range m.sources {
		upstream = append(upstream, src.Subscribe(func(v T) {
			m.obs.notify(Tagged[T]{Index: i, Source: src, Value: v})
		}))
	}

	m.mu.Lock()
	m.connecting = false
	if m.disposed || m.subscribers == 0 {
		m.mu.Unlock()
		for _, unsub := range upstream {
			unsub()
		}
		return
	}
	m.upstream = upstream
	m.mu.Unlock()
}

func (m *Merged[T]) release() {
	m.mu.Lock()
	if m.disposed || m.subscribers == 0 {
		m.mu.Unlock()
		return
	}
	m.subscribers--
	if m.subscribers > 0 {
		m.mu.Unlock()
		return
	}
	upstream := m.upstream
	m.upstream = nil
	m.mu.Unlock()

	for _, unsub := range upstream {
		unsub()
	}
}

func (m *Merged[T]) runtime() *Runtime {
	return m.obs.rt
}

var _ Subscribable[Tagged[int]] = (*Merged[int])(nil)
