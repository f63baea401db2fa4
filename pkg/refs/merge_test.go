package refs

import (
	"slices"
	"sync"
	"testing"
	"time"
)

func TestMergeFanIn(t *testing.T) {
	env := newTestEnv(t)
	a := NewEmitter[int](env.opt())
	b := NewEmitter[int](env.opt())
	m := Merge[int](a, b)

	var got []Tagged[int]
	m.Subscribe(func(v Tagged[int]) { got = append(got, v) })

	a.Emit(1)
	b.Emit(2)

	if len(got) != 2 {
		t.Fatalf("expected 2 emissions, got %d", len(got))
	}
	if got[0].Value != 1 || got[0].Index != 0 || got[0].Source != a {
		t.Errorf("unexpected first emission: %+v", got[0])
	}
	if got[1].Value != 2 || got[1].Index != 1 || got[1].Source != b {
		t.Errorf("unexpected second emission: %+v", got[1])
	}
}

func TestMergeConnectsLazilyAndReleasesOnLastUnsubscribe(t *testing.T) {
	env := newTestEnv(t)
	a := NewEmitter[string](env.opt())
	b := NewEmitter[string](env.opt())
	m := Merge[string](a, b)

	if m.Connected() || a.Len() != 0 {
		t.Fatal("expected no upstream subscriptions before the first subscriber")
	}

	unsub1 := m.Subscribe(func(Tagged[string]) {})
	unsub2 := m.Subscribe(func(Tagged[string]) {})
	if a.Len() != 1 || b.Len() != 1 {
		t.Fatalf("expected one upstream subscription per source, got %d and %d", a.Len(), b.Len())
	}

	unsub1()
	unsub1()
	if !m.Connected() {
		t.Fatal("expected merge to stay connected while a subscriber remains")
	}

	unsub2()
	if m.Connected() || a.Len() != 0 || b.Len() != 0 {
		t.Errorf("expected all upstream subscriptions released, got %d and %d", a.Len(), b.Len())
	}

	unsub2()
	m.Subscribe(func(Tagged[string]) {})
	if !m.Connected() || a.Len() != 1 {
		t.Error("expected a new subscriber to reconnect")
	}
}

func TestMergeDispose(t *testing.T) {
	env := newTestEnv(t)
	a := NewEmitter[int](env.opt())
	m := Merge[int](a)

	var rec recorder[Tagged[int]]
	m.Subscribe(rec.fn)
	m.Dispose()
	m.Dispose()

	if a.Len() != 0 {
		t.Errorf("expected upstream released, got %d", a.Len())
	}
	a.Emit(1)
	if len(rec.values) != 0 {
		t.Errorf("expected nothing after dispose, got %v", rec.values)
	}

	m.Subscribe(rec.fn)
	if m.Connected() {
		t.Error("disposed merge should not reconnect")
	}
}

func TestMergeAdaptedSources(t *testing.T) {
	env := newTestEnv(t)
	src := &feed{}
	adapted, err := AsObservable(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clicks := NewEmitter[any](env.opt())
	m := Merge[any](adapted, clicks)

	var order []int
	m.Subscribe(func(v Tagged[any]) { order = append(order, v.Index) })

	src.publish("tick")
	clicks.Emit(1)
	src.publish("tock")

	if !slices.Equal(order, []int{0, 1, 0}) {
		t.Errorf("expected emissions in occurrence order, got %v", order)
	}
}

func TestMergeSourceEmittingOnSubscribe(t *testing.T) {
	env := newTestEnv(t)
	src := &replaying{value: 42}
	m := MergeWith([]Option{env.opt()}, Subscribable[int](src))

	var (
		got         []int
		connectedIn []bool
	)
	done := make(chan Unsubscribe, 1)
	go func() {
		done <- m.Subscribe(func(v Tagged[int]) {
			got = append(got, v.Value)
			connectedIn = append(connectedIn, m.Connected())
			m.Subscribe(func(Tagged[int]) {})()
		})
	}()

	var unsub Unsubscribe
	select {
	case unsub = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe blocked on a source that emits while subscribing")
	}

	if !slices.Equal(got, []int{42}) {
		t.Errorf("expected the replayed value, got %v", got)
	}
	if !slices.Equal(connectedIn, []bool{false}) {
		t.Errorf("expected the merge to be connecting during the replay, got %v", connectedIn)
	}
	if !m.Connected() || src.Len() != 1 {
		t.Fatalf("expected one upstream subscription, got %d", src.Len())
	}

	unsub()
	if m.Connected() || src.Len() != 0 {
		t.Errorf("expected upstream released, got %d", src.Len())
	}
}

func TestMergeDisposedWhileConnecting(t *testing.T) {
	env := newTestEnv(t)
	a := &replaying{value: 1}
	b := &replaying{value: 2}
	m := MergeWith([]Option{env.opt()}, Subscribable[int](a), Subscribable[int](b))

	var got []int
	m.Subscribe(func(v Tagged[int]) {
		got = append(got, v.Value)
		m.Dispose()
	})

	if m.Connected() {
		t.Error("expected a merge disposed while connecting to stay disconnected")
	}
	if a.Len() != 0 || b.Len() != 0 {
		t.Errorf("expected upstream subscriptions released, got %d and %d", a.Len(), b.Len())
	}
	if !slices.Equal(got, []int{1}) {
		t.Errorf("expected delivery to stop at dispose, got %v", got)
	}
}

// replaying hands its current value to every new subscriber from inside
// Subscribe.
type replaying struct {
	mu    sync.Mutex
	value int
	subs  int
}

func (r *replaying) Subscribe(fn func(int)) Unsubscribe {
	r.mu.Lock()
	r.subs++
	v := r.value
	r.mu.Unlock()

	fn(v)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.subs--
			r.mu.Unlock()
		})
	}
}

func (r *replaying) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs
}

// feed is a foreign event source with its own subscription shape.
type feed struct {
	subs map[int]func(string)
	next int
}

func (f *feed) Subscribe(fn func(string)) func() {
	if f.subs == nil {
		f.subs = make(map[int]func(string))
	}
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() { delete(f.subs, id) }
}

func (f *feed) publish(s string) {
	for _, fn := range f.subs {
		fn(s)
	}
}
