package refs

import (
	"errors"
	"slices"
	"strconv"
	"testing"
)

func TestMapComputesEagerly(t *testing.T) {
	env := newTestEnv(t)
	r := NewRef(2, env.opt())
	m := Map(r, func(v int) int { return v * 10 })

	if m.Value() != 20 {
		t.Errorf("expected 20 at construction, got %d", m.Value())
	}
}

func TestMapDeliveryIsDeferredAndCoalesced(t *testing.T) {
	env := newTestEnv(t)
	r := NewRef(2, env.opt())
	m := Map(r, func(v int) int { return v * 10 })
	var rec recorder[int]
	m.Watch(rec.fn)

	r.Set(3)
	r.Set(4)
	if len(rec.values) != 0 {
		t.Fatalf("expected no synchronous delivery, got %v", rec.values)
	}

	env.clock.Flush()
	if m.Value() != 40 {
		t.Errorf("expected 40, got %d", m.Value())
	}
	if !slices.Equal(rec.values, []int{40}) {
		t.Errorf("expected [40], got %v", rec.values)
	}
}

func TestMapDoesNotSuppressEqualOutputs(t *testing.T) {
	env := newTestEnv(t)
	r := NewRef(1, env.opt())
	parity := Map(r, func(v int) int { return v % 2 })
	var rec recorder[int]
	parity.Watch(rec.fn)

	r.Set(3)
	env.clock.Flush()
	r.Set(5)
	env.clock.Flush()

	if !slices.Equal(rec.values, []int{1, 1}) {
		t.Errorf("expected an emission per origin change, got %v", rec.values)
	}
	if parity.Value() != 1 {
		t.Errorf("expected 1, got %d", parity.Value())
	}
}

func TestMapSubscribeGetsCurrentValue(t *testing.T) {
	env := newTestEnv(t)
	r := NewRef(7, env.opt())
	s := Map(r, strconv.Itoa)
	var rec recorder[string]
	s.Subscribe(rec.fn)

	env.clock.Flush()
	if !slices.Equal(rec.values, []string{"7"}) {
		t.Errorf("expected [7], got %v", rec.values)
	}
}

func TestMapTransformPanicKeepsValue(t *testing.T) {
	env := newTestEnv(t)
	r := NewRef(1, env.opt())
	m := Map(r, func(v int) int {
		if v < 0 {
			panic("negative")
		}
		return v
	}, WithName("abs"))
	var rec recorder[int]
	m.Watch(rec.fn)

	r.Set(-1)
	env.clock.Flush()

	if m.Value() != 1 {
		t.Errorf("expected previous value 1, got %d", m.Value())
	}
	if len(rec.values) != 0 {
		t.Errorf("expected no emission, got %v", rec.values)
	}
	f := env.fault(t, 0)
	if f.Kind != FaultCompute || f.Source != KindMapped || f.Name != "abs" {
		t.Errorf("unexpected fault: %+v", f)
	}

	r.Set(4)
	env.clock.Flush()
	if !slices.Equal(rec.values, []int{4}) {
		t.Errorf("expected recovery to [4], got %v", rec.values)
	}
}

func TestMapInitialTransformPanicIsReported(t *testing.T) {
	env := newTestEnv(t)
	r := NewRef(-1, env.opt())
	m := Map(r, func(v int) int {
		if v < 0 {
			panic("negative")
		}
		return v * 10
	}, WithName("scaled"))

	if m.Value() != 0 {
		t.Errorf("expected zero value after a failed first transform, got %d", m.Value())
	}
	f := env.fault(t, 0)
	if f.Kind != FaultCompute || f.Source != KindMapped || f.Name != "scaled" {
		t.Errorf("unexpected fault: %+v", f)
	}

	r.Set(2)
	env.clock.Flush()
	if m.Value() != 20 {
		t.Errorf("expected recovery to 20, got %d", m.Value())
	}
}

func TestMapper(t *testing.T) {
	env := newTestEnv(t)
	double := Mapper(func(v int) int { return v * 2 })
	a := double(NewRef(1, env.opt()))
	b := double(NewRef(5, env.opt()))

	if a.Value() != 2 || b.Value() != 10 {
		t.Errorf("expected 2 and 10, got %d and %d", a.Value(), b.Value())
	}
}

func TestFallback(t *testing.T) {
	env := newTestEnv(t)
	r := NewRef("", env.opt())
	name := Fallback(r, "anonymous")

	if name.Value() != "anonymous" {
		t.Errorf("expected fallback, got %q", name.Value())
	}
	r.Set("ada")
	env.clock.Flush()
	if name.Value() != "ada" {
		t.Errorf("expected ada, got %q", name.Value())
	}
}

func TestFallbackPtr(t *testing.T) {
	env := newTestEnv(t)
	r := NewRef[*int](nil, env.opt())
	v := FallbackPtr(r, 7)

	if v.Value() != 7 {
		t.Errorf("expected fallback 7, got %d", v.Value())
	}
	x := 3
	r.Set(&x)
	env.clock.Flush()
	if v.Value() != 3 {
		t.Errorf("expected 3, got %d", v.Value())
	}
}

func TestMapDispose(t *testing.T) {
	env := newTestEnv(t)
	r := NewRef(1, env.opt())
	m := Map(r, func(v int) int { return v + 1 })
	var rec recorder[int]
	m.Watch(rec.fn)

	m.Dispose()
	m.Dispose()
	if r.Subscribers() != 0 {
		t.Errorf("expected origin subscription released, got %d", r.Subscribers())
	}

	r.Set(10)
	env.clock.Flush()
	if m.Value() != 2 || len(rec.values) != 0 {
		t.Errorf("disposed map should not update, got value %d and %v", m.Value(), rec.values)
	}
}

func TestMapInheritsOriginRuntime(t *testing.T) {
	env := newTestEnv(t)
	r := NewRef(1, env.opt())
	m := Map(r, func(v int) int { return v })
	if m.runtime() != env.rt {
		t.Error("expected mapped reference to use its origin's runtime")
	}
}

func TestMapMisuse(t *testing.T) {
	env := newTestEnv(t)

	err := expectPanic(t, func() { Map[int, int](nil, func(v int) int { return v }) })
	if !errors.Is(err, ErrNotObservable) {
		t.Errorf("expected ErrNotObservable, got %v", err)
	}

	var nilRef *Ref[int]
	err = expectPanic(t, func() { Map[int, int](nilRef, func(v int) int { return v }) })
	if !errors.Is(err, ErrNotObservable) {
		t.Errorf("expected ErrNotObservable for nil pointer, got %v", err)
	}

	err = expectPanic(t, func() { Map[int, int](NewRef(0, env.opt()), nil) })
	if !errors.Is(err, ErrNilFunc) {
		t.Errorf("expected ErrNilFunc, got %v", err)
	}
}
