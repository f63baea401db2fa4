package telemetry

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/vango-dev/refs/pkg/refs"
)

func TestCombine_FansOut(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg))
	var buf bytes.Buffer
	logging := NewLogging(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	rt, clock := newRuntime(t, Combine(m, nil, logging))
	r := refs.NewRef(0, refs.WithRuntime(rt), refs.WithName("count"))
	r.Watch(func(int) { panic("boom") })

	r.Set(1)
	r.Set(2)
	clock.Flush()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.coalesced.WithLabelValues("ref")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.faults.WithLabelValues("subscriber", "ref")))
	assert.Contains(t, buf.String(), "msg=coalesced")
	assert.Contains(t, buf.String(), "msg=fault")
	assert.Contains(t, buf.String(), "name=count")
}

func TestCombine_Degenerate(t *testing.T) {
	assert.Equal(t, refs.NopHooks{}, Combine())
	assert.Equal(t, refs.NopHooks{}, Combine(nil))

	l := NewLogging(nil)
	assert.Same(t, l, Combine(l))
}

func TestCombine_RecomputeCallsEveryDone(t *testing.T) {
	a, b := &countingHooks{}, &countingHooks{}
	done := Combine(a, b).OnRecompute(refs.KindComputed, "x")
	done(nil)
	assert.Equal(t, 1, a.done)
	assert.Equal(t, 1, b.done)
}

type countingHooks struct {
	refs.NopHooks
	done int
}

func (c *countingHooks) OnRecompute(refs.Kind, string) func(error) {
	return func(error) { c.done++ }
}
