package main

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/vango-dev/refs/pkg/refs"
)

// driver writes to a scenario graph once through its script.
type driver func(ctx context.Context) error

type scenario struct {
	name        string
	description string
	setup       func(st *stage) (driver, error)
}

var scenarios = []scenario{
	{
		name:        "cart",
		description: "a price and a quantity feed a subtotal, tax and total; both writes land in one recompute",
		setup:       setupCart,
	},
	{
		name:        "search",
		description: "keystrokes are debounced before they reach the query that drives the results",
		setup:       setupSearch,
	},
	{
		name:        "pointer",
		description: "pointer moves are throttled to frames while two click sources are merged",
		setup:       setupPointer,
	},
}

func findScenario(name string) (scenario, bool) {
	for _, sc := range scenarios {
		if sc.name == name {
			return sc, true
		}
	}
	return scenario{}, false
}

func scenarioNames() []string {
	names := make([]string, len(scenarios))
	for i, sc := range scenarios {
		names[i] = sc.name
	}
	return names
}

func setupCart(st *stage) (driver, error) {
	price := refs.NewRef(9.99, st.opts("cart.price")...)
	qty := refs.NewRef(1, st.opts("cart.qty")...)

	subtotal := refs.Compute2(price, qty, func(p float64, q int) float64 {
		return p * float64(q)
	}, refs.WithName("cart.subtotal"))
	tax := refs.Map(subtotal, func(s float64) float64 {
		return math.Round(s*8) / 100
	}, refs.WithName("cart.tax"))
	total := refs.Compute2(subtotal, tax, func(s, t float64) float64 {
		return s + t
	}, refs.WithName("cart.total"))

	st.onDispose(total.Dispose)
	st.onDispose(tax.Dispose)
	st.onDispose(subtotal.Dispose)

	show(st, "cart.price", refs.Readable[float64](price))
	show(st, "cart.qty", refs.Readable[int](qty))
	show(st, "cart.subtotal", refs.Readable[float64](subtotal))
	show(st, "cart.total", refs.Readable[float64](total))

	return func(ctx context.Context) error {
		st.do(func() {
			price.Set(12.50)
			qty.Set(2)
		})
		if err := sleep(ctx, 100*time.Millisecond); err != nil {
			return err
		}
		st.do(func() {
			qty.Update(func(n int) int { return n + 1 })
		})
		return sleep(ctx, 100*time.Millisecond)
	}, nil
}

var searchWords = []string{
	"go", "gopher", "goroutine", "gofmt", "golang", "gob",
	"channel", "closure", "context", "defer", "generic", "interface",
}

func setupSearch(st *stage) (driver, error) {
	query := refs.NewRef("", st.opts("search.query")...)

	cfg := st.limit("search", refs.LimitConfig{
		Strategy: refs.Debounce,
		Timing:   refs.TimingTimeout,
		Interval: 300 * time.Millisecond,
	})
	input, err := refs.Limit[string](query, cfg, refs.WithName("search.input"))
	if err != nil {
		return nil, err
	}
	st.onDispose(input.Dispose)

	results := refs.Map(query, func(q string) []string {
		if q == "" {
			return nil
		}
		var out []string
		for _, w := range searchWords {
			if strings.HasPrefix(w, q) {
				out = append(out, w)
			}
		}
		sort.Strings(out)
		return out
	}, refs.WithName("search.results"))
	st.onDispose(results.Dispose)

	show(st, "search.query", refs.Readable[string](query))
	show(st, "search.results", refs.Readable[[]string](results))

	settle := cfg.Interval + 100*time.Millisecond
	return func(ctx context.Context) error {
		for _, text := range []string{"g", "go", "gor", "goro", "gorou"} {
			st.do(func() { input.Set(text) })
			if err := sleep(ctx, 40*time.Millisecond); err != nil {
				return err
			}
		}
		if err := sleep(ctx, settle); err != nil {
			return err
		}
		st.do(func() { input.Set("go") })
		return sleep(ctx, settle)
	}, nil
}

func setupPointer(st *stage) (driver, error) {
	x := refs.NewRef(0, st.opts("pointer.x")...)

	cfg := st.limit("pointer", refs.LimitConfig{
		Strategy: refs.Throttle,
		Timing:   refs.TimingFrame,
	})
	moves, err := refs.Limit[int](x, cfg, refs.WithName("pointer.input"))
	if err != nil {
		return nil, err
	}
	st.onDispose(moves.Dispose)

	left := refs.NewEmitter[string](st.opts("pointer.left")...)
	right := refs.NewEmitter[string](st.opts("pointer.right")...)
	clicks := refs.Merge[string](left, right)
	st.onDispose(clicks.Dispose)

	show(st, "pointer.x", refs.Readable[int](x))
	st.onDispose(clicks.Subscribe(func(t refs.Tagged[string]) {
		side := "left"
		if t.Index == 1 {
			side = "right"
		}
		st.printf("%-16s %s %s", "pointer.click", side, t.Value)
	}))

	return func(ctx context.Context) error {
		for i := 1; i <= 30; i++ {
			st.do(func() { moves.Set(i * 10) })
			if err := sleep(ctx, 2*time.Millisecond); err != nil {
				return err
			}
		}
		if err := sleep(ctx, 50*time.Millisecond); err != nil {
			return err
		}
		st.do(func() {
			left.Emit("down")
			right.Emit("down")
			left.Emit("up")
		})
		return sleep(ctx, 20*time.Millisecond)
	}, nil
}
