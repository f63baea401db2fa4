// Package refs provides reactive references with coalesced, deferred
// change propagation.
//
// Dependencies are declared explicitly. A write stores the value right away
// and schedules one notification on the next scheduling tick, so a burst of
// writes produces one notification carrying the final value.
//
// # Core Types
//
// Ref[T] is a mutable reference:
//
//	count := refs.NewRef(0)
//	rt := refs.DefaultRuntime()
//	rt.Dispatch(func() {
//	    count.Set(1)
//	    count.Set(2)          // subscribers see 2 once, on the next tick
//	    count.Value()         // 2, immediately
//	})
//
// Mapped[T] derives from one origin:
//
//	label := refs.Map(count, strconv.Itoa)
//
// Computed[T] derives from several and recomputes at most once per tick:
//
//	total := refs.Compute2(price, qty, func(p float64, q int) float64 {
//	    return p * float64(q)
//	})
//
// Limited[T] rate-limits the write path of a reference:
//
//	query := refs.Debounced(search, 300*time.Millisecond)
//	query.Set("g")
//	query.Set("go")           // only "go" reaches search
//
// Merged[T] fans in raw event sources, tagging each value with its source:
//
//	clicks := refs.Merge[Point](left, right)
//
// # Runtime
//
// Every primitive belongs to a Runtime, which supplies the scheduler, the
// logger, the hooks and the error sink.
//
// # Threading
//
// A graph is single-threaded. Set, Subscribe and Dispose run on the
// scheduler's goroutine: inside Runtime.Dispatch (or loop.Loop.Dispatch), or
// inside a notification, timer or compute callback. A Set made from another
// goroutine schedules its tick immediately, so a dependent may run between
// two such writes and see one of them without the other. Value is safe to
// call from any goroutine.
//
// On a loop.Manual scheduler the goroutine that calls Flush and Advance
// owns the graph. Panics in subscribers and compute
// functions are recovered and reported as *FaultError; they never reach
// the writer.
package refs
