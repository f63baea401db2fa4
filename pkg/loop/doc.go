// Package loop provides the scheduling environment the reactive core runs
// on: a scheduling-tick tier, a timer tier and an animation-frame tier.
//
// Loop is the production implementation. It owns one goroutine and runs
// every callback there:
//
//	l := loop.New(loop.WithFrameInterval(16 * time.Millisecond))
//	l.Start(ctx)
//	defer l.Close()
//
//	l.Dispatch(func() {
//	    // runs on the loop goroutine
//	})
//
// Work from other goroutines enters the loop through Dispatch. Tick, After
// and Frame are goroutine-safe, but only callbacks that run on the loop see
// a consistent sequence of them. Timers that fire while the Dispatch queue
// is full are held until the loop is free and are never dropped.
//
// Manual is a virtual-time implementation for tests and deterministic hosts:
//
//	m := loop.NewManual()
//	m.Tick(fn)
//	m.Flush()                     // runs fn
//	m.After(time.Second, fn)
//	m.Advance(time.Second)        // runs fn at t=1s
//
// # Ordering
//
// Tick callbacks always run before the next timer or frame callback. A tick
// callback that queues another tick runs it in the same drain.
package loop
