package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/refs/internal/errors"
	"github.com/vango-dev/refs/pkg/loop"
	"github.com/vango-dev/refs/pkg/refs"
)

func benchCmd(flags *globalFlags) *cobra.Command {
	var (
		writes int
		fanout int
		batch  int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure writes against notifications and recomputes",
		Long: `Drive a fan-out graph on a virtual clock and report how many writes
became notifications and recomputations.

One source feeds --fanout mapped references, which all feed one computed
sum. --batch writes land in each tick, so a batch of 1 notifies on every
write and larger batches show coalescing.

Examples:
  reflab bench
  reflab bench --writes=100000 --fanout=32 --batch=10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(flags, writes, fanout, batch)
		},
	}

	cmd.Flags().IntVarP(&writes, "writes", "n", 0, "Number of writes (default from reflab.yaml)")
	cmd.Flags().IntVarP(&fanout, "fanout", "f", 0, "Number of mapped references (default from reflab.yaml)")
	cmd.Flags().IntVarP(&batch, "batch", "b", 1, "Writes per tick")
	return cmd
}

// benchResult is the outcome of one bench run.
type benchResult struct {
	writes        int
	ticks         int
	notifications int
	sum           int
	elapsed       time.Duration
}

func runBench(flags *globalFlags, writes, fanout, batch int) error {
	cfg, logger, err := flags.load()
	if err != nil {
		return err
	}
	if writes == 0 {
		writes = cfg.Bench.Writes
	}
	if fanout == 0 {
		fanout = cfg.Bench.Fanout
	}
	if writes < 0 || fanout < 0 || batch < 1 {
		return errors.New("R201").
			WithDetailf("writes=%d fanout=%d batch=%d", writes, fanout, batch).
			WithSuggestion("writes and fanout must be positive and batch at least 1")
	}

	ins := newInstruments(cfg, logger)
	clock := loop.NewManual(loop.WithLogger(logger))
	rt := refs.NewRuntime(
		refs.WithScheduler(clock),
		refs.WithLogger(logger),
		refs.WithHooks(ins.hooks),
	)

	res := bench(rt, clock, writes, fanout, batch)

	if want := writes * fanout * (fanout + 1) / 2; res.sum != want {
		return errors.Newf(errors.CategoryCLI, "bench: final sum %d, want %d", res.sum, want)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "writes\t%d\n", res.writes)
	fmt.Fprintf(tw, "ticks\t%d\n", res.ticks)
	fmt.Fprintf(tw, "sum notifications\t%d\n", res.notifications)
	fmt.Fprintf(tw, "deliveries\t%.0f\n", ins.count("deliveries_total"))
	fmt.Fprintf(tw, "recomputes\t%.0f\n", ins.count("recomputes_total"))
	fmt.Fprintf(tw, "coalesced\t%.0f\n", ins.count("coalesced_total"))
	fmt.Fprintf(tw, "elapsed\t%s\n", res.elapsed.Round(time.Microsecond))
	if res.writes > 0 {
		fmt.Fprintf(tw, "per write\t%s\n", res.elapsed/time.Duration(res.writes))
	}
	return tw.Flush()
}

// bench writes 1..writes to a source feeding fanout mapped references and
// one computed sum, flushing the clock after every batch.
func bench(rt *refs.Runtime, clock *loop.Manual, writes, fanout, batch int) benchResult {
	source := refs.NewRef(0, refs.WithRuntime(rt), refs.WithName("bench.source"))

	derived := make([]refs.Readable[int], fanout)
	for i := range derived {
		factor := i + 1
		derived[i] = refs.Map(source, func(v int) int { return v * factor })
	}
	sum := refs.ComputeAll(derived, func(values []int) int {
		total := 0
		for _, v := range values {
			total += v
		}
		return total
	}, refs.WithRuntime(rt), refs.WithName("bench.sum"))
	defer sum.Dispose()

	res := benchResult{writes: writes}
	unsub := sum.Watch(func(int) { res.notifications++ })
	defer unsub()

	start := time.Now()
	for i := 1; i <= writes; i++ {
		source.Set(i)
		if i%batch == 0 {
			clock.Flush()
			res.ticks++
		}
	}
	if writes%batch != 0 {
		clock.Flush()
		res.ticks++
	}
	res.elapsed = time.Since(start)
	res.sum = sum.Value()
	return res
}
