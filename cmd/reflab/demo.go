package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/refs/internal/config"
	"github.com/vango-dev/refs/internal/errors"
)

func demoCmd(flags *globalFlags) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "demo [scenario...]",
		Short: "Run scenarios and print every notification",
		Long: `Run one or more scenarios on a live event loop and print each
notification as it is delivered, with the time since the scenario started.

Without arguments every scenario runs in turn. Rate limiters can be tuned
in the limits section of reflab.yaml.

Examples:
  reflab demo
  reflab demo search --log-level=debug
  reflab demo --list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				listScenarios()
				return nil
			}
			return runDemo(cmd.Context(), flags, args)
		},
	}

	cmd.Flags().BoolVarP(&list, "list", "l", false, "List scenarios and exit")
	return cmd
}

func listScenarios() {
	for _, sc := range scenarios {
		info("%-8s %s", sc.name, sc.description)
	}
}

func selectScenarios(names []string) ([]scenario, error) {
	if len(names) == 0 {
		return scenarios, nil
	}
	selected := make([]scenario, 0, len(names))
	for _, name := range names {
		sc, ok := findScenario(name)
		if !ok {
			return nil, errors.New("R202").
				WithDetailf("no scenario named %q", name).
				WithSuggestion("Available: " + strings.Join(scenarioNames(), ", "))
		}
		selected = append(selected, sc)
	}
	return selected, nil
}

func runDemo(ctx context.Context, flags *globalFlags, names []string) error {
	selected, err := selectScenarios(names)
	if err != nil {
		return err
	}
	cfg, logger, err := flags.load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, sc := range selected {
		fmt.Printf("\n%s: %s\n\n", sc.name, sc.description)
		if err := runScenario(ctx, cfg, logger, sc); err != nil {
			if stderrors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
	return nil
}

func runScenario(ctx context.Context, cfg *config.Config, logger *slog.Logger, sc scenario) error {
	ins := newInstruments(cfg, logger)
	defer ins.shutdown(context.Background())

	st := newStage(cfg, logger, ins.hooks, os.Stdout)
	st.start()
	defer st.close()

	var (
		drive driver
		err   error
	)
	st.do(func() { drive, err = sc.setup(st) })
	if err != nil {
		return errors.New("R102").Wrap(err).WithDetailf("scenario %s: %v", sc.name, err)
	}

	if err := drive(ctx); err != nil {
		return err
	}
	st.settle()

	fmt.Println()
	success("%s: %.0f notifications, %.0f recomputes, %.0f coalesced, %d faults",
		sc.name,
		ins.count("deliveries_total"),
		ins.count("recomputes_total"),
		ins.count("coalesced_total"),
		st.faults.Load())
	return nil
}
