package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/refs/internal/errors"
	"github.com/vango-dev/refs/internal/inspect"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		addr  string
		pause time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run every scenario behind the HTTP inspector",
		Long: `Run every scenario in a loop and expose the references through the
inspector until interrupted.

Endpoints:
  /refs           snapshot of every reference
  /refs/{name}    snapshot of one reference
  /watch          websocket change stream (?ref=cart.total)
  /metrics        Prometheus metrics
  /healthz        liveness

Examples:
  reflab serve
  reflab serve --addr=:7070`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags, addr, pause)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from reflab.yaml)")
	cmd.Flags().DurationVar(&pause, "pause", time.Second, "Pause between scenario runs")
	return cmd
}

func runServe(ctx context.Context, flags *globalFlags, addr string, pause time.Duration) error {
	cfg, logger, err := flags.load()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Inspect.Addr = addr
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ins := newInstruments(cfg, logger)
	defer ins.shutdown(context.Background())

	st := newStage(cfg, logger, ins.hooks, io.Discard)
	st.start()
	defer st.close()

	drivers := make([]driver, 0, len(scenarios))
	for _, sc := range scenarios {
		var (
			drive driver
			err   error
		)
		st.do(func() { drive, err = sc.setup(st) })
		if err != nil {
			return errors.New("R102").Wrap(err).WithDetailf("scenario %s: %v", sc.name, err)
		}
		drivers = append(drivers, drive)
	}

	for _, drive := range drivers {
		go func() {
			for {
				if err := drive(ctx); err != nil {
					return
				}
				if err := sleep(ctx, pause); err != nil {
					return
				}
			}
		}()
	}

	srv := inspect.New(st.registry,
		inspect.WithLogger(logger),
		inspect.WithHeartbeat(cfg.Inspect.Heartbeat),
		inspect.WithRegistry(ins.registry),
	)

	success("Inspecting %d references on http://%s", st.registry.Len(), cfg.Inspect.Addr)
	info("Press Ctrl+C to stop")

	if err := srv.ListenAndServe(ctx, cfg.Inspect.Addr); err != nil {
		return errors.New("R301").Wrap(err).WithDetail(err.Error())
	}
	return nil
}
