package main

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/refs/internal/config"
	"github.com/vango-dev/refs/internal/errors"
)

func initCmd(flags *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default " + config.ConfigFileName,
		Long: `Write a reflab.yaml with the default settings and the rate limiters
used by the demo scenarios, ready to be edited.

Examples:
  reflab init
  reflab init -C ./lab --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(flags.dir, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func runInit(dir string, force bool) error {
	path := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(path); err == nil && !force {
		return errors.New("R201").
			WithDetailf("%s already exists", path).
			WithSuggestion("Use --force to overwrite it")
	} else if err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return errors.New("R101").Wrap(err).WithDetail(err.Error())
	}

	cfg := config.New()
	cfg.Limits = map[string]config.LimitSpec{
		"search":  {Strategy: "debounce", Timing: "timeout", Interval: 300 * time.Millisecond},
		"pointer": {Strategy: "throttle", Timing: "frame"},
	}
	if err := cfg.SaveTo(path); err != nil {
		return err
	}
	success("Wrote %s", path)
	return nil
}
