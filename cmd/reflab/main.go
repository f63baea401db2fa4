package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/refs/internal/config"
	"github.com/vango-dev/refs/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	dir         string
	logLevel    string
	logFormat   string
	errorFormat string
	noColor     bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run executes the command line and returns the exit code.
func run(args []string, stderr io.Writer) int {
	flags := &globalFlags{}
	rootCmd := newRootCmd(flags)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return report(stderr, err, flags.errorFormat)
	}
	return 0
}

// report prints err in the requested format and returns the exit code:
// 2 for usage errors, 1 otherwise.
func report(w io.Writer, err error, format string) int {
	style, perr := errors.ParseStyle(format)
	if perr != nil {
		style = errors.StyleText
	}
	coded := errors.FromError(err, "R203")
	errors.PrintError(w, coded, style)
	if errors.Is(coded, "R201") || errors.Is(coded, "R202") {
		return 2
	}
	return 1
}

func newRootCmd(flags *globalFlags) *cobra.Command {

	rootCmd := &cobra.Command{
		Use:   "reflab",
		Short: "Explore reactive references",
		Long: `reflab runs small reference graphs and shows how changes propagate.

Writes are coalesced into one notification per tick, derived values
recompute once per tick, and rate limiters debounce or throttle the
write path. reflab lets you watch that happen:

  demo    run a scenario and print every notification
  bench   measure writes against notifications and recomputes
  serve   run every scenario behind the HTTP inspector
  init    write a reflab.yaml with the defaults`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.noColor {
				errors.DisableColors()
			}
			if _, err := errors.ParseStyle(flags.errorFormat); err != nil {
				return errors.New("R201").Wrap(err).
					WithDetail(err.Error()).
					WithSuggestion("Use --error-format=text, compact or json")
			}
			return nil
		},
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.New("R201").Wrap(err).
			WithDetail(err.Error()).
			WithSuggestion("Run '" + cmd.CommandPath() + " --help' for usage")
	})

	rootCmd.PersistentFlags().StringVarP(&flags.dir, "dir", "C", ".", "Directory containing "+config.ConfigFileName)
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&flags.errorFormat, "error-format", "text", "Error output format (text, compact, json)")
	rootCmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		demoCmd(flags),
		benchCmd(flags),
		serveCmd(flags),
		initCmd(flags),
		versionCmd(),
	)
	return rootCmd
}

// load reads the configuration and applies flag overrides.
func (f *globalFlags) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadOptional(f.dir)
	if err != nil {
		return nil, nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, cfg.Logger(os.Stderr), nil
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
