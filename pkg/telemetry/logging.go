package telemetry

import (
	"log/slog"

	"github.com/vango-dev/refs/pkg/refs"
)

// Logging is a refs.Hooks that writes structured log records. Faults are
// logged at error level; rate limiter decisions and coalescing at debug.
type Logging struct {
	refs.NopHooks
	logger *slog.Logger
}

// NewLogging creates logging hooks. A nil logger uses slog.Default().
func NewLogging(logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{logger: logger.With("component", "refs.hooks")}
}

// OnCoalesce implements refs.Hooks.
func (l *Logging) OnCoalesce(kind refs.Kind, name string) {
	l.logger.Debug("coalesced", "kind", kind.String(), "name", name)
}

// OnLimit implements refs.Hooks.
func (l *Logging) OnLimit(name string, strategy refs.Strategy, outcome refs.LimitOutcome) {
	l.logger.Debug("rate limit",
		"name", name,
		"strategy", strategy.String(),
		"outcome", outcome.String())
}

// OnFault implements refs.Hooks.
func (l *Logging) OnFault(err *refs.FaultError) {
	l.logger.Error("fault",
		"fault", err.Kind.String(),
		"kind", err.Source.String(),
		"id", err.ID,
		"name", err.Name,
		"panic", err.Value)
}

var _ refs.Hooks = (*Logging)(nil)
