package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/vango-dev/refs/internal/config"
	"github.com/vango-dev/refs/pkg/refs"
	"github.com/vango-dev/refs/pkg/telemetry"
)

// instruments bundles the hooks installed on a stage runtime.
type instruments struct {
	hooks    refs.Hooks
	metrics  *telemetry.Metrics
	registry *prometheus.Registry
	provider *sdktrace.TracerProvider

	namespace string
	subsystem string
}

func newInstruments(cfg *config.Config, logger *slog.Logger) *instruments {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics := telemetry.NewMetrics(
		telemetry.WithNamespace(cfg.Metrics.Namespace),
		telemetry.WithSubsystem(cfg.Metrics.Subsystem),
		telemetry.WithRegistry(reg),
	)
	ins := &instruments{
		metrics:   metrics,
		registry:  reg,
		namespace: cfg.Metrics.Namespace,
		subsystem: cfg.Metrics.Subsystem,
	}

	hooks := []refs.Hooks{telemetry.NewLogging(logger), metrics}
	if cfg.Tracing.Enabled {
		ins.provider = sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(&logExporter{logger: logger.With("component", "trace")}),
		)
		hooks = append(hooks, telemetry.NewTracing(
			telemetry.WithTracerProvider(ins.provider),
			telemetry.WithTraceDeliveries(cfg.Tracing.Deliveries),
		))
	}
	ins.hooks = telemetry.Combine(hooks...)
	return ins
}

func (ins *instruments) shutdown(ctx context.Context) error {
	if ins.provider == nil {
		return nil
	}
	return ins.provider.Shutdown(ctx)
}

// count sums every sample of the named refs metric family. Histograms
// contribute their sample count.
func (ins *instruments) count(name string) float64 {
	name = prometheus.BuildFQName(ins.namespace, ins.subsystem, name)
	families, err := ins.registry.Gather()
	if err != nil {
		return 0
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if h := m.GetHistogram(); h != nil {
				total += float64(h.GetSampleCount())
			}
		}
	}
	return total
}

// logExporter writes finished spans to the log.
type logExporter struct {
	logger *slog.Logger
}

func (e *logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		attrs := []any{
			"span", span.Name(),
			"duration", span.EndTime().Sub(span.StartTime()),
			"status", span.Status().Code.String(),
		}
		for _, kv := range span.Attributes() {
			attrs = append(attrs, string(kv.Key), kv.Value.Emit())
		}
		e.logger.Debug("span", attrs...)
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error {
	return nil
}
