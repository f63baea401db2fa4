package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/refs/pkg/refs"
)

// Default tracer name for the propagation engine.
const defaultTracerName = "refs"

// TracingConfig configures the OpenTelemetry hooks.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "refs").
	TracerName string

	// Provider is the tracer provider. If nil, the global provider is used.
	Provider trace.TracerProvider

	// TraceDeliveries also emits a short span per notification pass.
	// Disabled by default; passes are frequent.
	TraceDeliveries bool

	// Attributes are added to every span.
	Attributes []attribute.KeyValue
}

// TracingOption configures the OpenTelemetry hooks.
type TracingOption func(*TracingConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(provider trace.TracerProvider) TracingOption {
	return func(c *TracingConfig) {
		c.Provider = provider
	}
}

// WithTraceDeliveries enables or disables delivery spans.
func WithTraceDeliveries(enabled bool) TracingOption {
	return func(c *TracingConfig) {
		c.TraceDeliveries = enabled
	}
}

// WithAttributes adds attributes to every span.
func WithAttributes(attrs ...attribute.KeyValue) TracingOption {
	return func(c *TracingConfig) {
		c.Attributes = append(c.Attributes, attrs...)
	}
}

// Tracing is a refs.Hooks that emits OpenTelemetry spans.
//
// Every recomputation becomes a "refs.recompute" span whose status reflects
// whether the compute function panicked. Subscriber faults become
// "refs.fault" spans with the error recorded.
type Tracing struct {
	refs.NopHooks

	tracer     trace.Tracer
	deliveries bool
	attrs      []attribute.KeyValue
}

// NewTracing creates tracing hooks.
func NewTracing(opts ...TracingOption) *Tracing {
	config := TracingConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}

	provider := config.Provider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracing{
		tracer:     provider.Tracer(config.TracerName),
		deliveries: config.TraceDeliveries,
		attrs:      config.Attributes,
	}
}

func (t *Tracing) start(spanName string, attrs ...attribute.KeyValue) trace.Span {
	_, span := t.tracer.Start(context.Background(), spanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(t.attrs...),
		trace.WithAttributes(attrs...),
	)
	return span
}

func nodeAttrs(kind refs.Kind, name string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("refs.kind", kind.String())}
	if name != "" {
		attrs = append(attrs, attribute.String("refs.name", name))
	}
	return attrs
}

// OnDeliver implements refs.Hooks.
func (t *Tracing) OnDeliver(kind refs.Kind, name string, subscribers int) {
	if !t.deliveries {
		return
	}
	span := t.start("refs.deliver", append(nodeAttrs(kind, name),
		attribute.Int("refs.subscribers", subscribers))...)
	span.End()
}

// OnRecompute implements refs.Hooks.
func (t *Tracing) OnRecompute(kind refs.Kind, name string) func(error) {
	span := t.start("refs.recompute", nodeAttrs(kind, name)...)
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// OnFault implements refs.Hooks. Compute faults are already recorded on
// their recompute span.
func (t *Tracing) OnFault(err *refs.FaultError) {
	if err.Kind != refs.FaultSubscriber {
		return
	}
	attrs := append(nodeAttrs(err.Source, err.Name),
		attribute.Int64("refs.id", int64(err.ID)),
		attribute.String("refs.fault", err.Kind.String()),
	)
	span := t.start("refs.fault", attrs...)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

var _ refs.Hooks = (*Tracing)(nil)
