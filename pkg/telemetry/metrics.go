package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/refs/pkg/refs"
)

// MetricsConfig configures the Prometheus hooks.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "refs").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for recompute duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus hooks.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "refs",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics is a refs.Hooks that records Prometheus metrics.
//
// Metrics collected:
//   - refs_deliveries_total: notification passes by primitive kind
//   - refs_subscriber_calls_total: subscriber callbacks invoked by kind
//   - refs_coalesced_total: writes and invalidations folded into a pending pass
//   - refs_recomputes_total: recomputations by kind and status
//   - refs_recompute_duration_seconds: recomputation duration
//   - refs_limit_decisions_total: rate limiter decisions by strategy and outcome
//   - refs_faults_total: recovered panics by fault kind and source kind
//
// Labels never include primitive names, which are unbounded.
type Metrics struct {
	deliveries        *prometheus.CounterVec
	subscriberCalls   *prometheus.CounterVec
	coalesced         *prometheus.CounterVec
	recomputes        *prometheus.CounterVec
	recomputeDuration *prometheus.HistogramVec
	limitDecisions    *prometheus.CounterVec
	faults            *prometheus.CounterVec
}

// NewMetrics registers the metrics with the configured registry. Creating
// two Metrics on the same registry panics, as promauto does.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "deliveries_total",
			Help:        "Total number of notification passes",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		subscriberCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "subscriber_calls_total",
			Help:        "Total number of subscriber callbacks invoked",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		coalesced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "coalesced_total",
			Help:        "Total number of writes and invalidations folded into a pending pass",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		recomputes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "recomputes_total",
			Help:        "Total number of derived value recomputations",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "status"}),

		recomputeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "recompute_duration_seconds",
			Help:        "Derived value recomputation duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"kind"}),

		limitDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "limit_decisions_total",
			Help:        "Total number of rate limiter decisions",
			ConstLabels: config.ConstLabels,
		}, []string{"strategy", "outcome"}),

		faults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "faults_total",
			Help:        "Total number of recovered subscriber and compute panics",
			ConstLabels: config.ConstLabels,
		}, []string{"fault", "kind"}),
	}
}

// OnDeliver implements refs.Hooks.
func (m *Metrics) OnDeliver(kind refs.Kind, _ string, subscribers int) {
	m.deliveries.WithLabelValues(kind.String()).Inc()
	m.subscriberCalls.WithLabelValues(kind.String()).Add(float64(subscribers))
}

// OnCoalesce implements refs.Hooks.
func (m *Metrics) OnCoalesce(kind refs.Kind, _ string) {
	m.coalesced.WithLabelValues(kind.String()).Inc()
}

// OnRecompute implements refs.Hooks.
func (m *Metrics) OnRecompute(kind refs.Kind, _ string) func(error) {
	start := time.Now()
	return func(err error) {
		m.recomputeDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
		status := "success"
		if err != nil {
			status = "error"
		}
		m.recomputes.WithLabelValues(kind.String(), status).Inc()
	}
}

// OnLimit implements refs.Hooks.
func (m *Metrics) OnLimit(_ string, strategy refs.Strategy, outcome refs.LimitOutcome) {
	m.limitDecisions.WithLabelValues(strategy.String(), outcome.String()).Inc()
}

// OnFault implements refs.Hooks.
func (m *Metrics) OnFault(err *refs.FaultError) {
	m.faults.WithLabelValues(err.Kind.String(), err.Source.String()).Inc()
}

var _ refs.Hooks = (*Metrics)(nil)
