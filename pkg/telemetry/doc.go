// Package telemetry provides refs.Hooks implementations that export the
// propagation engine's activity.
//
// Metrics records Prometheus counters and histograms, Tracing emits
// OpenTelemetry spans for recomputations and faults, and Logging writes
// structured log records. Combine fans one hook call out to several.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	rt := refs.NewRuntime(
//	    refs.WithHooks(telemetry.Combine(
//	        telemetry.NewMetrics(telemetry.WithRegistry(reg)),
//	        telemetry.NewTracing(telemetry.WithTracerName("my-app")),
//	    )),
//	)
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package telemetry
