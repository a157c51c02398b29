/*
Package observability turns engine lifecycle events into Prometheus metrics
and structured log records.

Both are plain domain.LifecycleHooks values and can be combined:

	m := observability.NewMetrics(prometheus.NewRegistry())
	hooks := m.Hooks().Chain(observability.LoggingHooks(logger))
*/
package observability
