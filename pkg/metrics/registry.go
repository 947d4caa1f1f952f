// Package metrics defines the ingestion metrics interface and the optional
// HTTP endpoint that exposes them.
//
// Metrics are off unless InitRegistry is called; the orchestrator then
// receives a no-op IngestMetrics and pays nothing for it.
//
// Usage:
//
//	metrics.InitRegistry()
//	m := prometheus.NewIngestMetrics() // pkg/metrics/prometheus
//	deps.Metrics = m // ingest.Dependencies
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and only read afterwards.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// Call it before creating metrics instances. Repeated calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global Prometheus registry.
//
// Returns nil if InitRegistry() has not been called, indicating metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
