package config

import (
	"github.com/marmos91/emingest/pkg/metrics"
	promMetrics "github.com/marmos91/emingest/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Ingest is the pipeline collector (never nil, uses noop if disabled)
	Ingest metrics.IngestMetrics
}

// InitializeMetrics creates the metrics components based on configuration.
//
// When disabled it returns a nil server and no-op collectors.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Server: nil,
			Ingest: metrics.NewNoopIngestMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server: server,
		Ingest: promMetrics.NewIngestMetrics(),
	}
}
