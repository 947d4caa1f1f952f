package prometheus

import (
	"time"

	"github.com/marmos91/emingest/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ingestMetrics is the Prometheus implementation of metrics.IngestMetrics.
type ingestMetrics struct {
	downloadsTotal     prometheus.Counter
	downloadBytesTotal prometheus.Counter
	skippedTotal       prometheus.Counter
	inFlight           prometheus.Gauge
	filesTotal         *prometheus.CounterVec
	processDuration    *prometheus.HistogramVec
	volumeBytesTotal   *prometheus.CounterVec
}

// NewIngestMetrics creates IngestMetrics on the global registry.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewIngestMetrics() metrics.IngestMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopIngestMetrics()
	}
	return NewIngestMetricsWith(metrics.GetRegistry())
}

// NewIngestMetricsWith registers the collectors on reg.
func NewIngestMetricsWith(reg prometheus.Registerer) metrics.IngestMetrics {
	return &ingestMetrics{
		downloadsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "emingest_downloads_total",
				Help: "Total number of raw files downloaded from the repository",
			},
		),
		downloadBytesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "emingest_download_bytes_total",
				Help: "Total bytes downloaded from the repository",
			},
		),
		skippedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "emingest_listing_skipped_total",
				Help: "Listing entries skipped because they are not regular files",
			},
		),
		inFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "emingest_files_in_flight",
				Help: "Files currently being processed by workers",
			},
		),
		filesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "emingest_files_processed_total",
				Help: "Processed files by format, status and failure kind",
			},
			[]string{"format", "status", "kind"},
		),
		processDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "emingest_file_processing_duration_seconds",
				Help: "Time to decode and persist one file",
				Buckets: []float64{
					0.01, // 10ms
					0.1,  // 100ms
					0.5,  // 500ms
					1,    // 1s
					5,    // 5s
					30,   // 30s
					120,  // 2m
					600,  // 10m
				},
			},
			[]string{"format"},
		),
		volumeBytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "emingest_volume_bytes_total",
				Help: "Bytes of decoded volume data persisted",
			},
			[]string{"format"},
		),
	}
}

func (m *ingestMetrics) RecordDownload(bytes int64) {
	m.downloadsTotal.Inc()
	m.downloadBytesTotal.Add(float64(bytes))
}

func (m *ingestMetrics) RecordSkipped() {
	m.skippedTotal.Inc()
}

func (m *ingestMetrics) RecordProcessingStart() {
	m.inFlight.Inc()
}

func (m *ingestMetrics) RecordProcessingEnd() {
	m.inFlight.Dec()
}

func (m *ingestMetrics) RecordOutcome(format, kind string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	status := "success"
	if kind != "" {
		status = "error"
	}
	m.filesTotal.WithLabelValues(format, status, kind).Inc()
	m.processDuration.WithLabelValues(format).Observe(duration.Seconds())
}

func (m *ingestMetrics) RecordVolumeBytes(format string, bytes int64) {
	m.volumeBytesTotal.WithLabelValues(format).Add(float64(bytes))
}
