package metrics

import "time"

// IngestMetrics observes an ingestion run.
//
// A nil IngestMetrics is never passed around; use NewNoopIngestMetrics when
// metrics are disabled.
type IngestMetrics interface {
	// RecordDownload counts a staged raw file and its size.
	RecordDownload(bytes int64)

	// RecordSkipped counts a listing entry that was not a regular file.
	RecordSkipped()

	// RecordProcessingStart and RecordProcessingEnd bracket one worker task
	// and drive the in-flight gauge.
	RecordProcessingStart()
	RecordProcessingEnd()

	// RecordOutcome counts a finished file. kind is "" on success, otherwise
	// the failure kind (decode, persist, ...). format may be "" when the
	// extension was not recognized.
	RecordOutcome(format, kind string, duration time.Duration)

	// RecordVolumeBytes counts bytes of decoded volume data persisted.
	RecordVolumeBytes(format string, bytes int64)
}

// NewNoopIngestMetrics returns an IngestMetrics that discards everything.
func NewNoopIngestMetrics() IngestMetrics {
	return noopIngestMetrics{}
}

type noopIngestMetrics struct{}

func (noopIngestMetrics) RecordDownload(int64)                        {}
func (noopIngestMetrics) RecordSkipped()                              {}
func (noopIngestMetrics) RecordProcessingStart()                      {}
func (noopIngestMetrics) RecordProcessingEnd()                        {}
func (noopIngestMetrics) RecordOutcome(string, string, time.Duration) {}
func (noopIngestMetrics) RecordVolumeBytes(string, int64)             {}
