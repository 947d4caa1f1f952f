package ingest

import (
	"fmt"
	"time"

	"github.com/marmos91/emingest/pkg/volume"
)

// RawFile is a staged file awaiting processing. Format is empty when the
// extension is not recognized.
type RawFile struct {
	Path   string
	Format volume.Format
}

// Kind classifies a failed Outcome.
type Kind string

const (
	KindUnsupportedFormat Kind = "unsupported-format"
	KindDecode            Kind = "decode"
	KindInvalidTransition Kind = "invalid-transition"
	KindValidation        Kind = "validation"
	KindPersist           Kind = "persist"
	KindInternal          Kind = "internal"
)

// Outcome is the result of processing one file. Failures are values, not
// errors: one bad file never stops the batch.
type Outcome struct {
	Path   string
	Format volume.Format
	OK     bool

	// Kind and Err are set when OK is false.
	Kind Kind
	Err  error

	// Set when OK is true.
	VolumeKey   string
	MetadataKey string
	VolumeBytes int64

	Duration time.Duration
}

// String renders the outcome as logged by the orchestrator.
func (o Outcome) String() string {
	if o.OK {
		return fmt.Sprintf("Processed %s", o.Path)
	}
	return fmt.Sprintf("Failed %s: %v", o.Path, o.Err)
}

// Summary tallies a run.
type Summary struct {
	EntryID   string
	Total     int
	Succeeded int
	Failed    int
	Skipped   int

	// Outcomes are in completion order.
	Outcomes []Outcome
	Duration time.Duration
}

// FailedByKind counts failures per kind.
func (s *Summary) FailedByKind() map[Kind]int {
	out := make(map[Kind]int)
	for _, o := range s.Outcomes {
		if !o.OK {
			out[o.Kind]++
		}
	}
	return out
}
