package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/marmos91/emingest/internal/logger"
	"github.com/marmos91/emingest/pkg/catalog"
	"github.com/marmos91/emingest/pkg/npy"
	"github.com/marmos91/emingest/pkg/record"
	"github.com/marmos91/emingest/pkg/store/content"
	"github.com/marmos91/emingest/pkg/transfer"
	"github.com/marmos91/emingest/pkg/volume"
)

// ProcessorConfig carries the per-run constants a Processor stamps into
// every record.
type ProcessorConfig struct {
	// Source is the record's source system tag, e.g. "ebi".
	Source string

	EntryID string

	// FTPServer and DataPath build the provenance download URL.
	FTPServer string
	DataPath  string

	// UniqueNames appends a random token to every artifact name.
	UniqueNames bool
}

// Processor turns one staged raw file into a persisted volume and a complete
// metadata record.
//
// Process is safe to call from multiple goroutines; the dataset document is
// only read.
type Processor struct {
	cfg       ProcessorConfig
	registry  *volume.Registry
	store     content.Store
	persister *record.Persister
	dataset   catalog.DatasetMetadata

	now   func() time.Time
	token func() string
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithClock replaces the clock used for artifact names.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates a Processor.
func NewProcessor(
	cfg ProcessorConfig,
	registry *volume.Registry,
	store content.Store,
	persister *record.Persister,
	dataset catalog.DatasetMetadata,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		cfg:       cfg,
		registry:  registry,
		store:     store,
		persister: persister,
		dataset:   dataset,
		now:       time.Now,
		token:     randomToken,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs decode → stub → volume → enrich → final record for f.
//
// It never returns an error: every failure, including a panic inside a
// decoder, becomes a failed Outcome. A failure after the stub was written
// leaves that stub (status saving-data) on storage; nothing is rolled back.
func (p *Processor) Process(ctx context.Context, f RawFile) (out Outcome) {
	start := time.Now()
	out = Outcome{Path: f.Path, Format: f.Format}

	defer func() {
		if r := recover(); r != nil {
			logger.Debug("Panic while processing %s: %v\n%s", f.Path, r, debug.Stack())
			out = Outcome{
				Path:   f.Path,
				Format: f.Format,
				Kind:   KindInternal,
				Err:    fmt.Errorf("panic: %v", r),
			}
		}
		out.Duration = time.Since(start)
	}()

	fail := func(kind Kind, err error) Outcome {
		out.OK = false
		out.Kind = kind
		out.Err = err
		return out
	}

	// ========================================================================
	// Step 1: Decode
	// ========================================================================

	format := f.Format
	if format == "" {
		var err error
		if format, err = p.registry.FormatForPath(f.Path); err != nil {
			return fail(KindUnsupportedFormat, err)
		}
		out.Format = format
	}

	if err := ctx.Err(); err != nil {
		return fail(KindInternal, err)
	}

	vol, err := p.registry.Decode(ctx, f.Path, format)
	if err != nil {
		var unsupported *volume.UnsupportedFormatError
		if errors.As(err, &unsupported) {
			return fail(KindUnsupportedFormat, err)
		}
		return fail(KindDecode, err)
	}

	// ========================================================================
	// Step 2: Derive artifact names
	// ========================================================================

	token := ""
	if p.cfg.UniqueNames {
		token = p.token()
	}
	volumeKey, metadataKey := artifactKeys(f.Path, p.now(), token)

	if exists, err := p.store.ContentExists(ctx, metadataKey); err == nil && exists {
		logger.Warn("Record %s already exists and will be overwritten", metadataKey)
	}

	// ========================================================================
	// Step 3: Build and persist the stub record
	// ========================================================================

	rec := record.New(p.cfg.Source, p.cfg.EntryID, p.dataset.Description(p.cfg.EntryID))
	if err := rec.AttachPaths(p.store.Location(volumeKey), f.Path, p.store.Location(metadataKey)); err != nil {
		return fail(KindInternal, err)
	}
	if err := rec.SetStatus(record.StatusSavingData); err != nil {
		return fail(KindInvalidTransition, err)
	}
	rec.SetProvenance("download_url", transfer.DownloadURL(p.cfg.FTPServer, p.cfg.DataPath, f.Path))
	rec.SetProvenance("dataset", map[string]any(p.dataset))
	rec.AdditionalMetadata = p.dataset

	if err := p.persister.Persist(ctx, rec, metadataKey, false); err != nil {
		return fail(persistKind(err), err)
	}

	// ========================================================================
	// Step 4: Persist the volume
	// ========================================================================

	data, err := npy.Marshal(vol)
	if err != nil {
		return fail(KindPersist, fmt.Errorf("encoding volume: %w", err))
	}
	if err := p.store.WriteContent(ctx, volumeKey, data); err != nil {
		return fail(KindPersist, fmt.Errorf("writing volume %s: %w", volumeKey, err))
	}

	// ========================================================================
	// Step 5: Enrich and persist the final record
	// ========================================================================

	if err := rec.AttachTechnical(vol.Shape, string(vol.DType), vol.NumBytes(), vol.Checksum()); err != nil {
		return fail(KindValidation, err)
	}
	if err := rec.SetStatus(record.StatusComplete); err != nil {
		return fail(KindInvalidTransition, err)
	}
	if err := p.persister.Persist(ctx, rec, metadataKey, true); err != nil {
		return fail(persistKind(err), err)
	}

	out.OK = true
	out.VolumeKey = volumeKey
	out.MetadataKey = metadataKey
	out.VolumeBytes = vol.NumBytes()
	return out
}

func persistKind(err error) Kind {
	var ve *record.ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	return KindPersist
}
