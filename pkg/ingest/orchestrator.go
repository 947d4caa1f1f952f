package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/marmos91/emingest/internal/logger"
	"github.com/marmos91/emingest/internal/progress"
	"github.com/marmos91/emingest/internal/ratelimiter"
	"github.com/marmos91/emingest/pkg/catalog"
	"github.com/marmos91/emingest/pkg/metrics"
	"github.com/marmos91/emingest/pkg/record"
	"github.com/marmos91/emingest/pkg/store/content"
	"github.com/marmos91/emingest/pkg/store/index"
	"github.com/marmos91/emingest/pkg/transfer"
	"github.com/marmos91/emingest/pkg/volume"
	"golang.org/x/sync/errgroup"
)

// DownloadsDir is the subdirectory of the output directory where raw files
// are staged.
const DownloadsDir = "downloads"

// Config holds the per-run settings of an Orchestrator.
type Config struct {
	Source    string
	EntryID   string
	FTPServer string
	DataPath  string

	// OutputDir is the local root; raw files go to OutputDir/downloads.
	OutputDir string

	// MaxWorkers bounds concurrent file processing. Values < 1 mean 1.
	MaxWorkers int

	UniqueNames bool

	// Progress receives the progress bars. Nil disables them.
	Progress io.Writer
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Catalog catalog.Client

	// OpenRepository connects to the file repository. It is called once,
	// after the dataset metadata has been fetched.
	OpenRepository func(ctx context.Context) (transfer.Repository, error)

	Registry *volume.Registry
	Store    content.Store

	// Index is optional.
	Index index.Index

	// Limiter is optional.
	Limiter *ratelimiter.RateLimiter

	// Metrics is optional; nil means no-op.
	Metrics metrics.IngestMetrics

	// ProcessorOptions are passed to the Processor.
	ProcessorOptions []ProcessorOption
}

// Orchestrator runs one ingestion of one entry.
type Orchestrator struct {
	cfg  Config
	deps Dependencies
}

// NewOrchestrator validates deps and creates an Orchestrator.
func NewOrchestrator(cfg Config, deps Dependencies) (*Orchestrator, error) {
	switch {
	case cfg.EntryID == "":
		return nil, errors.New("entry ID is required")
	case deps.Catalog == nil:
		return nil, errors.New("catalog client is required")
	case deps.OpenRepository == nil:
		return nil, errors.New("repository opener is required")
	case deps.Registry == nil:
		return nil, errors.New("volume registry is required")
	case deps.Store == nil:
		return nil, errors.New("content store is required")
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopIngestMetrics()
	}
	return &Orchestrator{cfg: cfg, deps: deps}, nil
}

// Run executes the whole pipeline:
//
//  1. report records left in saving-data by earlier runs
//  2. fetch dataset metadata (fatal on failure)
//  3. list and download raw files sequentially (fatal on failure)
//  4. process files on MaxWorkers goroutines, outcomes in completion order
//
// Per-file failures do not make Run fail; they are counted in the Summary.
// If ctx is cancelled during processing, Run returns the partial Summary and
// the context error.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	entryID := o.cfg.EntryID

	o.reportStuckRecords(ctx)

	// ========================================================================
	// Step 1: Fetch dataset metadata
	// ========================================================================

	dataset, err := o.deps.Catalog.Fetch(ctx, entryID)
	if err != nil {
		return nil, err
	}
	logger.Info("Retrieved metadata for %s", entryID)

	// ========================================================================
	// Step 2: Stage raw files
	// ========================================================================

	staged, skipped, err := o.download(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Downloaded %d files", len(staged))

	// ========================================================================
	// Step 3: Process
	// ========================================================================

	proc := NewProcessor(
		ProcessorConfig{
			Source:      o.cfg.Source,
			EntryID:     entryID,
			FTPServer:   o.cfg.FTPServer,
			DataPath:    o.cfg.DataPath,
			UniqueNames: o.cfg.UniqueNames,
		},
		o.deps.Registry,
		o.deps.Store,
		record.NewPersister(o.deps.Store, o.deps.Index),
		dataset,
		o.deps.ProcessorOptions...,
	)

	files := make([]RawFile, 0, len(staged))
	for _, s := range staged {
		format, _ := o.deps.Registry.FormatForPath(s.Path)
		files = append(files, RawFile{Path: s.Path, Format: format})
	}

	summary := &Summary{EntryID: entryID, Total: len(files), Skipped: skipped}
	runErr := o.process(ctx, proc, files, summary)
	summary.Duration = time.Since(start)

	logger.Info("Ingestion of entry %s finished: %d processed, %d succeeded, %d failed in %s",
		entryID, len(summary.Outcomes), summary.Succeeded, summary.Failed, summary.Duration.Round(time.Millisecond))
	for kind, n := range summary.FailedByKind() {
		logger.Debug("  %s failures: %d", kind, n)
	}

	return summary, runErr
}

func (o *Orchestrator) reportStuckRecords(ctx context.Context) {
	if o.deps.Index == nil {
		return
	}
	stuck, err := o.deps.Index.ListByStatus(ctx, o.cfg.EntryID, string(record.StatusSavingData))
	if err != nil {
		logger.Warn("Failed to query record index: %v", err)
		return
	}
	for _, e := range stuck {
		logger.Warn("Record %s (%s) was left in %s by a previous run; its volume may be missing or incomplete",
			e.Key, e.SourceFile, record.StatusSavingData)
	}
}

func (o *Orchestrator) download(ctx context.Context) ([]transfer.StagedFile, int, error) {
	repo, err := o.deps.OpenRepository(ctx)
	if err != nil {
		var te *transfer.TransferError
		if errors.As(err, &te) {
			return nil, 0, err
		}
		return nil, 0, &transfer.TransferError{Op: "connect", Err: err}
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Debug("Closing repository session: %v", err)
		}
	}()

	skipped := 0
	staged, err := transfer.Download(ctx, repo, filepath.Join(o.cfg.OutputDir, DownloadsDir), transfer.DownloadOptions{
		Limiter:  o.deps.Limiter,
		Progress: o.cfg.Progress,
		OnSkip: func(string) {
			skipped++
			o.deps.Metrics.RecordSkipped()
		},
	})
	for _, s := range staged {
		o.deps.Metrics.RecordDownload(s.Bytes)
	}
	if err != nil {
		return nil, skipped, err
	}
	return staged, skipped, nil
}

// process fans files out to a bounded pool and consumes outcomes as they
// complete. Each outcome is logged exactly once.
func (o *Orchestrator) process(ctx context.Context, proc *Processor, files []RawFile, summary *Summary) error {
	tasks := make(chan RawFile)
	results := make(chan Outcome, len(files))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(tasks)
		for _, f := range files {
			select {
			case tasks <- f:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	workers := o.cfg.MaxWorkers
	if workers > len(files) && len(files) > 0 {
		workers = len(files)
	}
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for f := range tasks {
				if err := gctx.Err(); err != nil {
					return err
				}
				o.deps.Metrics.RecordProcessingStart()
				out := proc.Process(gctx, f)
				o.deps.Metrics.RecordProcessingEnd()
				results <- out
			}
			return nil
		})
	}

	var waitErr error
	go func() {
		waitErr = g.Wait()
		close(results)
	}()

	bar := progress.Start(o.cfg.Progress, len(files), "Processing volumes")
	for out := range results {
		summary.Outcomes = append(summary.Outcomes, out)
		if out.OK {
			summary.Succeeded++
			logger.Info("%s", out)
			o.deps.Metrics.RecordVolumeBytes(string(out.Format), out.VolumeBytes)
		} else {
			summary.Failed++
			logger.Error("%s", out)
		}
		o.deps.Metrics.RecordOutcome(string(out.Format), string(out.Kind), out.Duration)
		bar.Increment()
		logger.Info("Progress: %d/%d (%d succeeded, %d failed)",
			len(summary.Outcomes), len(files), summary.Succeeded, summary.Failed)
	}
	bar.Finish()

	if waitErr != nil {
		return fmt.Errorf("processing interrupted after %d of %d files: %w", len(summary.Outcomes), len(files), waitErr)
	}
	return nil
}
