package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marmos91/emingest/internal/logger"
	"github.com/marmos91/emingest/internal/progress"
	"github.com/marmos91/emingest/internal/ratelimiter"
)

// StagedFile is a raw file downloaded to local disk.
type StagedFile struct {
	Name  string
	Path  string
	Bytes int64
}

// DownloadOptions tunes Download.
type DownloadOptions struct {
	// Limiter paces repository requests. Nil means unpaced.
	Limiter *ratelimiter.RateLimiter

	// Progress receives the progress bar. Nil disables it.
	Progress io.Writer

	// OnSkip is called for each listing entry that is not a regular file.
	OnSkip func(name string)
}

// Download lists the repository and retrieves every regular file into dir,
// one at a time, in listing order. Names that are not files are logged and
// skipped. Any repository or local I/O failure aborts with a
// *TransferError; files already staged are left in place.
func Download(ctx context.Context, repo Repository, dir string, opts DownloadOptions) ([]StagedFile, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &TransferError{Op: "stage", Name: dir, Err: err}
	}

	wait := func() error {
		if opts.Limiter == nil {
			return ctx.Err()
		}
		return opts.Limiter.Wait(ctx)
	}

	if err := wait(); err != nil {
		return nil, &TransferError{Op: "list", Err: err}
	}
	names, err := repo.List(ctx)
	if err != nil {
		return nil, &TransferError{Op: "list", Err: err}
	}
	logger.Debug("Repository lists %d entries", len(names))

	bar := progress.Start(opts.Progress, len(names), "Downloading files")
	defer bar.Finish()

	skip := func(name string) {
		logger.Info("Skipping directory or invalid file: %s", name)
		if opts.OnSkip != nil {
			opts.OnSkip(name)
		}
		bar.Increment()
	}

	staged := make([]StagedFile, 0, len(names))
	for _, name := range names {
		if err := wait(); err != nil {
			return staged, &TransferError{Op: "stat", Name: name, Err: err}
		}

		base := filepath.Base(filepath.FromSlash(name))
		if base == "." || base == ".." || base == string(filepath.Separator) {
			skip(name)
			continue
		}

		_, isFile, err := repo.Stat(ctx, name)
		if err != nil {
			return staged, &TransferError{Op: "stat", Name: name, Err: err}
		}
		if !isFile {
			skip(name)
			continue
		}

		if err := wait(); err != nil {
			return staged, &TransferError{Op: "retrieve", Name: name, Err: err}
		}

		localPath := filepath.Join(dir, base)
		n, err := retrieveTo(ctx, repo, name, localPath)
		if err != nil {
			return staged, err
		}
		logger.Debug("Downloaded %s (%d bytes)", name, n)

		staged = append(staged, StagedFile{Name: name, Path: localPath, Bytes: n})
		bar.Increment()
	}

	return staged, nil
}

func retrieveTo(ctx context.Context, repo Repository, name, localPath string) (int64, error) {
	f, err := os.Create(localPath)
	if err != nil {
		return 0, &TransferError{Op: "stage", Name: name, Err: err}
	}

	n, err := repo.Retrieve(ctx, name, f)
	closeErr := f.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("closing %s: %w", localPath, closeErr)
	}
	if err != nil {
		_ = os.Remove(localPath)
		return n, &TransferError{Op: "retrieve", Name: name, Err: err}
	}
	return n, nil
}
