// Package fs implements filesystem-based content storage.
//
// Objects are stored as regular files under a base directory, using the key
// as the relative path. With the default configuration the base directory
// is the ingestion output directory, so volumes and records land next to
// each other as <base>_<timestamp>.npy and <base>_<timestamp>_metadata.json.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marmos91/emingest/pkg/store/content"
)

// FSContentStore implements content.Store using the local filesystem.
//
// Writes go to a temporary file in the destination directory and are then
// renamed over the target, so a concurrent reader (or a crash) never
// observes a half-written record.
//
// Thread Safety:
// Safe for concurrent use. Concurrent writes to the same key are
// last-rename-wins.
type FSContentStore struct {
	basePath string
}

// NewFSContentStore creates a new filesystem-based content store.
//
// The base directory is created with permissions 0755 if missing and is
// made absolute so Location returns stable paths.
//
// Parameters:
//   - ctx: Context for cancellation
//   - basePath: Root directory for stored objects
//
// Returns:
//   - *FSContentStore: Initialized store
//   - error: Directory creation failure or context cancellation
func NewFSContentStore(ctx context.Context, basePath string) (*FSContentStore, error) {
	// ========================================================================
	// Step 1: Check context before filesystem operation
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Resolve and create the base directory
	// ========================================================================

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSContentStore{basePath: abs}, nil
}

// BasePath returns the absolute base directory.
func (s *FSContentStore) BasePath() string {
	return s.basePath
}

// getFilePath maps a key to its path under the base directory.
func (s *FSContentStore) getFilePath(key string) (string, error) {
	if err := content.ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

// Location returns the absolute file path for key.
func (s *FSContentStore) Location(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// WriteContent atomically replaces the file for key.
func (s *FSContentStore) WriteContent(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := s.getFilePath(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions on %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}

	return nil
}

// ReadContent opens the file for key.
func (s *FSContentStore) ReadContent(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.getFilePath(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return f, nil
}

// GetContentSize returns the file size for key.
func (s *FSContentStore) GetContentSize(ctx context.Context, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p, err := s.getFilePath(key)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
		}
		return 0, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("content %s is a directory: %w", key, content.ErrContentNotFound)
	}
	return uint64(info.Size()), nil
}

// ContentExists reports whether a regular file exists for key.
func (s *FSContentStore) ContentExists(ctx context.Context, key string) (bool, error) {
	_, err := s.GetContentSize(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, content.ErrContentNotFound) {
		return false, nil
	}
	return false, err
}

// Delete removes the file for key. Missing files are ignored.
func (s *FSContentStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := s.getFilePath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; the store holds no open descriptors.
func (s *FSContentStore) Close() error {
	return nil
}
