// Package content defines the byte store where decoded volumes and metadata
// records are persisted.
//
// Objects are addressed by keys: slash-separated relative paths such as
// "EMD-1234_20240101_120000.npy". Every implementation maps a key to its
// own location (a file under a base directory, an S3 object under a prefix,
// a map entry) and reports that location through Location so records can
// point at the persisted artifacts.
package content

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// Store is the interface implemented by all content backends.
//
// Write Semantics:
// WriteContent replaces the whole object. Implementations must not expose a
// partially written object under the key: a reader sees either the previous
// content, the new content, or ErrContentNotFound. The two-phase record
// write (stub, then final) relies on this.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Concurrent writes to
// distinct keys must not interfere; concurrent writes to the same key are
// last-writer-wins.
type Store interface {
	// WriteContent stores data under key, replacing any existing object.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - key: Object key (see ValidateKey)
	//   - data: Complete object content
	//
	// Returns:
	//   - error: ErrInvalidKey, context errors, or backend failures
	WriteContent(ctx context.Context, key string, data []byte) error

	// ReadContent returns a reader for the object. The caller must close it.
	//
	// Returns ErrContentNotFound if the object does not exist.
	ReadContent(ctx context.Context, key string) (io.ReadCloser, error)

	// GetContentSize returns the object size in bytes.
	//
	// Returns ErrContentNotFound if the object does not exist.
	GetContentSize(ctx context.Context, key string) (uint64, error)

	// ContentExists reports whether an object exists. A missing object is
	// not an error.
	ContentExists(ctx context.Context, key string) (bool, error)

	// Delete removes the object. Deleting a missing object succeeds.
	Delete(ctx context.Context, key string) error

	// Location returns a human-readable address of the object, e.g. an
	// absolute file path or an s3:// URL. It performs no I/O.
	Location(key string) string

	// Close releases backend resources.
	Close() error
}

// ValidateKey checks that key is a clean, relative, slash-separated path.
//
// Keys must not be empty, absolute, contain ".." segments, or use
// backslashes. This keeps filesystem-backed stores inside their base
// directory.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("%w: %q is absolute", ErrInvalidKey, key)
	case strings.Contains(key, `\`):
		return fmt.Errorf("%w: %q contains a backslash", ErrInvalidKey, key)
	}

	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return fmt.Errorf("%w: %q is not a clean path", ErrInvalidKey, key)
		}
	}

	if path.Clean(key) != key {
		return fmt.Errorf("%w: %q is not a clean path", ErrInvalidKey, key)
	}
	return nil
}

// ReadAll reads a whole object.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	rc, err := s.ReadContent(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}
