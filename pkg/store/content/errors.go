package content

import "errors"

// ============================================================================
// Standard Content Store Errors
// ============================================================================

// Implementations wrap these with context:
//
//	return fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)

var (
	// ErrContentNotFound indicates the requested object does not exist.
	ErrContentNotFound = errors.New("content not found")

	// ErrInvalidKey indicates a key that fails ValidateKey.
	ErrInvalidKey = errors.New("invalid content key")
)
