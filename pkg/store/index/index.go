// Package index tracks the lifecycle status of persisted metadata records.
//
// The content store holds the records themselves; the index is a small
// secondary view keyed by (entry ID, record key) that answers "which records
// of this entry are still saving-data" without reading every record back.
// It is advisory: a failed index update never fails ingestion.
package index

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no entry exists for the key.
var ErrNotFound = errors.New("index entry not found")

// Entry is the indexed view of one metadata record.
type Entry struct {
	// Key is the content store key of the metadata record.
	Key string `json:"key"`

	// EntryID is the EMPIAR entry the record belongs to.
	EntryID string `json:"entry_id"`

	// SourceFile is the base name of the downloaded raw file.
	SourceFile string `json:"source_file"`

	// Status mirrors the record's lifecycle status at its last write.
	Status string `json:"status"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Index is implemented by the memory and badger backends.
//
// Thread Safety:
// Implementations must be safe for concurrent use.
type Index interface {
	// Put inserts or replaces the entry for (e.EntryID, e.Key).
	Put(ctx context.Context, e Entry) error

	// Get returns the entry for (entryID, key) or ErrNotFound.
	Get(ctx context.Context, entryID, key string) (Entry, error)

	// ListByStatus returns the entries of entryID whose status equals
	// status, ordered by key.
	ListByStatus(ctx context.Context, entryID, status string) ([]Entry, error)

	// Close releases backend resources.
	Close() error
}
