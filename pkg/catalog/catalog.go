// Package catalog fetches dataset-level metadata from the EMPIAR entry API.
package catalog

import (
	"context"
	"fmt"
	"strings"
)

// DatasetMetadata is the decoded JSON document describing an entry. It is
// fetched once per run and shared read-only by every worker.
type DatasetMetadata map[string]any

// Client retrieves dataset metadata for an entry.
type Client interface {
	Fetch(ctx context.Context, entryID string) (DatasetMetadata, error)
}

// Title returns the dataset title, or "" when the document has none.
//
// The EMPIAR API nests the entry under its accession code
// ({"EMPIAR-11759": {"title": ...}}); a flat {"title": ...} document is
// accepted too.
func (d DatasetMetadata) Title(entryID string) string {
	if s, ok := d["title"].(string); ok {
		return s
	}
	for _, key := range []string{"EMPIAR-" + entryID, entryID} {
		if inner, ok := d[key].(map[string]any); ok {
			if s, ok := inner["title"].(string); ok {
				return s
			}
		}
	}
	return ""
}

// Description returns the title or the fallback "EBI EMPIAR dataset <id>".
func (d DatasetMetadata) Description(entryID string) string {
	if t := strings.TrimSpace(d.Title(entryID)); t != "" {
		return t
	}
	return fmt.Sprintf("EBI EMPIAR dataset %s", entryID)
}

// FetchError reports a failed metadata retrieval. It aborts the whole run.
type FetchError struct {
	EntryID string
	URL     string

	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch metadata for entry %s (%s): HTTP %d: %v", e.EntryID, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to fetch metadata for entry %s (%s): %v", e.EntryID, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
