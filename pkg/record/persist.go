package record

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/emingest/internal/logger"
	"github.com/marmos91/emingest/pkg/store/content"
	"github.com/marmos91/emingest/pkg/store/index"
)

// validate is shared by all persisters; validator caches struct metadata.
var validate = validator.New()

// Persister writes records to a content store and mirrors their status into
// an index.
type Persister struct {
	store content.Store
	index index.Index
	now   func() time.Time
}

// NewPersister creates a persister. idx may be nil to skip indexing.
func NewPersister(store content.Store, idx index.Index) *Persister {
	return &Persister{
		store: store,
		index: idx,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Persist serializes rec and writes it under key, replacing any previous
// version.
//
// With validate set, rec must be complete and its technical metadata must
// pass struct validation; otherwise a *ValidationError is returned and
// nothing is written. Store failures are returned as *PersistError.
func (p *Persister) Persist(ctx context.Context, rec *Record, key string, validate bool) error {
	if validate {
		if err := checkComplete(rec); err != nil {
			return &ValidationError{Key: key, Err: err}
		}
	}

	prevUpdated := rec.UpdatedAt
	rec.UpdatedAt = p.now()

	data, err := rec.Marshal()
	if err != nil {
		rec.UpdatedAt = prevUpdated
		return &PersistError{Key: key, Err: err}
	}

	if err := p.store.WriteContent(ctx, key, data); err != nil {
		rec.UpdatedAt = prevUpdated
		return &PersistError{Key: key, Err: err}
	}
	rec.persisted = true

	if p.index != nil {
		entry := index.Entry{
			Key:        key,
			EntryID:    rec.SourceID,
			SourceFile: filepath.Base(rec.Metadata.FilePaths.RawPath),
			Status:     string(rec.Status),
			UpdatedAt:  rec.UpdatedAt,
		}
		if err := p.index.Put(ctx, entry); err != nil {
			logger.Warn("Failed to index record %s: %v", key, err)
		}
	}

	return nil
}

// Load reads the record stored under key.
func (p *Persister) Load(ctx context.Context, key string) (*Record, error) {
	data, err := content.ReadAll(ctx, p.store, key)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func checkComplete(rec *Record) error {
	if rec.Status != StatusComplete {
		return fmt.Errorf("status is %q, want %q", rec.Status, StatusComplete)
	}
	if err := validate.Struct(rec); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors into a readable message.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
