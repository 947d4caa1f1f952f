// Package record models the metadata document written for every ingested
// volume and its lifecycle.
//
// A record moves through three statuses:
//
//	created ──► saving-data ──► complete
//
// The processor persists it twice: once as a stub right after the status
// becomes saving-data (before the volume is written) and once, validated,
// after technical metadata is attached and the status is complete. A record
// found on storage still in saving-data therefore identifies a volume whose
// write did not finish.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle status of a record.
type Status string

const (
	StatusCreated    Status = "created"
	StatusSavingData Status = "saving-data"
	StatusComplete   Status = "complete"
)

// ErrAlreadyPersisted is returned by AttachPaths once the record has been
// written at least once; the paths are then part of the stored document.
var ErrAlreadyPersisted = errors.New("record already persisted")

// FilePaths are the storage locations tied to a record.
type FilePaths struct {
	VolumePath   string `json:"volume_path" jsonschema:"description=Location of the persisted .npy volume"`
	RawPath      string `json:"raw_path" jsonschema:"description=Local path of the downloaded source file"`
	MetadataPath string `json:"metadata_path" jsonschema:"description=Location of this record"`
}

// Technical describes the persisted volume. It is nil until the volume has
// been written.
type Technical struct {
	VolumeShape   []int  `json:"volume_shape" validate:"required,min=1,dive,gte=0"`
	DataType      string `json:"data_type" validate:"required"`
	FileSizeBytes int64  `json:"file_size_bytes" validate:"gte=0"`
	SHA256        string `json:"sha256" validate:"required,len=64,hexadecimal"`
}

// Metadata groups paths, provenance and technical metadata.
type Metadata struct {
	FilePaths  FilePaths      `json:"file_paths"`
	Provenance map[string]any `json:"provenance"`
	Technical  *Technical     `json:"technical,omitempty" validate:"required"`
}

// Record is the metadata document for one ingested file.
type Record struct {
	Source      string `json:"source" validate:"required"`
	SourceID    string `json:"source_id" validate:"required"`
	Description string `json:"description"`

	Metadata Metadata `json:"metadata"`
	Status   Status   `json:"status" jsonschema:"enum=created,enum=saving-data,enum=complete"`

	// AdditionalMetadata carries the full dataset document at the top level
	// as well, matching records produced by earlier tooling.
	AdditionalMetadata map[string]any `json:"additional_metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	persisted bool
}

// New creates a record in status created with empty provenance.
func New(source, sourceID, description string) *Record {
	now := time.Now().UTC()
	return &Record{
		Source:      source,
		SourceID:    sourceID,
		Description: description,
		Metadata: Metadata{
			Provenance: make(map[string]any),
		},
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Persisted reports whether the record has been written at least once.
func (r *Record) Persisted() bool {
	return r.persisted
}

// AttachPaths sets the three storage locations. Calling it again before the
// first persist simply replaces them.
func (r *Record) AttachPaths(volumePath, rawPath, metadataPath string) error {
	if r.persisted {
		return ErrAlreadyPersisted
	}
	r.Metadata.FilePaths = FilePaths{
		VolumePath:   volumePath,
		RawPath:      rawPath,
		MetadataPath: metadataPath,
	}
	return nil
}

// SetProvenance records one provenance attribute.
func (r *Record) SetProvenance(key string, value any) {
	if r.Metadata.Provenance == nil {
		r.Metadata.Provenance = make(map[string]any)
	}
	r.Metadata.Provenance[key] = value
}

// SetStatus advances the lifecycle.
//
// Only created→saving-data and saving-data→complete are accepted, the
// latter only with technical metadata attached. Setting the current status
// again is rejected like any other transition.
func (r *Record) SetStatus(to Status) error {
	from := r.Status

	switch {
	case from == StatusCreated && to == StatusSavingData:
	case from == StatusSavingData && to == StatusComplete:
		if r.Metadata.Technical == nil {
			return &InvalidTransitionError{From: from, To: to, Reason: "technical metadata not attached"}
		}
	default:
		return &InvalidTransitionError{From: from, To: to, Reason: "transition not allowed"}
	}

	r.Status = to
	return nil
}

// AttachTechnical sets the technical metadata of the persisted volume.
func (r *Record) AttachTechnical(shape []int, dataType string, byteSize int64, sha256 string) error {
	switch {
	case len(shape) == 0:
		return fmt.Errorf("technical metadata: empty shape")
	case dataType == "":
		return fmt.Errorf("technical metadata: empty data type")
	case sha256 == "":
		return fmt.Errorf("technical metadata: empty checksum")
	case byteSize < 0:
		return fmt.Errorf("technical metadata: negative size %d", byteSize)
	}

	r.Metadata.Technical = &Technical{
		VolumeShape:   append([]int(nil), shape...),
		DataType:      dataType,
		FileSizeBytes: byteSize,
		SHA256:        sha256,
	}
	return nil
}

// Marshal serializes the record as indented JSON.
func (r *Record) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Decode parses a serialized record. Decoded records count as persisted.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	switch r.Status {
	case StatusCreated, StatusSavingData, StatusComplete:
	default:
		return nil, fmt.Errorf("failed to decode record: unknown status %q", r.Status)
	}
	r.persisted = true
	return &r, nil
}
