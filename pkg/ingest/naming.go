package ingest

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	timestampLayout = "20060102_150405"
	volumeSuffix    = ".npy"
	metadataSuffix  = "_metadata.json"
	tokenLength     = 8
)

// artifactKeys derives the volume and record keys for a raw file:
//
//	<base>_<YYYYMMDD_HHMMSS>.npy
//	<base>_<YYYYMMDD_HHMMSS>_metadata.json
//
// token, when non-empty, is appended after the timestamp.
func artifactKeys(rawPath string, at time.Time, token string) (volumeKey, metadataKey string) {
	name := filepath.Base(rawPath)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	stem := base + "_" + at.Format(timestampLayout)
	if token != "" {
		stem += "_" + token
	}
	return stem + volumeSuffix, stem + metadataSuffix
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:tokenLength]
}
