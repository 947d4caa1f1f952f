package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/emingest/internal/logger"
	"github.com/marmos91/emingest/pkg/catalog"
	"github.com/marmos91/emingest/pkg/record"
	"github.com/marmos91/emingest/pkg/store/content"
	"github.com/marmos91/emingest/pkg/store/content/memory"
	"github.com/marmos91/emingest/pkg/volume"
	"github.com/marmos91/emingest/pkg/volume/formats"
	"github.com/marmos91/emingest/pkg/volume/mrc"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

// float32Volume builds a (ny, nx) float32 volume with values 0..n-1.
func float32Volume(ny, nx int) *volume.Volume {
	v := volume.New(volume.Float32, ny, nx)
	for i := 0; i < ny*nx; i++ {
		binary.LittleEndian.PutUint32(v.Data[i*4:], math.Float32bits(float32(i)))
	}
	return v
}

// mrcBytes encodes v as an MRC file.
func mrcBytes(t *testing.T, v *volume.Volume) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, mrc.Write(&buf, v))
	return buf.Bytes()
}

// writeMRC writes v as an MRC file named name under dir.
func writeMRC(t *testing.T, dir, name string, v *volume.Volume) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, mrc.WriteFile(p, v))
	return p
}

func writeRaw(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0644))
	return p
}

func newMemoryStore(t *testing.T) *memory.MemoryContentStore {
	t.Helper()
	s, err := memory.NewMemoryContentStore(context.Background())
	require.NoError(t, err)
	return s
}

var testDataset = catalog.DatasetMetadata{"title": "Test dataset", "experiment_type": "SPA"}

func newTestProcessor(t *testing.T, store content.Store, cfg ProcessorConfig, opts ...ProcessorOption) *Processor {
	t.Helper()
	if cfg.Source == "" {
		cfg.Source = "ebi"
	}
	if cfg.EntryID == "" {
		cfg.EntryID = "11759"
	}
	if cfg.FTPServer == "" {
		cfg.FTPServer = "ftp.ebi.ac.uk"
	}
	if cfg.DataPath == "" {
		cfg.DataPath = "/empiar/world_availability/11759/data/"
	}
	opts = append([]ProcessorOption{WithClock(fixedClock)}, opts...)
	return NewProcessor(cfg, formats.NewRegistry(), store, record.NewPersister(store, nil), testDataset, opts...)
}

func loadRecord(t *testing.T, store content.Store, key string) *record.Record {
	t.Helper()
	data, err := content.ReadAll(context.Background(), store, key)
	require.NoError(t, err)
	rec, err := record.Decode(data)
	require.NoError(t, err)
	return rec
}

// captureLogs redirects the logger into a buffer for the test's duration.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetWriter(&buf)
	logger.SetLevel("DEBUG")
	t.Cleanup(func() {
		logger.SetWriter(os.Stdout)
		logger.SetLevel("INFO")
	})
	return &buf
}

func countLines(s, substr string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

// failingVolumeStore fails writes of .npy objects.
type failingVolumeStore struct {
	content.Store
}

func (s failingVolumeStore) WriteContent(ctx context.Context, key string, data []byte) error {
	if strings.HasSuffix(key, ".npy") {
		return errors.New("quota exceeded")
	}
	return s.Store.WriteContent(ctx, key, data)
}

// staticCatalog returns a fixed document or error.
type staticCatalog struct {
	md    catalog.DatasetMetadata
	err   error
	calls int
}

func (c *staticCatalog) Fetch(_ context.Context, entryID string) (catalog.DatasetMetadata, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.md, nil
}
