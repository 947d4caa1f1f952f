package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/emingest/pkg/npy"
	"github.com/marmos91/emingest/pkg/record"
	"github.com/marmos91/emingest/pkg/store/content"
	"github.com/marmos91/emingest/pkg/volume"
	"github.com/marmos91/emingest/pkg/volume/formats"
	"github.com/marmos91/emingest/pkg/volume/mrc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_Success(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	vol := float32Volume(3, 4)
	path := writeMRC(t, t.TempDir(), "grid_01.mrc", vol)

	out := newTestProcessor(t, store, ProcessorConfig{}).Process(ctx, RawFile{Path: path, Format: volume.FormatMRC})
	require.True(t, out.OK, "outcome: %v", out)
	assert.Equal(t, "Processed "+path, out.String())
	assert.Equal(t, "grid_01_20240305_140709.npy", out.VolumeKey)
	assert.Equal(t, "grid_01_20240305_140709_metadata.json", out.MetadataKey)
	assert.Equal(t, int64(48), out.VolumeBytes)
	assert.Equal(t, []string{out.VolumeKey, out.MetadataKey}, store.Keys())

	// Volume round-trips through .npy.
	data, err := content.ReadAll(ctx, store, out.VolumeKey)
	require.NoError(t, err)
	back, err := npy.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, back.Shape)
	assert.Equal(t, volume.Float32, back.DType)
	assert.Equal(t, vol.Data, back.Data)

	rec := loadRecord(t, store, out.MetadataKey)
	assert.Equal(t, record.StatusComplete, rec.Status)
	assert.Equal(t, "ebi", rec.Source)
	assert.Equal(t, "11759", rec.SourceID)
	assert.Equal(t, "Test dataset", rec.Description)
	assert.Equal(t, "memory://"+out.VolumeKey, rec.Metadata.FilePaths.VolumePath)
	assert.Equal(t, path, rec.Metadata.FilePaths.RawPath)
	assert.Equal(t, "memory://"+out.MetadataKey, rec.Metadata.FilePaths.MetadataPath)
	assert.Equal(t,
		"ftp://ftp.ebi.ac.uk/empiar/world_availability/11759/data/grid_01.mrc",
		rec.Metadata.Provenance["download_url"])
	assert.Equal(t, "SPA", rec.AdditionalMetadata["experiment_type"])

	require.NotNil(t, rec.Metadata.Technical)
	assert.Equal(t, []int{3, 4}, rec.Metadata.Technical.VolumeShape)
	assert.Equal(t, "float32", rec.Metadata.Technical.DataType)
	assert.Equal(t, int64(48), rec.Metadata.Technical.FileSizeBytes)
	assert.Equal(t, vol.Checksum(), rec.Metadata.Technical.SHA256)
}

func TestProcess_InfersFormatFromExtension(t *testing.T) {
	store := newMemoryStore(t)
	path := writeMRC(t, t.TempDir(), "tomo.MAP", float32Volume(2, 2))

	out := newTestProcessor(t, store, ProcessorConfig{}).Process(context.Background(), RawFile{Path: path})
	require.True(t, out.OK, "outcome: %v", out)
	assert.Equal(t, volume.FormatMRC, out.Format)
}

func TestProcess_UnsupportedFormat(t *testing.T) {
	store := newMemoryStore(t)
	path := writeRaw(t, t.TempDir(), "notes.txt", []byte("hello"))

	out := newTestProcessor(t, store, ProcessorConfig{}).Process(context.Background(), RawFile{Path: path})
	assert.False(t, out.OK)
	assert.Equal(t, KindUnsupportedFormat, out.Kind)
	var ufe *volume.UnsupportedFormatError
	assert.True(t, errors.As(out.Err, &ufe), "got %v", out.Err)
	assert.Empty(t, store.Keys())
}

func TestProcess_CorruptFileWritesNothing(t *testing.T) {
	store := newMemoryStore(t)
	path := writeRaw(t, t.TempDir(), "broken.mrc", []byte("definitely not an MRC header"))

	out := newTestProcessor(t, store, ProcessorConfig{}).Process(context.Background(), RawFile{Path: path, Format: volume.FormatMRC})
	assert.False(t, out.OK)
	assert.Equal(t, KindDecode, out.Kind)
	var de *volume.DecodeError
	assert.True(t, errors.As(out.Err, &de), "got %v", out.Err)
	assert.Contains(t, out.String(), "Failed "+path+": ")
	assert.Empty(t, store.Keys())
}

func TestProcess_OversizedHeaderWritesNothing(t *testing.T) {
	// nx*ny*nz*4 wraps an int64 to zero, matching the empty data block.
	hdr := make([]byte, mrc.HeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:], 1<<22)
	binary.LittleEndian.PutUint32(hdr[4:], 1<<21)
	binary.LittleEndian.PutUint32(hdr[8:], 1<<21)
	binary.LittleEndian.PutUint32(hdr[12:], 2)
	store := newMemoryStore(t)
	path := writeRaw(t, t.TempDir(), "wrapped.mrc", hdr)

	out := newTestProcessor(t, store, ProcessorConfig{}).Process(context.Background(), RawFile{Path: path, Format: volume.FormatMRC})
	assert.False(t, out.OK)
	assert.Equal(t, KindDecode, out.Kind)
	assert.ErrorIs(t, out.Err, volume.ErrOversized)
	assert.Empty(t, store.Keys())
}

func TestProcess_VolumeWriteFailureLeavesStub(t *testing.T) {
	mem := newMemoryStore(t)
	store := failingVolumeStore{Store: mem}
	path := writeMRC(t, t.TempDir(), "a.mrc", float32Volume(2, 2))

	proc := NewProcessor(ProcessorConfig{Source: "ebi", EntryID: "11759"}, formats.NewRegistry(), store,
		record.NewPersister(store, nil), testDataset, WithClock(fixedClock))
	out := proc.Process(context.Background(), RawFile{Path: path, Format: volume.FormatMRC})

	assert.False(t, out.OK)
	assert.Equal(t, KindPersist, out.Kind)
	require.Equal(t, []string{"a_20240305_140709_metadata.json"}, mem.Keys())

	rec := loadRecord(t, mem, "a_20240305_140709_metadata.json")
	assert.Equal(t, record.StatusSavingData, rec.Status)
	assert.Nil(t, rec.Metadata.Technical)
	assert.NotEmpty(t, rec.Metadata.Provenance["download_url"])
}

func TestProcess_RecoversFromDecoderPanic(t *testing.T) {
	store := newMemoryStore(t)
	reg := formats.NewRegistry()
	reg.Register("boom", volume.DecoderFunc(func(context.Context, string) (*volume.Volume, error) {
		panic("index out of range")
	}), ".boom")
	path := writeRaw(t, t.TempDir(), "x.boom", []byte{0})

	proc := NewProcessor(ProcessorConfig{Source: "ebi", EntryID: "1"}, reg, store, record.NewPersister(store, nil), testDataset)
	out := proc.Process(context.Background(), RawFile{Path: path})

	assert.False(t, out.OK)
	assert.Equal(t, KindInternal, out.Kind)
	assert.Contains(t, out.Err.Error(), "index out of range")
	assert.Empty(t, store.Keys())
}

func TestProcess_FallbackDescription(t *testing.T) {
	store := newMemoryStore(t)
	path := writeMRC(t, t.TempDir(), "a.mrc", float32Volume(1, 1))

	proc := NewProcessor(ProcessorConfig{Source: "ebi", EntryID: "42"}, formats.NewRegistry(), store,
		record.NewPersister(store, nil), nil, WithClock(fixedClock))
	out := proc.Process(context.Background(), RawFile{Path: path})
	require.True(t, out.OK, "outcome: %v", out)

	rec := loadRecord(t, store, out.MetadataKey)
	assert.Equal(t, "EBI EMPIAR dataset 42", rec.Description)
}

func TestProcess_Naming(t *testing.T) {
	dir := t.TempDir()
	path := writeMRC(t, dir, "a.mrc", float32Volume(2, 2))
	f := RawFile{Path: path, Format: volume.FormatMRC}

	t.Run("different clocks yield distinct names", func(t *testing.T) {
		store := newMemoryStore(t)
		first := newTestProcessor(t, store, ProcessorConfig{}).Process(context.Background(), f)
		later := newTestProcessor(t, store, ProcessorConfig{},
			WithClock(func() time.Time { return fixedTime.Add(time.Second) })).Process(context.Background(), f)

		require.True(t, first.OK)
		require.True(t, later.OK)
		assert.NotEqual(t, first.MetadataKey, later.MetadataKey)
		assert.Len(t, store.Keys(), 4)
	})

	t.Run("same second overwrites with a warning", func(t *testing.T) {
		logs := captureLogs(t)
		store := newMemoryStore(t)
		proc := newTestProcessor(t, store, ProcessorConfig{})

		first := proc.Process(context.Background(), f)
		second := proc.Process(context.Background(), f)

		require.True(t, first.OK)
		require.True(t, second.OK)
		assert.Equal(t, first.MetadataKey, second.MetadataKey)
		assert.Len(t, store.Keys(), 2)
		assert.Contains(t, logs.String(), "already exists and will be overwritten")
	})

	t.Run("unique names never collide", func(t *testing.T) {
		store := newMemoryStore(t)
		proc := newTestProcessor(t, store, ProcessorConfig{UniqueNames: true})

		first := proc.Process(context.Background(), f)
		second := proc.Process(context.Background(), f)

		require.True(t, first.OK)
		require.True(t, second.OK)
		assert.NotEqual(t, first.MetadataKey, second.MetadataKey)
		assert.Regexp(t, `^a_20240305_140709_[0-9a-f]{8}_metadata\.json$`, first.MetadataKey)
		assert.Len(t, store.Keys(), 4)
	})
}

func TestArtifactKeys(t *testing.T) {
	v, m := artifactKeys("/data/downloads/stack.tar.mrcs", fixedTime, "")
	assert.Equal(t, "stack.tar_20240305_140709.npy", v)
	assert.Equal(t, "stack.tar_20240305_140709_metadata.json", m)

	v, m = artifactKeys("noext", fixedTime, "abcd1234")
	assert.Equal(t, "noext_20240305_140709_abcd1234.npy", v)
	assert.Equal(t, "noext_20240305_140709_abcd1234_metadata.json", m)
}
