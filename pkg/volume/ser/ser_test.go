package ser

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/emingest/pkg/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildSeries lays out a version 0x220 series: header, element blocks, then
// the offset array.
func buildSeries(version uint16, code uint16, y, x int32, images [][]byte) []byte {
	le := binary.LittleEndian

	out := make([]byte, 0, 1024)
	out = le.AppendUint16(out, byteOrderLE)
	out = le.AppendUint16(out, seriesID)
	out = le.AppendUint16(out, version)
	out = le.AppendUint32(out, dataType2D)
	out = le.AppendUint32(out, 0x4152)
	out = le.AppendUint32(out, uint32(len(images)))
	out = le.AppendUint32(out, uint32(len(images)))
	offsetPos := len(out)
	if version == version220 {
		out = le.AppendUint64(out, 0)
	} else {
		out = le.AppendUint32(out, 0)
	}
	out = le.AppendUint32(out, 1) // number of dimensions
	out = append(out, make([]byte, 16)...)

	offsets := make([]int64, len(images))
	for i, img := range images {
		offsets[i] = int64(len(out))
		out = append(out, make([]byte, 2*calibrationSz)...)
		out = le.AppendUint16(out, code)
		out = le.AppendUint32(out, uint32(x))
		out = le.AppendUint32(out, uint32(y))
		out = append(out, img...)
	}

	arrayAt := len(out)
	for _, off := range offsets {
		if version == version220 {
			out = le.AppendUint64(out, uint64(off))
		} else {
			out = le.AppendUint32(out, uint32(off))
		}
	}
	if version == version220 {
		le.PutUint64(out[offsetPos:], uint64(arrayAt))
	} else {
		le.PutUint32(out[offsetPos:], uint32(arrayAt))
	}
	return out
}

func TestDecoder_Versions(t *testing.T) {
	img := []byte{1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0}

	for _, version := range []uint16{version210, version220} {
		t.Run(binaryVersion(version), func(t *testing.T) {
			raw := buildSeries(version, 2, 2, 3, [][]byte{img, img})
			path := filepath.Join(t.TempDir(), "fixture.ser")
			require.NoError(t, os.WriteFile(path, raw, 0644))

			vol, err := Decoder{}.Decode(context.Background(), path)
			require.NoError(t, err)

			assert.Equal(t, []int{2, 2, 3}, vol.Shape)
			assert.Equal(t, volume.Uint16, vol.DType)
			assert.Equal(t, append(append([]byte{}, img...), img...), vol.Data)
		})
	}
}

func binaryVersion(v uint16) string {
	if v == version220 {
		return "v220"
	}
	return "v210"
}

func TestDecoder_SingleImageIsStackOfOne(t *testing.T) {
	raw := buildSeries(version220, 7, 2, 2, [][]byte{make([]byte, 16)})

	vol, err := Read(context.Background(), bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2}, vol.Shape)
	assert.Equal(t, volume.Float32, vol.DType)

	// Collapsing to 2-D is the registry's job.
	reg := volume.NewRegistry()
	reg.Register(volume.FormatSER, Decoder{}, Extensions...)
	path := filepath.Join(t.TempDir(), "single.ser")
	require.NoError(t, os.WriteFile(path, raw, 0644))

	squeezed, format, err := reg.DecodeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, volume.FormatSER, format)
	assert.Equal(t, []int{2, 2}, squeezed.Shape)
}

func TestDecoder_Errors(t *testing.T) {
	good := buildSeries(version220, 1, 2, 2, [][]byte{{1, 2, 3, 4}})

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"bad byte order", func(b []byte) []byte { b[0] = 0x4d; return b }},
		{"bad series id", func(b []byte) []byte { b[2] = 0; return b }},
		{"bad version", func(b []byte) []byte { b[4] = 0x30; return b }},
		{"spectra", func(b []byte) []byte { binary.LittleEndian.PutUint32(b[6:], dataType1D); return b }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-12] }},
		{"unknown element type", func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[50+2*calibrationSz:], 99)
			return b
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.mutate(append([]byte{}, good...))
			_, err := Read(context.Background(), bytes.NewReader(raw), int64(len(raw)))
			assert.Error(t, err)
		})
	}
}

func TestDecoder_DeclaredSizeBeyondFile(t *testing.T) {
	t.Run("huge image in a tiny file", func(t *testing.T) {
		raw := buildSeries(version210, 1, 1<<20, 1<<20, [][]byte{{}})
		path := filepath.Join(t.TempDir(), "huge.ser")
		require.NoError(t, os.WriteFile(path, raw, 0644))

		vol, err := Decoder{}.Decode(context.Background(), path)
		assert.Nil(t, vol)
		assert.ErrorIs(t, err, volume.ErrTruncated)
	})

	t.Run("overflowing image size", func(t *testing.T) {
		raw := buildSeries(version220, 10, 1<<30, 1<<30, [][]byte{{}})

		_, err := Read(context.Background(), bytes.NewReader(raw), int64(len(raw)))
		assert.ErrorIs(t, err, volume.ErrOversized)
	})

	t.Run("elements sharing one data block", func(t *testing.T) {
		raw := buildSeries(version220, 1, 64, 64, [][]byte{make([]byte, 64*64)})

		// Repeat the single offset so three elements claim the same bytes.
		last := append([]byte{}, raw[len(raw)-8:]...)
		raw = append(append(raw, last...), last...)
		binary.LittleEndian.PutUint32(raw[14:], 3)
		binary.LittleEndian.PutUint32(raw[18:], 3)

		_, err := Read(context.Background(), bytes.NewReader(raw), int64(len(raw)))
		assert.ErrorIs(t, err, volume.ErrTruncated)
	})
}
