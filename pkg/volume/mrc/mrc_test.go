package mrc

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

func rampVolume(dtype volume.DType, shape ...int) *volume.Volume {
	v := volume.New(dtype, shape...)
	for i := range v.Data {
		v.Data[i] = byte(i)
	}
	return v
}

func TestDecoder_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		dtype volume.DType
		shape []int
		want  []int
	}{
		{"int8 stack", volume.Int8, []int{3, 4, 5}, []int{3, 4, 5}},
		{"float32 image", volume.Float32, []int{4, 5}, []int{1, 4, 5}},
		{"uint16 stack", volume.Uint16, []int{2, 2, 2}, []int{2, 2, 2}},
		{"float16 image", volume.Float16, []int{8, 8}, []int{1, 8, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := rampVolume(tt.dtype, tt.shape...)
			path := filepath.Join(t.TempDir(), "fixture.mrc")
			require.NoError(t, WriteFile(path, src))

			got, err := Decoder{}.Decode(context.Background(), path)
			require.NoError(t, err)

			assert.Equal(t, tt.want, got.Shape)
			assert.Equal(t, tt.dtype, got.DType)
			assert.Equal(t, src.Data, got.Data)
		})
	}
}

func TestDecoder_BigEndian(t *testing.T) {
	hdr := make([]byte, HeaderSize)
	be := binary.BigEndian
	be.PutUint32(hdr[0:], 2)
	be.PutUint32(hdr[4:], 1)
	be.PutUint32(hdr[8:], 1)
	be.PutUint32(hdr[offsetMode:], 1)
	hdr[offsetStamp], hdr[offsetStamp+1] = 0x11, 0x11

	data := []byte{0x00, 0x01, 0x00, 0x02} // int16 1, 2 big-endian
	stream := append(hdr, data...)

	got, err := Read(bytes.NewReader(stream), int64(len(stream)))
	require.NoError(t, err)
	assert.Equal(t, volume.Int16, got.DType)
	assert.Equal(t, []byte{0x01, 0x00, 0x02, 0x00}, got.Data)
}

func TestDecoder_SkipsExtendedHeader(t *testing.T) {
	src := rampVolume(volume.Uint16, 2, 3)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, src))

	raw := buf.Bytes()
	binary.LittleEndian.PutUint32(raw[offsetNSymBT:], 16)
	stream := append(append(append([]byte{}, raw[:HeaderSize]...), make([]byte, 16)...), raw[HeaderSize:]...)

	got, err := Read(bytes.NewReader(stream), int64(len(stream)))
	require.NoError(t, err)
	assert.Equal(t, src.Data, got.Data)
}

func TestDecoder_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("truncated data", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, rampVolume(volume.Float32, 4, 4)))
		path := filepath.Join(dir, "short.mrc")
		require.NoError(t, os.WriteFile(path, buf.Bytes()[:buf.Len()-5], 0644))

		_, err := Decoder{}.Decode(context.Background(), path)
		assert.ErrorIs(t, err, volume.ErrTruncated)
	})

	t.Run("short header", func(t *testing.T) {
		path := filepath.Join(dir, "tiny.mrc")
		require.NoError(t, os.WriteFile(path, []byte("not an mrc"), 0644))

		_, err := Decoder{}.Decode(context.Background(), path)
		assert.ErrorIs(t, err, volume.ErrTruncated)
	})

	t.Run("unsupported mode", func(t *testing.T) {
		hdr := make([]byte, HeaderSize)
		binary.LittleEndian.PutUint32(hdr[0:], 1)
		binary.LittleEndian.PutUint32(hdr[4:], 1)
		binary.LittleEndian.PutUint32(hdr[8:], 1)
		binary.LittleEndian.PutUint32(hdr[offsetMode:], 101)

		_, err := ParseHeader(hdr)
		assert.ErrorContains(t, err, "unsupported mode")
	})

	t.Run("zero dimension", func(t *testing.T) {
		_, err := ParseHeader(make([]byte, HeaderSize))
		assert.ErrorContains(t, err, "invalid dimensions")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Decoder{}.Decode(context.Background(), filepath.Join(dir, "nope.mrc"))
		assert.Error(t, err)
	})
}

func headerOnly(nx, ny, nz, mode uint32) []byte {
	hdr := make([]byte, HeaderSize)
	le := binary.LittleEndian
	le.PutUint32(hdr[0:], nx)
	le.PutUint32(hdr[4:], ny)
	le.PutUint32(hdr[8:], nz)
	le.PutUint32(hdr[offsetMode:], mode)
	return hdr
}

func TestDecoder_DeclaredSizeBeyondFile(t *testing.T) {
	t.Run("byte count overflows", func(t *testing.T) {
		// 2^22 * 2^21 * 2^21 float32 elements wrap an int64 to zero.
		path := filepath.Join(t.TempDir(), "wrapped.mrc")
		require.NoError(t, os.WriteFile(path, headerOnly(1<<22, 1<<21, 1<<21, 2), 0644))

		vol, err := Decoder{}.Decode(context.Background(), path)
		assert.Nil(t, vol)
		assert.ErrorIs(t, err, volume.ErrOversized)
	})

	t.Run("fits int64 but not the file", func(t *testing.T) {
		stream := headerOnly(1<<10, 1<<10, 1<<10, 2)

		_, err := Read(bytes.NewReader(stream), int64(len(stream)))
		assert.ErrorIs(t, err, volume.ErrTruncated)
	})

	t.Run("unknown stream length", func(t *testing.T) {
		stream := append(headerOnly(1<<10, 1<<10, 1<<10, 2), 1, 2, 3, 4)

		_, err := Read(bytes.NewReader(stream), -1)
		assert.ErrorIs(t, err, volume.ErrTruncated)
	})
}
