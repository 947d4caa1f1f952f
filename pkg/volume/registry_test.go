package volume

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDecoder returns a fixed volume and counts calls.
type stubDecoder struct {
	vol   *Volume
	err   error
	calls int
}

func (s *stubDecoder) Decode(_ context.Context, _ string) (*Volume, error) {
	s.calls++
	return s.vol, s.err
}

func TestFormatForPath(t *testing.T) {
	reg := NewRegistry()
	reg.Register(FormatMRC, &stubDecoder{}, ".mrc", "MAP")

	tests := []struct {
		path string
		want Format
		ok   bool
	}{
		{"/data/a.mrc", FormatMRC, true},
		{"/data/A.MRC", FormatMRC, true},
		{"b.map", FormatMRC, true},
		{"c.tif", "", false},
		{"noext", "", false},
		{"dir.mrc/inner", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := reg.FormatForPath(tt.path)
			if !tt.ok {
				var unsupported *UnsupportedFormatError
				require.ErrorAs(t, err, &unsupported)
				assert.Equal(t, tt.path, unsupported.Path)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeFile_UnsupportedDoesNotTouchFilesystem(t *testing.T) {
	reg := NewRegistry()
	dec := &stubDecoder{vol: New(Uint8, 2, 2)}
	reg.Register(FormatMRC, dec, ".mrc")

	path := filepath.Join(t.TempDir(), "missing.xyz")

	_, _, err := reg.DecodeFile(context.Background(), path)

	var unsupported *UnsupportedFormatError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, 0, dec.calls)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no file may be created for an unsupported path")
}

func TestDecode_UnknownFormatTag(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Decode(context.Background(), "x.mrc", FormatMRC)

	var unsupported *UnsupportedFormatError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, FormatMRC, unsupported.Format)
}

func TestDecode_WrapsDecoderErrors(t *testing.T) {
	cause := errors.New("bad header")
	reg := NewRegistry()
	reg.Register(FormatDM3, &stubDecoder{err: cause}, ".dm3")

	_, err := reg.Decode(context.Background(), "x.dm3", FormatDM3)

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, FormatDM3, decErr.Format)
	assert.ErrorIs(t, err, cause)
}

func TestDecode_CollapsesSingleImageStack(t *testing.T) {
	tests := []struct {
		name  string
		shape []int
		want  []int
	}{
		{"single image stack", []int{1, 4, 3}, []int{4, 3}},
		{"multi image stack", []int{2, 4, 3}, []int{2, 4, 3}},
		{"plain image", []int{4, 3}, []int{4, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			reg.Register(FormatSER, &stubDecoder{vol: New(Int16, tt.shape...)}, ".ser")

			vol, err := reg.Decode(context.Background(), "x.ser", FormatSER)
			require.NoError(t, err)
			assert.Equal(t, tt.want, vol.Shape)
		})
	}
}

func TestDecode_RejectsInconsistentVolume(t *testing.T) {
	reg := NewRegistry()
	bad := &Volume{Shape: []int{2, 2}, DType: Float32, Data: make([]byte, 3)}
	reg.Register(FormatMRC, &stubDecoder{vol: bad}, ".mrc")

	_, err := reg.Decode(context.Background(), "x.mrc", FormatMRC)

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
}

func TestVolumeChecksumAndSwap(t *testing.T) {
	v := New(Uint16, 1, 2)
	v.Data = []byte{0x01, 0x02, 0x03, 0x04}

	assert.Equal(t, int64(4), v.NumBytes())
	assert.Len(t, v.Checksum(), 64)

	SwapBytes(Uint16, v.Data)
	assert.Equal(t, []byte{0x02, 0x01, 0x04, 0x03}, v.Data)

	c := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	SwapBytes(Complex64, c)
	assert.Equal(t, []byte{4, 3, 2, 1, 8, 7, 6, 5}, c)
}

func TestDTypeDescr(t *testing.T) {
	d, ok := DTypeFromDescr(Float32.Descr())
	require.True(t, ok)
	assert.Equal(t, Float32, d)
	assert.False(t, DType("float128").Valid())
}

func TestByteCount(t *testing.T) {
	n, err := ByteCount(Float32, 3, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(240), n)

	_, err = ByteCount(Float32, 1<<22, 1<<21, 1<<21)
	assert.ErrorIs(t, err, ErrOversized)

	_, err = ByteCount(Uint8, 4, 0)
	assert.ErrorContains(t, err, "non-positive")

	_, err = ByteCount(DType("bogus"), 2)
	assert.ErrorContains(t, err, "unknown element type")
}

func TestDecode_RejectsOverflowingShape(t *testing.T) {
	// The wrapped product equals len(Data), so only an overflow check catches it.
	wrapped := &Volume{Shape: []int{1 << 22, 1 << 21, 1 << 21}, DType: Float32}
	reg := NewRegistry()
	reg.Register(FormatMRC, &stubDecoder{vol: wrapped}, ".mrc")

	vol, err := reg.Decode(context.Background(), "evil.mrc", FormatMRC)
	assert.Nil(t, vol)

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.ErrorIs(t, err, ErrOversized)
}
