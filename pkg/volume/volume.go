// Package volume decodes vendor electron-microscopy files into dense,
// row-major numeric arrays.
//
// Each supported file format is handled by a Decoder registered in a
// Registry under a Format tag. The registry owns dispatch and the output
// normalization rule; decoders own their binary layouts. Decoders are pure:
// they open files read-only and never write.
package volume

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

// Format is the tag used to select a decoder, derived from a file extension.
type Format string

const (
	FormatMRC Format = "mrc"
	FormatDM3 Format = "dm3"
	FormatSER Format = "ser"
)

// Decoder turns one file on disk into a Volume.
type Decoder interface {
	Decode(ctx context.Context, path string) (*Volume, error)
}

// DecoderFunc adapts a plain function to the Decoder interface.
type DecoderFunc func(ctx context.Context, path string) (*Volume, error)

func (f DecoderFunc) Decode(ctx context.Context, path string) (*Volume, error) {
	return f(ctx, path)
}

// Volume is a decoded N-dimensional array.
//
// Data holds the raw element bytes in C order and little-endian byte order,
// so len(Data) == NumElements() * DType.Size(). Decoders convert big-endian
// sources while reading.
type Volume struct {
	Shape []int
	DType DType
	Data  []byte
}

// New allocates a zeroed volume of the given shape and element type.
//
// Decoders size the allocation with ByteCount against the file first; New
// trusts its arguments.
func New(dtype DType, shape ...int) *Volume {
	v := &Volume{Shape: append([]int(nil), shape...), DType: dtype}
	v.Data = make([]byte, v.NumElements()*dtype.Size())
	return v
}

// ByteCount returns the data size of a dtype array with the given shape.
// Dimensions must be positive, and a product that does not fit in an int64
// fails with ErrOversized instead of wrapping.
func ByteCount(dtype DType, shape ...int) (int64, error) {
	n := int64(dtype.Size())
	if n == 0 {
		return 0, fmt.Errorf("unknown element type %q", dtype)
	}
	if len(shape) == 0 {
		return 0, fmt.Errorf("volume has no dimensions")
	}
	for i, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("dimension %d has non-positive size %d", i, d)
		}
		if int64(d) > math.MaxInt64/n {
			return 0, fmt.Errorf("shape %v of %s: %w", shape, dtype, ErrOversized)
		}
		n *= int64(d)
	}
	return n, nil
}

// NumElements returns the product of the shape, or 0 for an empty shape.
// It does not guard against overflow; see ByteCount.
func (v *Volume) NumElements() int {
	if len(v.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range v.Shape {
		n *= d
	}
	return n
}

// NumBytes is the size of the decoded data in bytes.
func (v *Volume) NumBytes() int64 {
	return int64(len(v.Data))
}

// Checksum returns the hex SHA-256 of the raw decoded bytes.
func (v *Volume) Checksum() string {
	sum := sha256.Sum256(v.Data)
	return hex.EncodeToString(sum[:])
}

// Validate checks that the shape and data length agree.
func (v *Volume) Validate() error {
	want, err := ByteCount(v.DType, v.Shape...)
	if err != nil {
		return err
	}
	if int64(len(v.Data)) != want {
		return fmt.Errorf("data length %d does not match shape %v of %s (want %d)",
			len(v.Data), v.Shape, v.DType, want)
	}
	return nil
}

// squeezeSingleImage collapses a 3-D stack holding exactly one image to 2-D.
func squeezeSingleImage(v *Volume) {
	if len(v.Shape) == 3 && v.Shape[0] == 1 {
		v.Shape = []int{v.Shape[1], v.Shape[2]}
	}
}
