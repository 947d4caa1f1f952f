// Package ser decodes FEI/Thermo TIA series (.ser) files holding 2-D images.
//
// A series is a list of equally shaped images addressed through an offset
// array. Decoding stacks the valid elements into an (n, y, x) volume; the
// registry collapses single-image series to 2-D.
package ser

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/marmos91/emingest/pkg/volume"
)

const (
	byteOrderLE   = 0x4949
	seriesID      = 0x0197
	version210    = 0x0210
	version220    = 0x0220
	dataType1D    = 0x4120
	dataType2D    = 0x4122
	calibrationSz = 20 // offset f64, delta f64, element i32
)

// Extensions lists the file extensions handled by this package.
var Extensions = []string{".ser"}

var elementTypes = map[uint16]volume.DType{
	1:  volume.Uint8,
	2:  volume.Uint16,
	3:  volume.Uint32,
	4:  volume.Int8,
	5:  volume.Int16,
	6:  volume.Int32,
	7:  volume.Float32,
	8:  volume.Float64,
	9:  volume.Complex64,
	10: volume.Complex128,
}

// Header is the fixed part of a series file.
type Header struct {
	Version            uint16
	DataTypeID         uint32
	TotalElements      int32
	ValidElements      int32
	OffsetArrayOffset  int64
	NumberOfDimensions int32
	offsetWidth        int
}

// Decoder decodes SER files. The zero value is ready to use.
type Decoder struct{}

func (Decoder) Decode(ctx context.Context, path string) (*volume.Volume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return Read(ctx, f, info.Size())
}

// Read decodes a series from r, which holds size bytes.
func Read(ctx context.Context, r io.ReaderAt, size int64) (*volume.Volume, error) {
	hdr, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if hdr.DataTypeID == dataType1D {
		return nil, fmt.Errorf("series holds 1-D spectra, not images")
	}
	if hdr.DataTypeID != dataType2D {
		return nil, fmt.Errorf("unknown data type id %#x", hdr.DataTypeID)
	}
	if hdr.ValidElements <= 0 {
		return nil, fmt.Errorf("series has no valid elements")
	}

	offsets, err := readOffsets(r, hdr, size)
	if err != nil {
		return nil, err
	}

	var vol *volume.Volume
	for i, off := range offsets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		shape, dtype, dataStart, err := readElementHeader(r, off)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}

		n, err := volume.ByteCount(dtype, shape[0], shape[1])
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if n > size-dataStart {
			return nil, fmt.Errorf("element %d: %w", i, volume.ErrTruncated)
		}

		if vol == nil {
			// Every element stores its own data, so the stack cannot be
			// larger than the file.
			total, err := volume.ByteCount(dtype, len(offsets), shape[0], shape[1])
			if err != nil {
				return nil, err
			}
			if total > size {
				return nil, fmt.Errorf("%d elements of %v %s exceed file of %d bytes: %w",
					len(offsets), shape, dtype, size, volume.ErrTruncated)
			}
			vol = volume.New(dtype, len(offsets), shape[0], shape[1])
		} else if dtype != vol.DType || shape[0] != vol.Shape[1] || shape[1] != vol.Shape[2] {
			return nil, fmt.Errorf("element %d is %v %s, series started with %v %s",
				i, shape, dtype, vol.Shape[1:], vol.DType)
		}
		dst := vol.Data[int64(i)*n : int64(i+1)*n]
		if _, err := r.ReadAt(dst, dataStart); err != nil {
			return nil, fmt.Errorf("element %d: %v: %w", i, err, volume.ErrTruncated)
		}
	}

	return vol, nil
}

// ReadHeader parses and validates the series header.
func ReadHeader(r io.ReaderAt) (*Header, error) {
	buf := make([]byte, 38)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read header: %v: %w", err, volume.ErrTruncated)
	}

	le := binary.LittleEndian
	if bo := le.Uint16(buf[0:]); bo != byteOrderLE {
		return nil, fmt.Errorf("unsupported byte order %#x", bo)
	}
	if id := le.Uint16(buf[2:]); id != seriesID {
		return nil, fmt.Errorf("not a series file (id %#x)", id)
	}

	hdr := &Header{
		Version:       le.Uint16(buf[4:]),
		DataTypeID:    le.Uint32(buf[6:]),
		TotalElements: int32(le.Uint32(buf[14:])),
		ValidElements: int32(le.Uint32(buf[18:])),
	}

	switch hdr.Version {
	case version210:
		hdr.offsetWidth = 4
		hdr.OffsetArrayOffset = int64(int32(le.Uint32(buf[22:])))
		hdr.NumberOfDimensions = int32(le.Uint32(buf[26:]))
	case version220:
		hdr.offsetWidth = 8
		hdr.OffsetArrayOffset = int64(le.Uint64(buf[22:]))
		hdr.NumberOfDimensions = int32(le.Uint32(buf[30:]))
	default:
		return nil, fmt.Errorf("unsupported series version %#x", hdr.Version)
	}

	if hdr.TotalElements < 0 || hdr.ValidElements > hdr.TotalElements {
		return nil, fmt.Errorf("inconsistent element counts %d/%d", hdr.ValidElements, hdr.TotalElements)
	}
	return hdr, nil
}

func readOffsets(r io.ReaderAt, hdr *Header, size int64) ([]int64, error) {
	n := int64(hdr.ValidElements)
	if hdr.OffsetArrayOffset <= 0 || hdr.OffsetArrayOffset+n*int64(hdr.offsetWidth) > size {
		return nil, fmt.Errorf("offset array out of range: %w", volume.ErrTruncated)
	}

	buf := make([]byte, n*int64(hdr.offsetWidth))
	if _, err := r.ReadAt(buf, hdr.OffsetArrayOffset); err != nil {
		return nil, fmt.Errorf("read offset array: %v: %w", err, volume.ErrTruncated)
	}

	offsets := make([]int64, n)
	for i := range offsets {
		if hdr.offsetWidth == 8 {
			offsets[i] = int64(binary.LittleEndian.Uint64(buf[i*8:]))
		} else {
			offsets[i] = int64(int32(binary.LittleEndian.Uint32(buf[i*4:])))
		}
		if offsets[i] <= 0 || offsets[i] >= size {
			return nil, fmt.Errorf("element %d offset %d out of range", i, offsets[i])
		}
	}
	return offsets, nil
}

// readElementHeader returns the (y, x) shape, element type and data start of
// a 2-D element.
func readElementHeader(r io.ReaderAt, off int64) ([2]int, volume.DType, int64, error) {
	buf := make([]byte, 2*calibrationSz+2+8)
	if _, err := r.ReadAt(buf, off); err != nil {
		return [2]int{}, "", 0, fmt.Errorf("read element header: %v: %w", err, volume.ErrTruncated)
	}

	le := binary.LittleEndian
	code := le.Uint16(buf[2*calibrationSz:])
	dtype, ok := elementTypes[code]
	if !ok {
		return [2]int{}, "", 0, fmt.Errorf("unknown element data type %d", code)
	}

	x := int32(le.Uint32(buf[2*calibrationSz+2:]))
	y := int32(le.Uint32(buf[2*calibrationSz+6:]))
	if x <= 0 || y <= 0 {
		return [2]int{}, "", 0, fmt.Errorf("invalid image size %dx%d", x, y)
	}

	return [2]int{int(y), int(x)}, dtype, off + int64(len(buf)), nil
}
