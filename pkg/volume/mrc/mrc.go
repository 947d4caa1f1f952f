// Package mrc reads and writes MRC2014 density maps and image stacks.
package mrc

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/marmos91/emingest/pkg/volume"
)

const (
	HeaderSize = 1024

	offsetNX       = 0
	offsetMode     = 12
	offsetNSymBT   = 92
	offsetMapLabel = 208
	offsetStamp    = 212
)

// Extensions lists the file extensions conventionally used for MRC data.
var Extensions = []string{".mrc", ".mrcs", ".map", ".rec", ".st"}

var modeTypes = map[int32]volume.DType{
	0:  volume.Int8,
	1:  volume.Int16,
	2:  volume.Float32,
	4:  volume.Complex64,
	6:  volume.Uint16,
	12: volume.Float16,
}

// Header holds the fields of the fixed MRC header this package needs.
type Header struct {
	NX, NY, NZ int32
	Mode       int32
	NSymBT     int32
	ByteOrder  binary.ByteOrder
}

// Decoder decodes MRC files. The zero value is ready to use.
//
// Like mrcfile's permissive mode, a missing "MAP " label or an unknown
// machine stamp is tolerated (little-endian is assumed). A data block that
// ends early is always an error.
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

	return Read(f, info.Size())
}

// Read decodes an MRC stream of the given total size, or of unknown size
// when size is negative.
func Read(r io.Reader, size int64) (*volume.Volume, error) {
	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read header: %w", volume.ErrTruncated)
	}

	hdr, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}

	dtype := modeTypes[hdr.Mode]
	vol := &volume.Volume{
		Shape: []int{int(hdr.NZ), int(hdr.NY), int(hdr.NX)},
		DType: dtype,
	}

	need, err := volume.ByteCount(dtype, vol.Shape...)
	if err != nil {
		return nil, err
	}
	dataStart := int64(HeaderSize) + int64(hdr.NSymBT)
	if size >= 0 && need > size-dataStart {
		return nil, fmt.Errorf("need %d data bytes at offset %d, file has %d: %w",
			need, dataStart, size, volume.ErrTruncated)
	}

	if _, err := io.CopyN(io.Discard, r, int64(hdr.NSymBT)); err != nil {
		return nil, fmt.Errorf("skip extended header: %w", volume.ErrTruncated)
	}

	if size >= 0 {
		vol.Data = make([]byte, need)
		_, err = io.ReadFull(r, vol.Data)
	} else {
		// Unknown length: grow with the stream rather than trusting the header.
		vol.Data, err = io.ReadAll(io.LimitReader(r, need))
		if err == nil && int64(len(vol.Data)) != need {
			err = io.ErrUnexpectedEOF
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read data: %w", volume.ErrTruncated)
	}

	if hdr.ByteOrder == binary.BigEndian {
		volume.SwapBytes(dtype, vol.Data)
	}

	return vol, nil
}

// ParseHeader validates the fixed header.
func ParseHeader(raw []byte) (*Header, error) {
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("header is %d bytes: %w", len(raw), volume.ErrTruncated)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if raw[offsetStamp] == 0x11 && raw[offsetStamp+1] == 0x11 {
		order = binary.BigEndian
	}

	hdr := &Header{
		NX:        int32(order.Uint32(raw[offsetNX:])),
		NY:        int32(order.Uint32(raw[offsetNX+4:])),
		NZ:        int32(order.Uint32(raw[offsetNX+8:])),
		Mode:      int32(order.Uint32(raw[offsetMode:])),
		NSymBT:    int32(order.Uint32(raw[offsetNSymBT:])),
		ByteOrder: order,
	}

	if hdr.NX <= 0 || hdr.NY <= 0 || hdr.NZ <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%dx%d", hdr.NX, hdr.NY, hdr.NZ)
	}
	if _, ok := modeTypes[hdr.Mode]; !ok {
		return nil, fmt.Errorf("unsupported mode %d", hdr.Mode)
	}
	if hdr.NSymBT < 0 {
		return nil, fmt.Errorf("negative extended header size %d", hdr.NSymBT)
	}

	return hdr, nil
}

// Write encodes v as a little-endian MRC2014 file. A 2-D volume is written
// as a single section.
func Write(w io.Writer, v *volume.Volume) error {
	if err := v.Validate(); err != nil {
		return err
	}

	mode := int32(-1)
	for m, d := range modeTypes {
		if d == v.DType {
			mode = m
			break
		}
	}
	if mode < 0 {
		return fmt.Errorf("element type %s has no MRC mode", v.DType)
	}

	var nx, ny, nz int32
	switch len(v.Shape) {
	case 2:
		nz, ny, nx = 1, int32(v.Shape[0]), int32(v.Shape[1])
	case 3:
		nz, ny, nx = int32(v.Shape[0]), int32(v.Shape[1]), int32(v.Shape[2])
	default:
		return fmt.Errorf("MRC holds 2-D or 3-D data, got %d dimensions", len(v.Shape))
	}

	hdr := make([]byte, HeaderSize)
	le := binary.LittleEndian
	le.PutUint32(hdr[0:], uint32(nx))
	le.PutUint32(hdr[4:], uint32(ny))
	le.PutUint32(hdr[8:], uint32(nz))
	le.PutUint32(hdr[offsetMode:], uint32(mode))
	// mx, my, mz sampling
	le.PutUint32(hdr[28:], uint32(nx))
	le.PutUint32(hdr[32:], uint32(ny))
	le.PutUint32(hdr[36:], uint32(nz))
	// mapc, mapr, maps
	le.PutUint32(hdr[64:], 1)
	le.PutUint32(hdr[68:], 2)
	le.PutUint32(hdr[72:], 3)
	le.PutUint32(hdr[104:], 20140) // nversion
	copy(hdr[offsetMapLabel:], "MAP ")
	copy(hdr[offsetStamp:], []byte{0x44, 0x44, 0x00, 0x00})

	if _, err := io.Copy(w, io.MultiReader(bytes.NewReader(hdr), bytes.NewReader(v.Data))); err != nil {
		return fmt.Errorf("write MRC: %w", err)
	}
	return nil
}

// WriteFile writes v to path as MRC.
func WriteFile(path string, v *volume.Volume) error {
	var buf bytes.Buffer
	if err := Write(&buf, v); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
