// Package dm3 decodes Gatan DigitalMicrograph version 3 image files.
//
// A DM3 file is a tree of labelled tags. The pixel data of the main image
// lives under ImageList/<n>/ImageData/Data with its size in
// ImageData/Dimensions; the first ImageList entry is normally a thumbnail,
// so the last entry carrying data is decoded.
package dm3

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/marmos91/emingest/pkg/volume"
)

const fileVersion = 3

// Extensions lists the file extensions handled by this package.
var Extensions = []string{".dm3"}

// imageDataTypes maps the ImageData.DataType codes that change how the raw
// array must be interpreted.
var imageDataTypes = map[int64]volume.DType{
	1:  volume.Int16,
	2:  volume.Float32,
	3:  volume.Complex64,
	6:  volume.Uint8,
	7:  volume.Int32,
	9:  volume.Int8,
	10: volume.Uint16,
	11: volume.Uint32,
	12: volume.Float64,
	13: volume.Complex128,
	14: volume.Bool,
}

// Decoder decodes DM3 files. The zero value is ready to use.
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

// Read decodes a DM3 stream of the given total size.
func Read(r io.Reader, size int64) (*volume.Volume, error) {
	root, order, err := ReadTags(r, size)
	if err != nil {
		return nil, err
	}
	return imageFromTags(root, order)
}

// ReadTags parses the header and the full tag tree. It returns the root
// group and the byte order used for data values.
func ReadTags(r io.Reader, size int64) (*Group, binary.ByteOrder, error) {
	p := &parser{r: bufio.NewReader(r), remaining: size}

	version, err := p.i32be()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if version != fileVersion {
		return nil, nil, fmt.Errorf("unsupported DM version %d", version)
	}
	if _, err := p.i32be(); err != nil { // root length
		return nil, nil, err
	}
	flag, err := p.i32be()
	if err != nil {
		return nil, nil, err
	}

	p.data = binary.BigEndian
	if flag == 1 {
		p.data = binary.LittleEndian
	}

	root, err := p.group()
	if err != nil {
		return nil, nil, err
	}
	return root, p.data, nil
}

func imageFromTags(root *Group, order binary.ByteOrder) (*volume.Volume, error) {
	list := root.Find("ImageList")
	if list == nil || list.Group == nil {
		return nil, fmt.Errorf("no ImageList tag")
	}

	var image *Group
	for i := len(list.Group.Entries) - 1; i >= 0; i-- {
		g := list.Group.Entries[i].Group
		if g == nil {
			continue
		}
		if e := g.Path("ImageData", "Data"); e != nil && e.Data != nil && e.Data.Raw != nil {
			image = g
			break
		}
	}
	if image == nil {
		return nil, fmt.Errorf("no image data in ImageList")
	}

	data := image.Path("ImageData", "Data").Data
	dtype, ok := simpleTypes[data.ElemType]
	if !ok {
		return nil, fmt.Errorf("image data of unsupported element type %d", data.ElemType)
	}
	if code, ok := intValue(image.Path("ImageData", "DataType")); ok {
		override, known := imageDataTypes[code]
		if !known {
			return nil, fmt.Errorf("unsupported image data type %d", code)
		}
		dtype = override
	}

	dims := image.Path("ImageData", "Dimensions")
	if dims == nil || dims.Group == nil || len(dims.Group.Entries) == 0 {
		return nil, fmt.Errorf("image has no dimensions")
	}

	// Dimensions are stored fastest-varying first; the array shape is the
	// reverse.
	shape := make([]int, len(dims.Group.Entries))
	for i := range dims.Group.Entries {
		n, ok := intValue(&dims.Group.Entries[i])
		if !ok || n <= 0 {
			return nil, fmt.Errorf("invalid dimension %d", i)
		}
		shape[len(shape)-1-i] = int(n)
	}

	want, err := volume.ByteCount(dtype, shape...)
	if err != nil {
		return nil, err
	}
	vol := &volume.Volume{Shape: shape, DType: dtype, Data: data.Raw}
	if int64(len(vol.Data)) != want {
		return nil, fmt.Errorf("image data holds %d bytes, dimensions %v of %s need %d",
			len(vol.Data), shape, dtype, want)
	}
	if order == binary.BigEndian {
		volume.SwapBytes(dtype, vol.Data)
	}

	return vol, nil
}
