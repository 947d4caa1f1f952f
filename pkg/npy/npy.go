// Package npy reads and writes NumPy .npy array files (format version 1.0).
//
// Only C-ordered, little-endian arrays are written. Reading accepts the same
// subset, which is all this module ever produces.
package npy

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/marmos91/emingest/pkg/volume"
)

// Extension is the file extension of persisted arrays.
const Extension = ".npy"

var magic = []byte("\x93NUMPY")

const headerAlign = 64

var ErrBadHeader = errors.New("malformed npy header")

// Encode writes v in .npy format.
func Encode(w io.Writer, v *volume.Volume) error {
	if err := v.Validate(); err != nil {
		return err
	}

	hdr := header(v.DType.Descr(), v.Shape)

	var prefix bytes.Buffer
	prefix.Write(magic)
	prefix.Write([]byte{1, 0})
	_ = binary.Write(&prefix, binary.LittleEndian, uint16(len(hdr)))
	prefix.WriteString(hdr)

	if _, err := w.Write(prefix.Bytes()); err != nil {
		return fmt.Errorf("write npy header: %w", err)
	}
	if _, err := w.Write(v.Data); err != nil {
		return fmt.Errorf("write npy data: %w", err)
	}
	return nil
}

// Marshal returns the .npy encoding of v.
func Marshal(v *volume.Volume) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(v.Data) + headerAlign*2)
	if err := Encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// header renders the dict literal, padded so the data starts on a 64-byte
// boundary.
func header(descr string, shape []int) string {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	tuple := strings.Join(dims, ", ")
	if len(shape) == 1 {
		tuple += ","
	}

	h := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", descr, tuple)
	// magic(6) + version(2) + length(2) + header + '\n'
	total := len(magic) + 4 + len(h) + 1
	if rem := total % headerAlign; rem != 0 {
		h += strings.Repeat(" ", headerAlign-rem)
	}
	return h + "\n"
}

var (
	descrRe   = regexp.MustCompile(`'descr':\s*'([^']+)'`)
	fortranRe = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

// Decode reads a .npy stream written by Encode.
func Decode(r io.Reader) (*volume.Volume, error) {
	pre := make([]byte, len(magic)+4)
	if _, err := io.ReadFull(r, pre); err != nil {
		return nil, fmt.Errorf("read npy preamble: %w", err)
	}
	if !bytes.Equal(pre[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: bad magic", ErrBadHeader)
	}
	if pre[len(magic)] != 1 {
		return nil, fmt.Errorf("%w: unsupported version %d.%d", ErrBadHeader, pre[len(magic)], pre[len(magic)+1])
	}

	hdr := make([]byte, binary.LittleEndian.Uint16(pre[len(magic)+2:]))
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("read npy header: %w", err)
	}

	descr := descrRe.FindSubmatch(hdr)
	fortran := fortranRe.FindSubmatch(hdr)
	shapeM := shapeRe.FindSubmatch(hdr)
	if descr == nil || fortran == nil || shapeM == nil {
		return nil, fmt.Errorf("%w: %q", ErrBadHeader, hdr)
	}
	if string(fortran[1]) == "True" {
		return nil, fmt.Errorf("%w: fortran order not supported", ErrBadHeader)
	}

	dtype, ok := volume.DTypeFromDescr(string(descr[1]))
	if !ok {
		return nil, fmt.Errorf("%w: unsupported descr %q", ErrBadHeader, descr[1])
	}

	var shape []int
	for _, part := range strings.Split(string(shapeM[1]), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: shape %q", ErrBadHeader, shapeM[1])
		}
		shape = append(shape, n)
	}

	v := volume.New(dtype, shape...)
	if _, err := io.ReadFull(r, v.Data); err != nil {
		return nil, fmt.Errorf("read npy data: %w", err)
	}
	return v, nil
}
