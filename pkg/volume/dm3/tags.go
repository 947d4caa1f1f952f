package dm3

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/marmos91/emingest/pkg/volume"
)

// Tag kinds in the tag stream.
const (
	tagGroup = 20
	tagData  = 21
)

// Encoded element types.
const (
	typeInt16   = 2
	typeInt32   = 3
	typeUint16  = 4
	typeUint32  = 5
	typeFloat32 = 6
	typeFloat64 = 7
	typeBool    = 8
	typeInt8    = 9
	typeUint8   = 10
	typeInt64   = 11
	typeUint64  = 12
	typeStruct  = 15
	typeString  = 18
	typeArray   = 20
)

var simpleTypes = map[int32]volume.DType{
	typeInt16:   volume.Int16,
	typeInt32:   volume.Int32,
	typeUint16:  volume.Uint16,
	typeUint32:  volume.Uint32,
	typeFloat32: volume.Float32,
	typeFloat64: volume.Float64,
	typeBool:    volume.Bool,
	typeInt8:    volume.Int8,
	typeUint8:   volume.Uint8,
	typeInt64:   volume.Int64,
	typeUint64:  volume.Uint64,
}

// Group is a node in the tag tree. Entries keep file order; unnamed entries
// (image lists, dimension lists) are addressed by position.
type Group struct {
	Entries []Entry
}

// Entry is one labelled child: either a nested group or a data value.
type Entry struct {
	Label string
	Group *Group
	Data  *Data
}

// Data is a decoded data tag. Simple values land in Value; arrays of simple
// types keep their raw bytes in Raw (in file byte order) with ElemType set.
type Data struct {
	Type     int32
	ElemType int32
	Value    any
	Raw      []byte
}

// Find returns the first child with the given label.
func (g *Group) Find(label string) *Entry {
	for i := range g.Entries {
		if g.Entries[i].Label == label {
			return &g.Entries[i]
		}
	}
	return nil
}

// Path follows a chain of labels through nested groups.
func (g *Group) Path(labels ...string) *Entry {
	cur := g
	var e *Entry
	for _, l := range labels {
		if cur == nil {
			return nil
		}
		if e = cur.Find(l); e == nil {
			return nil
		}
		cur = e.Group
	}
	return e
}

// parser walks the tag stream. Tag framing is big-endian; data values use
// the byte order declared in the file header.
type parser struct {
	r         *bufio.Reader
	data      binary.ByteOrder
	remaining int64
	depth     int
}

const maxDepth = 64

func (p *parser) read(buf []byte) error {
	if int64(len(buf)) > p.remaining {
		return fmt.Errorf("need %d bytes, %d left: %w", len(buf), p.remaining, volume.ErrTruncated)
	}
	if _, err := io.ReadFull(p.r, buf); err != nil {
		return fmt.Errorf("%v: %w", err, volume.ErrTruncated)
	}
	p.remaining -= int64(len(buf))
	return nil
}

func (p *parser) u8() (uint8, error) {
	var b [1]byte
	err := p.read(b[:])
	return b[0], err
}

func (p *parser) u16be() (uint16, error) {
	var b [2]byte
	err := p.read(b[:])
	return binary.BigEndian.Uint16(b[:]), err
}

func (p *parser) i32be() (int32, error) {
	var b [4]byte
	err := p.read(b[:])
	return int32(binary.BigEndian.Uint32(b[:])), err
}

func (p *parser) group() (*Group, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, fmt.Errorf("tag groups nested deeper than %d", maxDepth)
	}

	// sorted and open flags
	if _, err := p.u8(); err != nil {
		return nil, err
	}
	if _, err := p.u8(); err != nil {
		return nil, err
	}
	n, err := p.i32be()
	if err != nil {
		return nil, err
	}
	if n < 0 || int64(n) > p.remaining {
		return nil, fmt.Errorf("implausible tag count %d", n)
	}

	g := &Group{Entries: make([]Entry, 0, n)}
	for i := int32(0); i < n; i++ {
		e, err := p.entry()
		if err != nil {
			return nil, err
		}
		g.Entries = append(g.Entries, *e)
	}
	return g, nil
}

func (p *parser) entry() (*Entry, error) {
	kind, err := p.u8()
	if err != nil {
		return nil, err
	}
	labelLen, err := p.u16be()
	if err != nil {
		return nil, err
	}
	label := make([]byte, labelLen)
	if err := p.read(label); err != nil {
		return nil, err
	}

	e := &Entry{Label: string(label)}
	switch kind {
	case tagGroup:
		e.Group, err = p.group()
	case tagData:
		e.Data, err = p.dataTag()
	default:
		err = fmt.Errorf("unknown tag kind %d at %q", kind, e.Label)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (p *parser) dataTag() (*Data, error) {
	var marker [4]byte
	if err := p.read(marker[:]); err != nil {
		return nil, err
	}
	if string(marker[:]) != "%%%%" {
		return nil, fmt.Errorf("missing data marker, got %q", marker[:])
	}

	n, err := p.i32be()
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > 1<<16 {
		return nil, fmt.Errorf("implausible type definition length %d", n)
	}
	info := make([]int32, n)
	for i := range info {
		if info[i], err = p.i32be(); err != nil {
			return nil, err
		}
	}

	d := &Data{Type: info[0]}
	switch {
	case simpleTypes[d.Type] != "":
		d.Value, err = p.simple(d.Type)
	case d.Type == typeString:
		if len(info) < 2 {
			return nil, fmt.Errorf("string tag without length")
		}
		if info[1] < 0 || int64(info[1]) > p.remaining {
			return nil, fmt.Errorf("string of %d bytes exceeds file: %w", info[1], volume.ErrTruncated)
		}
		buf := make([]byte, info[1])
		err = p.read(buf)
		d.Value = string(buf)
	case d.Type == typeStruct:
		var size int64
		if size, err = structSize(info[1:]); err == nil {
			if size > p.remaining {
				return nil, fmt.Errorf("struct of %d bytes exceeds file: %w", size, volume.ErrTruncated)
			}
			d.Raw = make([]byte, size)
			err = p.read(d.Raw)
		}
	case d.Type == typeArray:
		err = p.array(d, info)
	default:
		err = fmt.Errorf("unknown data type %d", d.Type)
	}
	return d, err
}

func (p *parser) array(d *Data, info []int32) error {
	if len(info) < 3 {
		return fmt.Errorf("array tag with short definition %v", info)
	}
	d.ElemType = info[1]
	length := int64(info[len(info)-1])

	var elemSize int64
	if d.ElemType == typeStruct {
		var err error
		if elemSize, err = structSize(info[2 : len(info)-1]); err != nil {
			return err
		}
	} else {
		dt, ok := simpleTypes[d.ElemType]
		if !ok {
			return fmt.Errorf("array of unsupported type %d", d.ElemType)
		}
		elemSize = int64(dt.Size())
	}

	total := length * elemSize
	if length < 0 || total > p.remaining {
		return fmt.Errorf("array of %d elements exceeds file: %w", length, volume.ErrTruncated)
	}
	d.Raw = make([]byte, total)
	return p.read(d.Raw)
}

// structSize computes the byte size of a struct definition laid out as
// name length, field count, then (name length, type) per field.
func structSize(def []int32) (int64, error) {
	if len(def) < 2 {
		return 0, fmt.Errorf("struct tag with short definition")
	}
	fields := int(def[1])
	if fields < 0 || len(def) < 2+2*fields {
		return 0, fmt.Errorf("struct definition declares %d fields, has %d values", fields, len(def))
	}
	var size int64
	for i := 0; i < fields; i++ {
		dt, ok := simpleTypes[def[2+2*i+1]]
		if !ok {
			return 0, fmt.Errorf("struct field of unsupported type %d", def[2+2*i+1])
		}
		size += int64(dt.Size())
	}
	return size, nil
}

func (p *parser) simple(t int32) (any, error) {
	buf := make([]byte, simpleTypes[t].Size())
	if err := p.read(buf); err != nil {
		return nil, err
	}
	o := p.data
	switch t {
	case typeInt16:
		return int64(int16(o.Uint16(buf))), nil
	case typeUint16:
		return int64(o.Uint16(buf)), nil
	case typeInt32:
		return int64(int32(o.Uint32(buf))), nil
	case typeUint32:
		return int64(o.Uint32(buf)), nil
	case typeInt64:
		return int64(o.Uint64(buf)), nil
	case typeUint64:
		return int64(o.Uint64(buf)), nil
	case typeInt8:
		return int64(int8(buf[0])), nil
	case typeUint8:
		return int64(buf[0]), nil
	case typeBool:
		return buf[0] != 0, nil
	case typeFloat32, typeFloat64:
		// floats are kept raw; only integer tags drive decoding
		return buf, nil
	}
	return nil, fmt.Errorf("unknown simple type %d", t)
}

// intValue extracts an integer data tag.
func intValue(e *Entry) (int64, bool) {
	if e == nil || e.Data == nil {
		return 0, false
	}
	v, ok := e.Data.Value.(int64)
	return v, ok
}
