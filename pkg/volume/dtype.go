package volume

// DType names the element type of a Volume. Values match numpy dtype names.
type DType string

const (
	Int8       DType = "int8"
	Uint8      DType = "uint8"
	Int16      DType = "int16"
	Uint16     DType = "uint16"
	Int32      DType = "int32"
	Uint32     DType = "uint32"
	Int64      DType = "int64"
	Uint64     DType = "uint64"
	Float16    DType = "float16"
	Float32    DType = "float32"
	Float64    DType = "float64"
	Complex64  DType = "complex64"
	Complex128 DType = "complex128"
	Bool       DType = "bool"
)

type dtypeInfo struct {
	size  int
	descr string
	// word is the byte-swap unit; complex types swap each component.
	word int
}

var dtypes = map[DType]dtypeInfo{
	Int8:       {1, "|i1", 1},
	Uint8:      {1, "|u1", 1},
	Bool:       {1, "|b1", 1},
	Int16:      {2, "<i2", 2},
	Uint16:     {2, "<u2", 2},
	Float16:    {2, "<f2", 2},
	Int32:      {4, "<i4", 4},
	Uint32:     {4, "<u4", 4},
	Float32:    {4, "<f4", 4},
	Int64:      {8, "<i8", 8},
	Uint64:     {8, "<u8", 8},
	Float64:    {8, "<f8", 8},
	Complex64:  {8, "<c8", 4},
	Complex128: {16, "<c16", 8},
}

// Size is the element size in bytes, 0 for an unknown type.
func (d DType) Size() int {
	return dtypes[d].size
}

// Descr is the numpy array-protocol type string for little-endian storage.
func (d DType) Descr() string {
	return dtypes[d].descr
}

// Valid reports whether d is a known element type.
func (d DType) Valid() bool {
	_, ok := dtypes[d]
	return ok
}

// DTypeFromDescr maps a numpy descriptor back to a DType.
func DTypeFromDescr(descr string) (DType, bool) {
	for d, info := range dtypes {
		if info.descr == descr {
			return d, true
		}
	}
	return "", false
}

// SwapBytes converts buf, holding elements of type d, between big- and
// little-endian in place.
func SwapBytes(d DType, buf []byte) {
	w := dtypes[d].word
	if w <= 1 {
		return
	}
	for i := 0; i+w <= len(buf); i += w {
		for a, b := i, i+w-1; a < b; a, b = a+1, b-1 {
			buf[a], buf[b] = buf[b], buf[a]
		}
	}
}
