package volume

import (
	"errors"
	"fmt"
)

// ErrTruncated is wrapped by decoders when a file ends before its declared
// data does.
var ErrTruncated = errors.New("file truncated")

// ErrOversized is wrapped when a declared shape's byte size does not fit in
// an int64.
var ErrOversized = errors.New("declared volume size overflows")

// UnsupportedFormatError is returned when a path's extension, or an explicit
// format tag, has no registered decoder. It is raised before the file is
// opened.
type UnsupportedFormatError struct {
	Path   string
	Format Format
}

func (e *UnsupportedFormatError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("unsupported format %q for %s", e.Format, e.Path)
	}
	return fmt.Sprintf("unsupported file type: %s", e.Path)
}

// DecodeError wraps any failure of a format decoder, including malformed
// headers, truncated data and I/O errors while reading.
type DecodeError struct {
	Path   string
	Format Format
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (%s): %v", e.Path, e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
