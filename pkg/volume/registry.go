package volume

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry maps format tags to decoders and file extensions to format tags.
//
// Adding a format means registering a decoder; dispatch never branches on
// concrete formats. A Registry is safe for concurrent use once populated,
// and Register may be called concurrently with Decode.
type Registry struct {
	mu       sync.RWMutex
	decoders map[Format]Decoder
	exts     map[string]Format
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders: make(map[Format]Decoder),
		exts:     make(map[string]Format),
	}
}

// Register installs dec for format and binds each extension to it.
// Extensions are matched case-insensitively, with or without a leading dot.
// Registering the same format twice replaces the earlier decoder.
func (r *Registry) Register(format Format, dec Decoder, exts ...string) {
	if dec == nil {
		panic(fmt.Sprintf("volume: nil decoder for format %q", format))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.decoders[format] = dec
	r.exts[string(format)] = format
	for _, ext := range exts {
		r.exts[normalizeExt(ext)] = format
	}
}

// Formats lists the registered format tags in sorted order.
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Format, 0, len(r.decoders))
	for f := range r.decoders {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Supports reports whether path has an extension with a registered decoder.
func (r *Registry) Supports(path string) bool {
	_, err := r.FormatForPath(path)
	return err == nil
}

// FormatForPath derives the format tag from the file extension alone.
// It performs no I/O, so an unsupported path is rejected even when it does
// not exist.
func (r *Registry) FormatForPath(path string) (Format, error) {
	ext := normalizeExt(filepath.Ext(path))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.exts[ext]; ok && ext != "" {
		return f, nil
	}
	return "", &UnsupportedFormatError{Path: path}
}

// Decode runs the decoder registered for format on path.
//
// The returned volume is validated and normalized: a 3-D stack holding a
// single image is collapsed to 2-D for every format. All decoder failures
// come back as *DecodeError; an unknown format as *UnsupportedFormatError
// before path is touched.
func (r *Registry) Decode(ctx context.Context, path string, format Format) (*Volume, error) {
	r.mu.RLock()
	dec, ok := r.decoders[format]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnsupportedFormatError{Path: path, Format: format}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vol, err := dec.Decode(ctx, path)
	if err != nil {
		var decErr *DecodeError
		if errors.As(err, &decErr) {
			return nil, err
		}
		return nil, &DecodeError{Path: path, Format: format, Err: err}
	}
	if vol == nil {
		return nil, &DecodeError{Path: path, Format: format, Err: errors.New("decoder returned no data")}
	}

	squeezeSingleImage(vol)

	if err := vol.Validate(); err != nil {
		return nil, &DecodeError{Path: path, Format: format, Err: err}
	}

	return vol, nil
}

// DecodeFile derives the format from path and decodes it.
func (r *Registry) DecodeFile(ctx context.Context, path string) (*Volume, Format, error) {
	format, err := r.FormatForPath(path)
	if err != nil {
		return nil, "", err
	}
	vol, err := r.Decode(ctx, path, format)
	return vol, format, err
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
