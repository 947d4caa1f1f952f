package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// MemoryRepository serves files from memory. It backs tests and offline
// runs.
type MemoryRepository struct {
	mu     sync.Mutex
	order  []string
	files  map[string][]byte
	dirs   map[string]bool
	closed bool

	// Retrieved counts successful Retrieve calls per name.
	Retrieved map[string]int
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		files:     make(map[string][]byte),
		dirs:      make(map[string]bool),
		Retrieved: make(map[string]int),
	}
}

// AddFile appends a file to the listing.
func (m *MemoryRepository) AddFile(name string, data []byte) *MemoryRepository {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		m.order = append(m.order, name)
	}
	m.files[name] = bytes.Clone(data)
	return m
}

// AddDir appends a subdirectory to the listing.
func (m *MemoryRepository) AddDir(name string) *MemoryRepository {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirs[name] {
		m.order = append(m.order, name)
	}
	m.dirs[name] = true
	return m
}

func (m *MemoryRepository) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, os.ErrClosed
	}
	return append([]string(nil), m.order...), nil
}

func (m *MemoryRepository) Stat(ctx context.Context, name string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, false, os.ErrClosed
	}
	data, ok := m.files[name]
	if !ok {
		return 0, false, nil
	}
	return int64(len(data)), true, nil
}

func (m *MemoryRepository) Retrieve(ctx context.Context, name string, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, os.ErrClosed
	}
	data, ok := m.files[name]
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, os.ErrNotExist)
	}
	n, err := io.Copy(w, bytes.NewReader(data))
	if err == nil {
		m.Retrieved[name]++
	}
	return n, err
}

func (m *MemoryRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
