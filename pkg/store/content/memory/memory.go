package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/marmos91/emingest/pkg/store/content"
)

// MemoryContentStore implements content.Store using in-memory storage.
//
// It is designed for tests and dry runs: data is lost when the process
// exits. Data is copied on write and on read, so callers may reuse their
// buffers.
//
// Thread Safety:
// All operations are protected by a sync.RWMutex.
type MemoryContentStore struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryContentStore creates an empty in-memory store.
//
// Returns an error only if the context is already cancelled.
func NewMemoryContentStore(ctx context.Context) (*MemoryContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &MemoryContentStore{
		data: make(map[string][]byte),
	}, nil
}

func (s *MemoryContentStore) WriteContent(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := content.ValidateKey(key); err != nil {
		return err
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = buf
	return nil
}

func (s *MemoryContentStore) ReadContent(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
	}

	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

func (s *MemoryContentStore) GetContentSize(ctx context.Context, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[key]
	if !ok {
		return 0, fmt.Errorf("content %s: %w", key, content.ErrContentNotFound)
	}
	return uint64(len(data)), nil
}

func (s *MemoryContentStore) ContentExists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[key]
	return ok, nil
}

func (s *MemoryContentStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Location returns a memory:// pseudo-URL for key.
func (s *MemoryContentStore) Location(key string) string {
	return "memory://" + key
}

// Keys lists stored keys in sorted order.
func (s *MemoryContentStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *MemoryContentStore) Close() error {
	return nil
}
