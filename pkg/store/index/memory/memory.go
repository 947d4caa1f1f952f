package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/emingest/pkg/store/index"
)

type entryKey struct {
	entryID string
	key     string
}

// MemoryIndex implements index.Index with a map. Contents are lost on exit.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[entryKey]index.Entry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[entryKey]index.Entry)}
}

func (m *MemoryIndex) Put(ctx context.Context, e index.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entryKey{e.EntryID, e.Key}] = e
	return nil
}

func (m *MemoryIndex) Get(ctx context.Context, entryID, key string) (index.Entry, error) {
	if err := ctx.Err(); err != nil {
		return index.Entry{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[entryKey{entryID, key}]
	if !ok {
		return index.Entry{}, fmt.Errorf("%s/%s: %w", entryID, key, index.ErrNotFound)
	}
	return e, nil
}

func (m *MemoryIndex) ListByStatus(ctx context.Context, entryID, status string) ([]index.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []index.Entry
	for k, e := range m.entries {
		if k.entryID == entryID && e.Status == status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryIndex) Close() error {
	return nil
}
