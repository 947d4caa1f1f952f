package memory

import (
	"context"
	"testing"

	"github.com/marmos91/emingest/pkg/store/content"
	contenttesting "github.com/marmos91/emingest/pkg/store/content/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryContentStore runs the complete content.Store test suite
// against the MemoryContentStore implementation.
func TestMemoryContentStore(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func(t *testing.T) content.Store {
			store, err := NewMemoryContentStore(context.Background())
			if err != nil {
				t.Fatalf("Failed to create MemoryContentStore: %v", err)
			}
			return store
		},
	}

	suite.Run(t)
}

func TestMemoryContentStore_Keys(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryContentStore(ctx)
	require.NoError(t, err)

	require.NoError(t, store.WriteContent(ctx, "b.json", []byte("{}")))
	require.NoError(t, store.WriteContent(ctx, "a.npy", []byte{0}))

	assert.Equal(t, []string{"a.npy", "b.json"}, store.Keys())
	assert.Equal(t, "memory://a.npy", store.Location("a.npy"))
}

func TestMemoryContentStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryContentStore(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
