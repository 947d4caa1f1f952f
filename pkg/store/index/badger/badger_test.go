package badger

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/emingest/pkg/store/index"
	indextesting "github.com/marmos91/emingest/pkg/store/index/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerIndex(t *testing.T) {
	suite := &indextesting.IndexTestSuite{
		NewIndex: func(t *testing.T) index.Index {
			idx, err := NewBadgerIndex(context.Background(), BadgerIndexConfig{DBPath: t.TempDir()})
			if err != nil {
				t.Fatalf("Failed to create BadgerIndex: %v", err)
			}
			return idx
		},
	}
	suite.Run(t)
}

func TestBadgerIndex_InMemory(t *testing.T) {
	suite := &indextesting.IndexTestSuite{
		NewIndex: func(t *testing.T) index.Index {
			idx, err := NewBadgerIndex(context.Background(), BadgerIndexConfig{InMemory: true})
			if err != nil {
				t.Fatalf("Failed to create BadgerIndex: %v", err)
			}
			return idx
		},
	}
	suite.Run(t)
}

func TestBadgerIndex_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := NewBadgerIndex(ctx, BadgerIndexConfig{DBPath: dir})
	require.NoError(t, err)
	require.NoError(t, idx.Put(ctx, index.Entry{
		Key:       "a_metadata.json",
		EntryID:   "11759",
		Status:    "saving-data",
		UpdatedAt: time.Now().UTC(),
	}))
	require.NoError(t, idx.Close())

	idx, err = NewBadgerIndex(ctx, BadgerIndexConfig{DBPath: dir})
	require.NoError(t, err)
	defer idx.Close()

	stuck, err := idx.ListByStatus(ctx, "11759", "saving-data")
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "a_metadata.json", stuck[0].Key)
}

func TestNewBadgerIndex_RequiresPath(t *testing.T) {
	_, err := NewBadgerIndex(context.Background(), BadgerIndexConfig{})
	assert.Error(t, err)
}
