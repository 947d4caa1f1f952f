// Package testing provides a conformance suite for index.Index backends.
package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/emingest/pkg/store/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// IndexTestSuite runs the same behavioural tests against any index.Index.
type IndexTestSuite struct {
	// NewIndex creates a fresh, empty index for each test. The suite closes it.
	NewIndex func(t *testing.T) index.Index
}

func (suite *IndexTestSuite) Run(t *testing.T) {
	t.Run("Get_NotFound", suite.testGetNotFound)
	t.Run("Put_Get", suite.testPutGet)
	t.Run("Put_Replaces", suite.testPutReplaces)
	t.Run("ListByStatus", suite.testListByStatus)
	t.Run("ListByStatus_EntryIsolation", suite.testEntryIsolation)
	t.Run("ConcurrentPut", suite.testConcurrentPut)
}

func (suite *IndexTestSuite) open(t *testing.T) index.Index {
	t.Helper()
	idx := suite.NewIndex(t)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func entry(entryID, key, status string) index.Entry {
	return index.Entry{
		Key:        key,
		EntryID:    entryID,
		SourceFile: key + ".mrc",
		Status:     status,
		UpdatedAt:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (suite *IndexTestSuite) testGetNotFound(t *testing.T) {
	idx := suite.open(t)

	_, err := idx.Get(context.Background(), "11759", "missing")
	assert.True(t, errors.Is(err, index.ErrNotFound), "got %v", err)
}

func (suite *IndexTestSuite) testPutGet(t *testing.T) {
	ctx := context.Background()
	idx := suite.open(t)

	want := entry("11759", "a_metadata.json", "saving-data")
	require.NoError(t, idx.Put(ctx, want))

	got, err := idx.Get(ctx, "11759", "a_metadata.json")
	require.NoError(t, err)
	assert.Equal(t, want.Key, got.Key)
	assert.Equal(t, want.SourceFile, got.SourceFile)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
}

func (suite *IndexTestSuite) testPutReplaces(t *testing.T) {
	ctx := context.Background()
	idx := suite.open(t)

	require.NoError(t, idx.Put(ctx, entry("11759", "a", "saving-data")))
	require.NoError(t, idx.Put(ctx, entry("11759", "a", "complete")))

	got, err := idx.Get(ctx, "11759", "a")
	require.NoError(t, err)
	assert.Equal(t, "complete", got.Status)

	stuck, err := idx.ListByStatus(ctx, "11759", "saving-data")
	require.NoError(t, err)
	assert.Empty(t, stuck)
}

func (suite *IndexTestSuite) testListByStatus(t *testing.T) {
	ctx := context.Background()
	idx := suite.open(t)

	require.NoError(t, idx.Put(ctx, entry("11759", "c", "saving-data")))
	require.NoError(t, idx.Put(ctx, entry("11759", "a", "saving-data")))
	require.NoError(t, idx.Put(ctx, entry("11759", "b", "complete")))

	stuck, err := idx.ListByStatus(ctx, "11759", "saving-data")
	require.NoError(t, err)
	require.Len(t, stuck, 2)
	assert.Equal(t, "a", stuck[0].Key)
	assert.Equal(t, "c", stuck[1].Key)
}

func (suite *IndexTestSuite) testEntryIsolation(t *testing.T) {
	ctx := context.Background()
	idx := suite.open(t)

	require.NoError(t, idx.Put(ctx, entry("11759", "a", "saving-data")))
	require.NoError(t, idx.Put(ctx, entry("1175", "a", "saving-data")))

	got, err := idx.ListByStatus(ctx, "1175", "saving-data")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1175", got[0].EntryID)
}

func (suite *IndexTestSuite) testConcurrentPut(t *testing.T) {
	ctx := context.Background()
	idx := suite.open(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, idx.Put(ctx, entry("11759", fmt.Sprintf("k%02d", i), "complete")))
		}(i)
	}
	wg.Wait()

	all, err := idx.ListByStatus(ctx, "11759", "complete")
	require.NoError(t, err)
	assert.Len(t, all, n)
}
