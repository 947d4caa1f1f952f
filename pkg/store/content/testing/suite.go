package testing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/marmos91/emingest/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite is a conformance suite for content.Store implementations.
// It tests the interface contract, not implementation details, making it
// reusable across backends (memory, filesystem, S3).
//
// Usage:
//
//	func TestMyContentStore(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func(t *testing.T) content.Store {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) content.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("ReadContent_NotFound", suite.testReadNotFound)
	t.Run("WriteContent_Basic", suite.testWriteBasic)
	t.Run("WriteContent_Overwrite", suite.testWriteOverwrite)
	t.Run("WriteContent_Empty", suite.testWriteEmpty)
	t.Run("WriteContent_NestedKey", suite.testWriteNested)
	t.Run("WriteContent_InvalidKey", suite.testWriteInvalidKey)
	t.Run("WriteContent_CallerBufferReuse", suite.testCallerBufferReuse)
	t.Run("ContentExists", suite.testContentExists)
	t.Run("Delete_Idempotent", suite.testDeleteIdempotent)
	t.Run("ConcurrentDistinctKeys", suite.testConcurrentWrites)
	t.Run("Location", suite.testLocation)
}

func testContext() context.Context {
	return context.Background()
}

// ============================================================================
// Helpers
// ============================================================================

func mustWrite(t *testing.T, store content.Store, key string, data []byte) {
	t.Helper()
	require.NoError(t, store.WriteContent(testContext(), key, data), "WriteContent should succeed")
}

func assertContent(t *testing.T, store content.Store, key string, expected []byte) {
	t.Helper()
	data, err := content.ReadAll(testContext(), store, key)
	require.NoError(t, err, "ReadContent should succeed")
	assert.Equal(t, expected, data, "Content data mismatch")

	size, err := store.GetContentSize(testContext(), key)
	require.NoError(t, err, "GetContentSize should succeed")
	assert.Equal(t, uint64(len(expected)), size, "Content size mismatch")
}

// ============================================================================
// Tests
// ============================================================================

func (suite *StoreTestSuite) testReadNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.ReadContent(testContext(), "missing.json")
	assert.True(t, errors.Is(err, content.ErrContentNotFound), "got %v", err)

	_, err = store.GetContentSize(testContext(), "missing.json")
	assert.True(t, errors.Is(err, content.ErrContentNotFound), "got %v", err)
}

func (suite *StoreTestSuite) testWriteBasic(t *testing.T) {
	store := suite.NewStore(t)

	mustWrite(t, store, "a_20240101_120000.npy", []byte("volume bytes"))
	assertContent(t, store, "a_20240101_120000.npy", []byte("volume bytes"))
}

func (suite *StoreTestSuite) testWriteOverwrite(t *testing.T) {
	store := suite.NewStore(t)

	mustWrite(t, store, "rec.json", []byte(`{"status":"saving-data"}`))
	mustWrite(t, store, "rec.json", []byte(`{"status":"complete","extra":true}`))
	assertContent(t, store, "rec.json", []byte(`{"status":"complete","extra":true}`))
}

func (suite *StoreTestSuite) testWriteEmpty(t *testing.T) {
	store := suite.NewStore(t)

	mustWrite(t, store, "empty", []byte{})
	assertContent(t, store, "empty", []byte{})
}

func (suite *StoreTestSuite) testWriteNested(t *testing.T) {
	store := suite.NewStore(t)

	mustWrite(t, store, "11759/raw/a.mrc", []byte{1, 2, 3})
	assertContent(t, store, "11759/raw/a.mrc", []byte{1, 2, 3})
}

func (suite *StoreTestSuite) testWriteInvalidKey(t *testing.T) {
	store := suite.NewStore(t)

	for _, key := range []string{"", "/abs", "../escape", "a/../b", "a//b"} {
		err := store.WriteContent(testContext(), key, []byte("x"))
		assert.True(t, errors.Is(err, content.ErrInvalidKey), "key %q: got %v", key, err)
	}
}

func (suite *StoreTestSuite) testCallerBufferReuse(t *testing.T) {
	store := suite.NewStore(t)

	buf := []byte("original")
	mustWrite(t, store, "buf", buf)
	copy(buf, "mutated!")

	assertContent(t, store, "buf", []byte("original"))
}

func (suite *StoreTestSuite) testContentExists(t *testing.T) {
	store := suite.NewStore(t)

	exists, err := store.ContentExists(testContext(), "x")
	require.NoError(t, err)
	assert.False(t, exists)

	mustWrite(t, store, "x", []byte("1"))

	exists, err = store.ContentExists(testContext(), "x")
	require.NoError(t, err)
	assert.True(t, exists)
}

func (suite *StoreTestSuite) testDeleteIdempotent(t *testing.T) {
	store := suite.NewStore(t)

	mustWrite(t, store, "gone", []byte("1"))
	require.NoError(t, store.Delete(testContext(), "gone"))
	require.NoError(t, store.Delete(testContext(), "gone"))

	exists, err := store.ContentExists(testContext(), "gone")
	require.NoError(t, err)
	assert.False(t, exists)
}

func (suite *StoreTestSuite) testConcurrentWrites(t *testing.T) {
	store := suite.NewStore(t)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "file_" + string(rune('a'+i)) + ".json"
			assert.NoError(t, store.WriteContent(testContext(), key, []byte{byte(i)}))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		key := "file_" + string(rune('a'+i)) + ".json"
		assertContent(t, store, key, []byte{byte(i)})
	}
}

func (suite *StoreTestSuite) testLocation(t *testing.T) {
	store := suite.NewStore(t)

	loc := store.Location("a_metadata.json")
	assert.NotEmpty(t, loc)
	assert.Contains(t, loc, "a_metadata.json")
}
