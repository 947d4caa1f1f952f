// Package badger implements a persistent record index on BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/emingest/pkg/store/index"
)

// BadgerIndexConfig configures the BadgerDB index.
type BadgerIndexConfig struct {
	// DBPath is the directory where BadgerDB keeps its files.
	DBPath string `mapstructure:"path"`

	// InMemory runs BadgerDB without touching disk. DBPath is ignored.
	InMemory bool `mapstructure:"-"`
}

// BadgerIndex implements index.Index using BadgerDB.
//
// BadgerDB transactions provide the isolation; no additional locking is
// needed.
type BadgerIndex struct {
	db *badgerdb.DB
}

// NewBadgerIndex opens (or creates) the database at cfg.DBPath.
func NewBadgerIndex(ctx context.Context, cfg BadgerIndexConfig) (*BadgerIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("badger index path is required")
		}
		opts = badgerdb.DefaultOptions(cfg.DBPath)
	}
	opts = opts.WithLoggingLevel(badgerdb.WARNING)
	opts = opts.WithCompression(options.None) // entries are a few hundred bytes

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger index: %w", err)
	}

	return &BadgerIndex{db: db}, nil
}

func (b *BadgerIndex) Put(ctx context.Context, e index.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode index entry: %w", err)
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(keyRecord(e.EntryID, e.Key), val)
	})
}

func (b *BadgerIndex) Get(ctx context.Context, entryID, key string) (index.Entry, error) {
	if err := ctx.Err(); err != nil {
		return index.Entry{}, err
	}

	var e index.Entry
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyRecord(entryID, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return index.Entry{}, fmt.Errorf("%s/%s: %w", entryID, key, index.ErrNotFound)
	}
	if err != nil {
		return index.Entry{}, fmt.Errorf("failed to read index entry: %w", err)
	}
	return e, nil
}

func (b *BadgerIndex) ListByStatus(ctx context.Context, entryID, status string) ([]index.Entry, error) {
	var out []index.Entry

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = keyRecordPrefix(entryID)

		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		for it.Rewind(); it.Valid(); it.Next() {
			// Check context periodically
			if n%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			n++

			var e index.Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("failed to decode index entry %q: %w", it.Item().Key(), err)
			}
			if e.Status == status {
				out = append(out, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close flushes and closes the database.
func (b *BadgerIndex) Close() error {
	return b.db.Close()
}
