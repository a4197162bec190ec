package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// badgerKeyPrefix namespaces collection documents inside the database.
const badgerKeyPrefix = "collection:"

// BadgerBackend stores each collection document as one badger key.
type BadgerBackend struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadger opens (or creates) a badger database at path.
func OpenBadger(path string, logger *slog.Logger) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Every collection write is durable before Set returns
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger != nil {
		logger.Info("Badger record store opened", "path", path)
	}

	return &BadgerBackend{db: db, logger: logger}, nil
}

// OpenBadgerInMemory opens a badger database that never touches disk.
func OpenBadgerInMemory() (*BadgerBackend, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger db: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

// Read implements Backend.
func (b *BadgerBackend) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return data, true, nil
}

// Write implements Backend. All documents commit in one badger transaction.
func (b *BadgerBackend) Write(ctx context.Context, docs map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		for key, data := range docs {
			k := []byte(badgerKeyPrefix + key)
			if data == nil {
				if err := txn.Delete(k); err != nil {
					return fmt.Errorf("delete %s: %w", key, err)
				}
				continue
			}
			if err := txn.Set(k, data); err != nil {
				return fmt.Errorf("write %s: %w", key, err)
			}
		}
		return nil
	})
}

// Keys implements Backend.
func (b *BadgerBackend) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), badgerKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Close implements Backend.
func (b *BadgerBackend) Close() error {
	if b.logger != nil {
		b.logger.Info("Closing badger record store")
	}
	return b.db.Close()
}
