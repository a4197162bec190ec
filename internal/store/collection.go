package store

import (
	"context"
	"maps"
	"slices"

	"github.com/flashdeck/flashdeck/internal/errors"
)

// Collection is a typed view of one collection document.
type Collection[T any] struct {
	store *Store
	name  string
	idOf  func(*T) string
}

// NewCollection creates a typed view of collection name. idOf returns the
// record's identifier, which is also its key in the document.
func NewCollection[T any](s *Store, name string, idOf func(*T) string) *Collection[T] {
	return &Collection[T]{store: s, name: name, idOf: idOf}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Store returns the store the collection lives in.
func (c *Collection[T]) Store() *Store {
	return c.store
}

// All returns every record keyed by id.
func (c *Collection[T]) All(ctx context.Context) map[string]T {
	var records map[string]T
	c.store.View(ctx, func(tx *Tx) {
		records = Load[T](tx, c.name)
	})
	return records
}

// Get returns the record with id, or ok=false if there is none.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, bool) {
	record, ok := c.All(ctx)[id]
	if !ok {
		return nil, false
	}
	return &record, true
}

// Filter returns the records matching pred, ordered by id. A nil pred matches all.
func (c *Collection[T]) Filter(ctx context.Context, pred func(*T) bool) []T {
	return FilterRecords(c.All(ctx), pred)
}

// Put inserts or replaces a record.
func (c *Collection[T]) Put(ctx context.Context, record *T) error {
	return c.store.Update(ctx, func(tx *Tx) error {
		records := Load[T](tx, c.name)
		records[c.idOf(record)] = *record
		return Stage(tx, c.name, records)
	})
}

// Delete removes the record with id. It reports whether the record existed.
func (c *Collection[T]) Delete(ctx context.Context, id string) (bool, error) {
	found := false
	err := c.store.Update(ctx, func(tx *Tx) error {
		records := Load[T](tx, c.name)
		if _, found = records[id]; !found {
			return nil
		}
		delete(records, id)
		return Stage(tx, c.name, records)
	})
	return found, err
}

// Update applies fn to the stored record and writes it back in one atomic
// read-modify-write. If fn returns an error the record is left unchanged.
// Returns a NOT_FOUND error when there is no record with id.
func (c *Collection[T]) Update(ctx context.Context, id string, fn func(*T) error) (*T, error) {
	return c.UpdateTx(ctx, id, func(_ *Tx, record *T) error { return fn(record) })
}

// UpdateTx is Update with access to the transaction, so fn can check other
// collections against the same snapshot it writes to.
func (c *Collection[T]) UpdateTx(ctx context.Context, id string, fn func(*Tx, *T) error) (*T, error) {
	var updated T
	err := c.store.Update(ctx, func(tx *Tx) error {
		records := Load[T](tx, c.name)
		record, ok := records[id]
		if !ok {
			return errors.NotFoundf("%s: %s not found", c.name, id)
		}
		if err := fn(tx, &record); err != nil {
			return err
		}
		records[id] = record
		updated = record
		return Stage(tx, c.name, records)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// FilterRecords returns the values of records matching pred, ordered by key.
func FilterRecords[T any](records map[string]T, pred func(*T) bool) []T {
	out := make([]T, 0)
	for _, id := range slices.Sorted(maps.Keys(records)) {
		record := records[id]
		if pred == nil || pred(&record) {
			out = append(out, record)
		}
	}
	return out
}
