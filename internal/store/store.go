// Package store is the synchronous record store. Each collection (users,
// decks, ...) is persisted as one JSON document mapping record id to record.
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/flashdeck/flashdeck/internal/errors"
	"github.com/flashdeck/flashdeck/internal/logger"
)

// Store serializes access to a Backend. Every read-modify-write cycle runs
// under one lock, so a collection document is never written from a stale read.
type Store struct {
	backend Backend
	logger  *slog.Logger
	quota   int

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for absorbed failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithQuota caps the serialized size of a single collection document.
// Zero disables the check.
func WithQuota(bytes int) Option {
	return func(s *Store) { s.quota = bytes }
}

// New creates a Store on top of backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrDiscard(s.logger)
	return s
}

// Close closes the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

// Get returns the records of a collection keyed by id. It never fails: a
// missing, unreadable or corrupt document reads as an empty collection and the
// cause is logged.
func (s *Store) Get(ctx context.Context, name string) map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.begin(ctx)
	return Load[json.RawMessage](tx, name)
}

// Set replaces a whole collection with records, which must marshal to a JSON
// object keyed by id. It returns false, after logging, when the document cannot
// be serialized, exceeds the quota, or the backend rejects the write.
func (s *Store) Set(ctx context.Context, name string, records any) bool {
	data, err := json.Marshal(records)
	if err != nil {
		s.logger.Error("failed to serialize collection", "collection", name, "error", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.begin(ctx)
	tx.staged[name] = data
	return tx.commit() == nil
}

// Update runs fn inside a transaction and writes every staged collection in
// one atomic backend write. If fn returns an error nothing is written and the
// error is returned unchanged. A failed write returns a STORAGE_FAILURE error.
//
// fn runs under the store lock and must not call other Store methods.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.begin(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// View runs fn against a consistent snapshot. Staged changes are discarded.
func (s *Store) View(ctx context.Context, fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.begin(ctx))
}

// Usage reports the serialized size in bytes of each stored collection.
func (s *Store) Usage(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageFailure, "list collections")
	}

	usage := make(map[string]int, len(keys))
	for _, key := range keys {
		data, ok, err := s.backend.Read(ctx, key)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeStorageFailure, "read collection %s", key)
		}
		if ok {
			usage[key] = len(data)
		}
	}
	return usage, nil
}

// Quota returns the per-document quota in bytes, zero when unlimited.
func (s *Store) Quota() int {
	return s.quota
}

func (s *Store) begin(ctx context.Context) *Tx {
	return &Tx{ctx: ctx, store: s, staged: make(map[string][]byte)}
}
