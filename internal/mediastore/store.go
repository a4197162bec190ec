package mediastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/flashdeck/flashdeck/internal/logger"
)

// Store is the boundary between domain code and a media Backend. Every
// failure is logged and turned into a sentinel (false or nil); nothing is
// returned as an error to the caller.
type Store struct {
	backend Backend
	logger  *slog.Logger
	cache   *ristretto.Cache[string, *Blob]

	// gens counts writes and deletes per cache key. A read only fills the
	// cache if no write or delete happened to its key while it was loading.
	gensMu sync.Mutex
	gens   map[string]uint64

	prefetches sync.WaitGroup
}

// Option configures a Store.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	cacheBytes int64
}

// WithLogger sets the logger for absorbed failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCache enables a read-through cache holding up to maxBytes of payload.
func WithCache(maxBytes int64) Option {
	return func(o *options) { o.cacheBytes = maxBytes }
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) (*Store, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{backend: backend, logger: logger.OrDiscard(o.logger), gens: make(map[string]uint64)}

	if o.cacheBytes > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, *Blob]{
			// Roughly 10x the number of blobs expected to fit.
			NumCounters: max(o.cacheBytes/1024, 1000),
			MaxCost:     o.cacheBytes,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("create media cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

func cacheKey(p Partition, id string) string {
	return string(p) + "/" + id
}

func (s *Store) generation(key string) uint64 {
	s.gensMu.Lock()
	defer s.gensMu.Unlock()
	return s.gens[key]
}

// invalidate drops key from the cache and fences out reads still in flight.
func (s *Store) invalidate(key string) {
	s.gensMu.Lock()
	defer s.gensMu.Unlock()
	s.gens[key]++
	s.cache.Del(key)
}

// fill caches blob unless key was invalidated since gen was read.
func (s *Store) fill(key string, gen uint64, blob *Blob) {
	s.gensMu.Lock()
	defer s.gensMu.Unlock()
	if s.gens[key] != gen {
		return
	}
	s.cache.Set(key, blob, int64(max(blob.Size(), 1)))
}

// Store upserts a blob. It returns false on failure.
func (s *Store) Store(ctx context.Context, p Partition, id string, blob Blob) bool {
	if err := s.backend.Put(ctx, p, id, blob); err != nil {
		s.logger.Error("failed to store media", "partition", p, "media_id", id, "error", err)
		return false
	}
	if s.cache != nil {
		s.invalidate(cacheKey(p, id))
	}
	return true
}

// Retrieve returns the blob stored under id, or nil when it is missing or
// cannot be read.
func (s *Store) Retrieve(ctx context.Context, p Partition, id string) *Blob {
	key := cacheKey(p, id)
	var gen uint64
	if s.cache != nil {
		if blob, ok := s.cache.Get(key); ok {
			return blob
		}
		gen = s.generation(key)
	}

	blob, err := s.backend.Get(ctx, p, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("media not found", "partition", p, "media_id", id)
		} else {
			s.logger.Error("failed to retrieve media", "partition", p, "media_id", id, "error", err)
		}
		return nil
	}

	if s.cache != nil {
		s.fill(key, gen, blob)
	}
	return blob
}

// Remove deletes a blob. Removing a missing blob succeeds.
func (s *Store) Remove(ctx context.Context, p Partition, id string) bool {
	if s.cache != nil {
		s.invalidate(cacheKey(p, id))
	}
	err := s.backend.Delete(ctx, p, id)
	if s.cache != nil {
		// A read that started before the delete may still be loading.
		s.invalidate(cacheKey(p, id))
	}
	if err != nil {
		s.logger.Error("failed to remove media", "partition", p, "media_id", id, "error", err)
		return false
	}
	return true
}

// Exists reports whether a blob is stored under id. Lookup failures report false.
func (s *Store) Exists(ctx context.Context, p Partition, id string) bool {
	ok, err := s.backend.Exists(ctx, p, id)
	if err != nil {
		s.logger.Error("failed to check media", "partition", p, "media_id", id, "error", err)
		return false
	}
	return ok
}

// List returns every id in p. ok is false when the listing failed.
func (s *Store) List(ctx context.Context, p Partition) (ids []string, ok bool) {
	ids, err := s.backend.List(ctx, p)
	if err != nil {
		s.logger.Error("failed to list media", "partition", p, "error", err)
		return nil, false
	}
	return ids, true
}

// Cached returns a blob only if it is already in the cache.
func (s *Store) Cached(p Partition, id string) (*Blob, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(cacheKey(p, id))
}

// Prefetch loads a blob into the cache in the background. It is a no-op
// without a cache.
func (s *Store) Prefetch(p Partition, id string) {
	if s.cache == nil || id == "" {
		return
	}
	if _, ok := s.cache.Get(cacheKey(p, id)); ok {
		return
	}

	s.prefetches.Add(1)
	go func() {
		defer s.prefetches.Done()
		s.Retrieve(context.Background(), p, id)
	}()
}

// WaitPrefetch blocks until every started prefetch has finished and the cache
// has applied its pending writes.
func (s *Store) WaitPrefetch() {
	s.prefetches.Wait()
	if s.cache != nil {
		s.cache.Wait()
	}
}

// Close waits for prefetches and closes the cache and backend.
func (s *Store) Close() error {
	s.prefetches.Wait()
	if s.cache != nil {
		s.cache.Close()
	}
	return s.backend.Close()
}
