package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashdeck/flashdeck/internal/errors"
)

type note struct {
	ID    string `json:"id"`
	Body  string `json:"body"`
	Count int    `json:"count"`
}

func noteID(n *note) string { return n.ID }

// backends returns a constructor for every Backend implementation.
func backends(t *testing.T) map[string]func(t *testing.T) Backend {
	t.Helper()
	return map[string]func(t *testing.T) Backend{
		"memory": func(t *testing.T) Backend {
			return NewMemoryBackend()
		},
		"badger": func(t *testing.T) Backend {
			b, err := OpenBadger(t.TempDir(), slog.New(slog.DiscardHandler))
			require.NoError(t, err)
			return b
		},
		"redis": func(t *testing.T) Backend {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return NewRedisBackend(client, "test:")
		},
	}
}

func setupStore(t *testing.T, b Backend, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	s := New(b, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Backends(t *testing.T) {
	for name, newBackend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := setupStore(t, newBackend(t))

			t.Run("missing collection is empty", func(t *testing.T) {
				got := s.Get(ctx, "decks")
				assert.NotNil(t, got)
				assert.Empty(t, got)
			})

			t.Run("set then get", func(t *testing.T) {
				ok := s.Set(ctx, "notes", map[string]note{"n1": {ID: "n1", Body: "hello"}})
				require.True(t, ok)

				got := s.Get(ctx, "notes")
				require.Contains(t, got, "n1")

				var n note
				require.NoError(t, json.Unmarshal(got["n1"], &n))
				assert.Equal(t, "hello", n.Body)
			})

			t.Run("update writes several collections", func(t *testing.T) {
				err := s.Update(ctx, func(tx *Tx) error {
					if err := Stage(tx, "a", map[string]note{"x": {ID: "x"}}); err != nil {
						return err
					}
					return Stage(tx, "b", map[string]note{"y": {ID: "y"}})
				})
				require.NoError(t, err)
				assert.Len(t, s.Get(ctx, "a"), 1)
				assert.Len(t, s.Get(ctx, "b"), 1)
			})

			t.Run("usage", func(t *testing.T) {
				usage, err := s.Usage(ctx)
				require.NoError(t, err)
				assert.Contains(t, usage, "notes")
				assert.Positive(t, usage["notes"])
			})
		})
	}
}

func TestStore_UpdateErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t, NewMemoryBackend())
	require.True(t, s.Set(ctx, "notes", map[string]note{"n1": {ID: "n1"}}))

	boom := errors.Conflict("boom")
	err := s.Update(ctx, func(tx *Tx) error {
		records := Load[note](tx, "notes")
		delete(records, "n1")
		if err := Stage(tx, "notes", records); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, errors.ErrConflict)
	assert.Len(t, s.Get(ctx, "notes"), 1)
}

func TestStore_LoadSeesStagedChanges(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t, NewMemoryBackend())

	err := s.Update(ctx, func(tx *Tx) error {
		require.NoError(t, Stage(tx, "notes", map[string]note{"n1": {ID: "n1", Body: "staged"}}))
		got := Load[note](tx, "notes")
		assert.Equal(t, "staged", got["n1"].Body)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_Quota(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t, NewMemoryBackend(), WithQuota(64))

	assert.True(t, s.Set(ctx, "notes", map[string]note{"a": {ID: "a"}}))

	big := map[string]note{"b": {ID: "b", Body: string(make([]byte, 128))}}
	assert.False(t, s.Set(ctx, "notes", big))

	// The rejected write left the previous document in place.
	assert.Contains(t, s.Get(ctx, "notes"), "a")

	err := s.Update(ctx, func(tx *Tx) error {
		return Stage(tx, "notes", big)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStorageFailure)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	var qerr *QuotaError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "notes", qerr.Collection)
	assert.Equal(t, 64, qerr.Quota)
}

func TestStore_CorruptDocumentReadsEmpty(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Write(ctx, map[string][]byte{"notes": []byte("{not json")}))
	s := setupStore(t, b)

	assert.Empty(t, s.Get(ctx, "notes"))
}

func TestStore_SetUnserializable(t *testing.T) {
	s := setupStore(t, NewMemoryBackend())
	assert.False(t, s.Set(context.Background(), "bad", map[string]any{"x": make(chan int)}))
}

func TestStore_ClosedBackendFailsSoft(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	s := New(b, WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, s.Close())

	assert.Empty(t, s.Get(ctx, "notes"))
	assert.False(t, s.Set(ctx, "notes", map[string]note{}))
}

func TestCollection_CRUD(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t, NewMemoryBackend())
	notes := NewCollection(s, "notes", noteID)

	_, ok := notes.Get(ctx, "n1")
	assert.False(t, ok)

	require.NoError(t, notes.Put(ctx, &note{ID: "n2", Body: "second"}))
	require.NoError(t, notes.Put(ctx, &note{ID: "n1", Body: "first"}))

	got, ok := notes.Get(ctx, "n1")
	require.True(t, ok)
	assert.Equal(t, "first", got.Body)

	all := notes.Filter(ctx, nil)
	require.Len(t, all, 2)
	assert.Equal(t, "n1", all[0].ID, "ordered by id")

	matching := notes.Filter(ctx, func(n *note) bool { return n.Body == "second" })
	require.Len(t, matching, 1)
	assert.Equal(t, "n2", matching[0].ID)

	updated, err := notes.Update(ctx, "n1", func(n *note) error {
		n.Body = "edited"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Body)

	_, err = notes.Update(ctx, "missing", func(*note) error { return nil })
	assert.ErrorIs(t, err, errors.ErrNotFound)

	found, err := notes.Delete(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = notes.Delete(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, found)

	assert.Len(t, notes.All(ctx), 1)
}

func TestCollection_UpdateTxSeesOtherCollections(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t, NewMemoryBackend())
	notes := NewCollection(s, "notes", noteID)
	tags := NewCollection(s, "tags", noteID)
	require.NoError(t, notes.Put(ctx, &note{ID: "n1", Body: "body"}))
	require.NoError(t, tags.Put(ctx, &note{ID: "t1", Body: "red"}))

	updated, err := notes.UpdateTx(ctx, "n1", func(tx *Tx, n *note) error {
		tag, ok := Load[note](tx, "tags")["t1"]
		if !ok {
			return errors.NotFound("tag missing")
		}
		n.Body = tag.Body
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "red", updated.Body)

	_, err = notes.UpdateTx(ctx, "n1", func(tx *Tx, n *note) error {
		if _, ok := Load[note](tx, "tags")["t2"]; !ok {
			return errors.NotFound("tag missing")
		}
		return nil
	})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCollection_UpdateFnErrorLeavesRecord(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t, NewMemoryBackend())
	notes := NewCollection(s, "notes", noteID)
	require.NoError(t, notes.Put(ctx, &note{ID: "n1", Body: "keep"}))

	_, err := notes.Update(ctx, "n1", func(n *note) error {
		n.Body = "lost"
		return errors.Validation("nope")
	})
	assert.ErrorIs(t, err, errors.ErrValidation)

	got, _ := notes.Get(ctx, "n1")
	assert.Equal(t, "keep", got.Body)
}

func TestCollection_ConcurrentUpdatesAreNotLost(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t, NewMemoryBackend())
	notes := NewCollection(s, "notes", noteID)
	require.NoError(t, notes.Put(ctx, &note{ID: "n1"}))

	const workers = 20
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := notes.Update(ctx, "n1", func(n *note) error {
				n.Count++
				return nil
			})
			assert.NoError(t, err, fmt.Sprintf("worker %d", i))
		}()
	}
	wg.Wait()

	got, _ := notes.Get(ctx, "n1")
	assert.Equal(t, workers, got.Count)
}
