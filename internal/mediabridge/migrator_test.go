package mediabridge

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashdeck/flashdeck/internal/datauri"
	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/mediastore"
)

func seedInlineCards(t *testing.T, f *fixture, n int) []domain.Flashcard {
	t.Helper()
	ctx := context.Background()
	cards := make([]domain.Flashcard, 0, n)
	for i := range n {
		card := domain.Flashcard{
			ID:     "card-" + string(rune('a'+i)),
			DeckID: "deck-1",
			Front:  domain.Side{Text: "front", Image: imageURI("img-" + string(rune('a'+i)))},
			Back:   domain.Side{Text: "back", Audio: audioURI("audio-" + string(rune('a'+i)))},
		}
		require.NoError(t, f.cards.Put(ctx, &card))
		cards = append(cards, card)
	}
	return cards
}

func TestMigrator_Scan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedInlineCards(t, f, 3)
	require.NoError(t, f.cards.Put(ctx, &domain.Flashcard{ID: "plain", Front: domain.Side{Text: "no media"}}))
	require.NoError(t, f.decks.Put(ctx, &domain.Deck{ID: "deck-1", CoverImageID: "img_1_gone0000"}))

	report := f.migrator().Scan(ctx)
	assert.Equal(t, Stats{Records: 4, InlineOnly: 3}, report.Collections[domain.CollectionFlashcards])
	assert.Equal(t, Stats{Records: 1, Referenced: 1, Dangling: 1}, report.Collections[domain.CollectionDecks])
	assert.Equal(t, 5, report.Total.Records)
	assert.Equal(t, 3, report.Total.InlineOnly)
}

func TestMigrator_MigrateAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	m := f.migrator()
	originals := seedInlineCards(t, f, 4)

	n, err := m.MigrateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = m.MigrateAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	report := m.Scan(ctx)
	stats := report.Collections[domain.CollectionFlashcards]
	assert.Zero(t, stats.InlineOnly)
	assert.Equal(t, 8, stats.Referenced)
	assert.Equal(t, 8, stats.Dual, "batch migration keeps inline copies")

	for _, original := range originals {
		stored, ok := f.cards.Get(ctx, original.ID)
		require.True(t, ok)
		assert.Equal(t, original.Front.Image, stored.Front.Image)

		blob := f.media.Retrieve(ctx, mediastore.Images, stored.Front.ImageID)
		require.NotNil(t, blob)
		_, want, err := datauri.Decode(original.Front.Image)
		require.NoError(t, err)
		assert.Equal(t, want, blob.Data)

		blob = f.media.Retrieve(ctx, mediastore.Audio, stored.Back.AudioID)
		require.NotNil(t, blob)
		_, want, err = datauri.Decode(original.Back.Audio)
		require.NoError(t, err)
		assert.Equal(t, want, blob.Data)
	}
}

func TestMigrator_CleanupInline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	m := f.migrator()
	originals := seedInlineCards(t, f, 2)

	_, err := m.MigrateAll(ctx)
	require.NoError(t, err)

	// A dangling reference keeps its inline copy.
	require.NoError(t, f.cards.Put(ctx, &domain.Flashcard{
		ID:    "dangling",
		Front: domain.Side{Image: imageURI("kept"), ImageID: "img_1_gone0000"},
	}))

	n, err := m.CleanupInline(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	for _, original := range originals {
		stored, _ := f.cards.Get(ctx, original.ID)
		assert.Empty(t, stored.Front.Image)
		assert.Empty(t, stored.Back.Audio)

		hydrated := f.bridge.HydrateSide(ctx, stored.Front)
		assert.Equal(t, original.Front.Image, hydrated.Image)
	}

	dangling, _ := f.cards.Get(ctx, "dangling")
	assert.Equal(t, imageURI("kept"), dangling.Front.Image)

	n, err = m.CleanupInline(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMigrator_CollectGarbage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	now := epoch.Add(time.Hour)
	m := f.migrator(WithGCGrace(10*time.Minute), WithMigratorClock(func() time.Time { return now }))

	seedInlineCards(t, f, 1)
	_, err := m.MigrateAll(ctx)
	require.NoError(t, err)

	oldOrphan := "img_" + strconv.FormatInt(epoch.UnixMilli(), 10) + "_orphan01"
	freshOrphan := "img_" + strconv.FormatInt(now.UnixMilli(), 10) + "_orphan02"
	foreign := "not-a-media-id"
	for _, orphan := range []string{oldOrphan, freshOrphan, foreign} {
		require.True(t, f.media.Store(ctx, mediastore.Images, orphan, mediastore.Blob{Data: []byte("x")}))
	}

	n, err := m.CollectGarbage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.False(t, f.media.Exists(ctx, mediastore.Images, oldOrphan))
	assert.False(t, f.media.Exists(ctx, mediastore.Images, foreign))
	assert.True(t, f.media.Exists(ctx, mediastore.Images, freshOrphan), "blobs inside the grace window survive")

	card, _ := f.cards.Get(ctx, "card-a")
	assert.True(t, f.media.Exists(ctx, mediastore.Images, card.Front.ImageID))
	assert.True(t, f.media.Exists(ctx, mediastore.Audio, card.Back.AudioID))
}
