package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/service"
)

var _ service.DeckIndex = (*SearchIndex)(nil)

// setupTestIndex creates a temporary search index for testing.
func setupTestIndex(t *testing.T) *SearchIndex {
	t.Helper()

	index, err := NewSearchIndex(Options{DataPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	return index
}

func testDeck(id, title string, tags ...string) *domain.Deck {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Deck{
		Timestamps:  domain.Timestamps{CreatedAt: now, UpdatedAt: now},
		ID:          id,
		Title:       title,
		Tags:        tags,
		AuthorID:    "user-1",
		AuthorName:  "Ana",
		IsPublic:    true,
		Description: "",
	}
}

func TestNewSearchIndex(t *testing.T) {
	index := setupTestIndex(t)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestSearchIndex_IndexDeck(t *testing.T) {
	index := setupTestIndex(t)

	require.NoError(t, index.IndexDeck(testDeck("deck-1", "Spanish Verbs")))
	// Reindexing replaces the document.
	require.NoError(t, index.IndexDeck(testDeck("deck-1", "Spanish Verbs II")))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestSearchIndex_DeleteDeck(t *testing.T) {
	index := setupTestIndex(t)

	require.NoError(t, index.IndexDeck(testDeck("deck-1", "Spanish Verbs")))
	require.NoError(t, index.IndexDeck(testDeck("deck-2", "French Nouns")))

	require.NoError(t, index.DeleteDeck("deck-1"))
	require.NoError(t, index.DeleteDeck("missing"))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestSearchIndex_SearchDecks(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	german := testDeck("deck-3", "German Cases")
	german.Description = "Practice for spanish speakers"

	require.NoError(t, index.IndexDeck(testDeck("deck-1", "Spanish Verbs", "Grammar")))
	require.NoError(t, index.IndexDeck(testDeck("deck-2", "Kanji Basics", "JLPT N5")))
	require.NoError(t, index.IndexDeck(german))

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "stemmed title", query: "verb", want: []string{"deck-1"}},
		{name: "typo", query: "kanjo", want: []string{"deck-2"}},
		{name: "prefix", query: "kan", want: []string{"deck-2"}},
		{name: "tag key", query: "jlpt n5", want: []string{"deck-2"}},
		{name: "no match", query: "quantum", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := index.SearchDecks(ctx, tt.query, 10)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids)
		})
	}

	// Title matches outrank description matches.
	ids, err := index.SearchDecks(ctx, "spanish", 10)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "deck-1", ids[0])
}

func TestSearchIndex_Search_Filters(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	private := testDeck("deck-2", "Spanish Nouns", "grammar")
	private.IsPublic = false
	private.AuthorID = "user-2"

	require.NoError(t, index.IndexDeck(testDeck("deck-1", "Spanish Verbs", "Grammar", "verbs")))
	require.NoError(t, index.IndexDeck(private))

	result, err := index.Search(ctx, SearchParams{Query: "spanish", PublicOnly: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "deck-1", result.Hits[0].ID)
	assert.Equal(t, "Spanish Verbs", result.Hits[0].Title)
	assert.Equal(t, "Ana", result.Hits[0].AuthorName)

	result, err = index.Search(ctx, SearchParams{Tags: []string{"GRAMMAR"}, AuthorID: "user-2", Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "deck-2", result.Hits[0].ID)
}

func TestSearchIndex_Search_TagFacets(t *testing.T) {
	index := setupTestIndex(t)

	require.NoError(t, index.IndexDeck(testDeck("deck-1", "Spanish Verbs", "Grammar", "Verbs")))
	require.NoError(t, index.IndexDeck(testDeck("deck-2", "Spanish Nouns", "grammar")))

	result, err := index.Search(context.Background(), SearchParams{IncludeFacets: true, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.Total)

	counts := map[string]int{}
	for _, f := range result.Tags {
		counts[f.Value] = f.Count
	}
	assert.Equal(t, map[string]int{"grammar": 2, "verbs": 1}, counts)
}

func TestSearchIndex_IndexDecks_LargeBatch(t *testing.T) {
	index := setupTestIndex(t)

	decks := make([]domain.Deck, 1200)
	for i := range decks {
		decks[i] = *testDeck(fmt.Sprintf("deck-%04d", i), fmt.Sprintf("Deck %d", i))
	}
	require.NoError(t, index.IndexDecks(decks))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1200), count)
}

func TestSearchIndex_Rebuild(t *testing.T) {
	index := setupTestIndex(t)

	require.NoError(t, index.IndexDeck(testDeck("deck-1", "Spanish Verbs")))
	require.NoError(t, index.Rebuild())

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestSearchIndex_Persistence(t *testing.T) {
	dir := t.TempDir()

	index1, err := NewSearchIndex(Options{DataPath: dir})
	require.NoError(t, err)
	require.NoError(t, index1.IndexDeck(testDeck("deck-1", "Spanish Verbs")))
	require.NoError(t, index1.Close())

	index2, err := NewSearchIndex(Options{DataPath: dir})
	require.NoError(t, err)
	defer index2.Close()

	ids, err := index2.SearchDecks(context.Background(), "spanish", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"deck-1"}, ids)
}

func TestSearchIndex_MappingVersionChange(t *testing.T) {
	dir := t.TempDir()

	index1, err := NewSearchIndex(Options{DataPath: dir})
	require.NoError(t, err)
	require.NoError(t, index1.IndexDeck(testDeck("deck-1", "Spanish Verbs")))
	require.NoError(t, index1.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "decks.version"), []byte("0"), 0o644))

	index2, err := NewSearchIndex(Options{DataPath: dir})
	require.NoError(t, err)
	defer index2.Close()

	count, err := index2.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)

	version, err := os.ReadFile(filepath.Join(dir, "decks.version"))
	require.NoError(t, err)
	assert.Equal(t, mappingVersion, string(version))
}

func TestDeckToDocument(t *testing.T) {
	deck := testDeck("deck-1", "Spanish Verbs", "Spanish Verbs", "Café")
	deck.CoverImage = "data:image/png;base64,AAAA"

	doc := DeckToDocument(deck)
	assert.Equal(t, []string{"spanish-verbs", "cafe"}, doc.Tags)
	assert.Equal(t, deck.CreatedAt.UnixMilli(), doc.CreatedAt)

	m := doc.ToMap()
	assert.Equal(t, "Spanish Verbs", m["title"])
	assert.Equal(t, true, m["is_public"])
	assert.NotContains(t, m, "description")
	for _, v := range m {
		assert.NotEqual(t, deck.CoverImage, v)
	}
}
