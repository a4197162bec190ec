package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/errors"
)

// buildDeck creates a deck with two themes and three flashcards, one without a theme.
func buildDeck(t *testing.T, env *testEnv, sess *domain.Session) *domain.Deck {
	t.Helper()
	ctx := context.Background()

	deck, err := env.decks.CreateDeck(ctx, sess, CreateDeckInput{
		Title:       "Spanish",
		Description: "Animals and food",
		CoverImage:  imageURI("cover"),
		Tags:        []string{"language"},
	})
	require.NoError(t, err)

	animals, err := env.themes.CreateTheme(ctx, CreateThemeInput{DeckID: deck.ID, Title: "Animals"})
	require.NoError(t, err)
	food, err := env.themes.CreateTheme(ctx, CreateThemeInput{DeckID: deck.ID, Title: "Food"})
	require.NoError(t, err)

	inputs := []CreateFlashcardInput{
		{DeckID: deck.ID, ThemeID: animals.ID, Front: domain.Side{Text: "perro", Image: imageURI("dog")}, Back: domain.Side{Text: "dog", Audio: audioURI("woof")}},
		{DeckID: deck.ID, ThemeID: food.ID, Front: domain.Side{Text: "pan"}, Back: domain.Side{Text: "bread"}},
		{DeckID: deck.ID, Front: domain.Side{Text: "hola"}, Back: domain.Side{Text: "hello"}},
	}
	for _, input := range inputs {
		_, err := env.cards.CreateFlashcard(ctx, input)
		require.NoError(t, err)
	}
	_, err = env.cards.RecordReview(ctx, env.cards.ListFlashcardsByDeck(ctx, deck.ID)[0].ID, domain.DifficultyHard)
	require.NoError(t, err)
	return deck
}

func idSet[T any](items []T, idOf func(T) string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[idOf(item)] = true
	}
	return set
}

func TestExportImport_Isolation(t *testing.T) {
	ctx := context.Background()
	env := setupServices(t)
	user, sess := env.signUp(t, "ana", "ana@example.com")
	deck := buildDeck(t, env, sess)

	export, err := env.share.ExportDeck(ctx, deck.ID)
	require.NoError(t, err)
	assert.NotEqual(t, deck.ID, export.ID)
	assert.Equal(t, deck.ID, export.OriginalID)
	assert.Equal(t, imageURI("cover"), export.CoverImage, "media travels inline")
	require.Len(t, export.Themes, 2)
	require.Len(t, export.Flashcards, 3)
	for _, card := range export.Flashcards {
		assert.Empty(t, card.Front.ImageID)
		assert.Empty(t, card.Back.AudioID)
		assert.Zero(t, card.ReviewCount)
		assert.Equal(t, export.ID, card.DeckID)
	}

	newDeckID, err := env.share.ImportDeck(ctx, sess, export, user.ID)
	require.NoError(t, err)
	env.settle(t)

	srcThemes := env.themes.ListThemesByDeck(ctx, deck.ID)
	srcCards := env.cards.ListFlashcardsByDeck(ctx, deck.ID)
	dstThemes := env.themes.ListThemesByDeck(ctx, newDeckID)
	dstCards := env.cards.ListFlashcardsByDeck(ctx, newDeckID)
	require.Len(t, dstThemes, 2)
	require.Len(t, dstCards, 3)

	assert.NotEqual(t, deck.ID, newDeckID)
	themeIDs := idSet(srcThemes, func(th domain.Theme) string { return th.ID })
	for _, th := range dstThemes {
		assert.False(t, themeIDs[th.ID])
	}
	cardIDs := idSet(srcCards, func(c domain.Flashcard) string { return c.ID })
	dstThemeTitles := make(map[string]string)
	for _, th := range dstThemes {
		dstThemeTitles[th.ID] = th.Title
	}

	imported, _ := env.decks.GetDeck(ctx, newDeckID)
	assert.Equal(t, "Spanish", imported.Title)
	assert.Equal(t, "Animals and food", imported.Description)
	assert.True(t, imported.IsShared)
	assert.Equal(t, deck.ID, imported.OriginalID)
	assert.NotEmpty(t, imported.CoverImageID, "imported media is migrated into this profile")

	byText := make(map[string]domain.Flashcard)
	for _, card := range dstCards {
		assert.False(t, cardIDs[card.ID])
		byText[card.Front.Text] = card
	}
	assert.Equal(t, "Animals", dstThemeTitles[byText["perro"].ThemeID])
	assert.Equal(t, "Food", dstThemeTitles[byText["pan"].ThemeID])
	assert.Empty(t, byText["hola"].ThemeID)

	perro, ok := env.cards.HydrateFlashcard(ctx, byText["perro"].ID)
	require.True(t, ok)
	assert.Equal(t, imageURI("dog"), perro.Front.Image)
	assert.Equal(t, audioURI("woof"), perro.Back.Audio)

	// Source and copy own distinct blobs.
	srcPerro := env.cards.ListFlashcardsByDeck(ctx, deck.ID)
	for _, card := range srcPerro {
		if card.Front.Text == "perro" {
			assert.NotEqual(t, card.Front.ImageID, byText["perro"].Front.ImageID)
		}
	}
}

func TestExportDeck_NotFound(t *testing.T) {
	env := setupServices(t)
	_, err := env.share.ExportDeck(context.Background(), "deck-missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestImportDeck_Authorization(t *testing.T) {
	ctx := context.Background()
	env := setupServices(t)
	user, sess := env.signUp(t, "ana", "ana@example.com")
	other, _ := env.signUp(t, "bo", "bo@example.com")
	deck := buildDeck(t, env, sess)

	export, err := env.share.ExportDeck(ctx, deck.ID)
	require.NoError(t, err)

	_, err = env.share.ImportDeck(ctx, nil, export, user.ID)
	assert.ErrorIs(t, err, errors.ErrUnauthorized)

	_, err = env.share.ImportDeck(ctx, sess, export, other.ID)
	assert.ErrorIs(t, err, errors.ErrUnauthorized)

	_, err = env.share.ImportDeck(ctx, sess, nil, user.ID)
	assert.ErrorIs(t, err, errors.ErrValidation)

	broken := *export
	broken.OriginalID = ""
	_, err = env.share.ImportDeck(ctx, sess, &broken, user.ID)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestUpdateFromExport_ReplacesChildren(t *testing.T) {
	ctx := context.Background()
	env := setupServices(t)
	user, sess := env.signUp(t, "ana", "ana@example.com")
	deck := buildDeck(t, env, sess)

	first, err := env.share.ExportDeck(ctx, deck.ID)
	require.NoError(t, err)
	importedID, err := env.share.ImportDeck(ctx, sess, first, user.ID)
	require.NoError(t, err)
	env.settle(t)
	blobsAfterImport := env.blobCount(t)

	// The source deck changes: one theme and one card go away, a card is added.
	themes := env.themes.ListThemesByDeck(ctx, deck.ID)
	for _, th := range themes {
		if th.Title == "Food" {
			_, err := env.themes.DeleteTheme(ctx, th.ID)
			require.NoError(t, err)
		}
	}
	for _, card := range env.cards.ListFlashcardsByDeck(ctx, deck.ID) {
		if card.Front.Text == "pan" || card.Front.Text == "perro" {
			_, err := env.cards.DeleteFlashcard(ctx, card.ID)
			require.NoError(t, err)
		}
	}
	_, err = env.cards.CreateFlashcard(ctx, CreateFlashcardInput{DeckID: deck.ID, Front: domain.Side{Text: "gato"}, Back: domain.Side{Text: "cat"}})
	require.NoError(t, err)
	title := "Spanish 2"
	_, err = env.decks.UpdateDeck(ctx, sess, deck.ID, domain.DeckPatch{Title: &title})
	require.NoError(t, err)

	second, err := env.share.ExportDeck(ctx, deck.ID)
	require.NoError(t, err)

	ok, err := env.share.UpdateFromExport(ctx, sess, second)
	require.NoError(t, err)
	require.True(t, ok)
	env.settle(t)

	resynced, _ := env.decks.GetDeck(ctx, importedID)
	assert.Equal(t, "Spanish 2", resynced.Title)

	gotThemes := env.themes.ListThemesByDeck(ctx, importedID)
	require.Len(t, gotThemes, len(second.Themes))
	assert.Equal(t, "Animals", gotThemes[0].Title)

	gotCards := env.cards.ListFlashcardsByDeck(ctx, importedID)
	texts := make([]string, 0, len(gotCards))
	for _, card := range gotCards {
		texts = append(texts, card.Front.Text)
	}
	assert.ElementsMatch(t, []string{"hola", "gato"}, texts)
	assert.Less(t, env.blobCount(t), blobsAfterImport, "media of replaced cards is released")

	// Resync is idempotent in shape.
	ok, err = env.share.UpdateFromExport(ctx, sess, second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, env.cards.ListFlashcardsByDeck(ctx, importedID), 2)
	assert.Len(t, env.themes.ListThemesByDeck(ctx, importedID), 1)

	// Decks that were never imported are not resynced.
	stranger := *second
	stranger.OriginalID = "deck-unknown"
	ok, err = env.share.UpdateFromExport(ctx, sess, &stranger)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.share.UpdateFromExport(ctx, nil, second)
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
}

func TestExportDocument_EncodeDecode(t *testing.T) {
	ctx := context.Background()
	env := setupServices(t)
	user, sess := env.signUp(t, "ana", "ana@example.com")
	deck := buildDeck(t, env, sess)

	export, err := env.share.ExportDeck(ctx, deck.ID)
	require.NoError(t, err)

	data, err := EncodeExport(export)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"originalId"`)

	decoded, err := DecodeExport(data)
	require.NoError(t, err)
	_, err = env.share.ImportDeck(ctx, sess, decoded, user.ID)
	require.NoError(t, err)

	_, err = DecodeExport([]byte("{not json"))
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestShareCode_Expiry(t *testing.T) {
	ctx := context.Background()
	env := setupServices(t)
	_, sess := env.signUp(t, "ana", "ana@example.com")
	deck, err := env.decks.CreateDeck(ctx, sess, CreateDeckInput{Title: "Shared"})
	require.NoError(t, err)

	code, err := env.share.CreateShareCode(ctx, deck.ID, 2)
	require.NoError(t, err)
	assert.Regexp(t, `^share_`+deck.ID+`_\d+_2$`, code.Code)

	env.clock.Advance(2 * 24 * time.Hour)
	resolved, ok := env.share.ResolveShareCode(ctx, code.Code)
	require.True(t, ok, "valid up to and including the expiry instant")
	assert.Equal(t, deck.ID, resolved.ID)

	env.clock.Advance(time.Millisecond)
	_, ok = env.share.ResolveShareCode(ctx, code.Code)
	assert.False(t, ok)
	assert.Empty(t, env.share.ListShareCodes(ctx, deck.ID), "expired code is evicted on lookup")

	_, ok = env.share.ResolveShareCode(ctx, "share_unknown")
	assert.False(t, ok)
}

func TestShareCode_DefaultsAndRevoke(t *testing.T) {
	ctx := context.Background()
	env := setupServices(t, WithShareExpiryDays(3))
	_, sess := env.signUp(t, "ana", "ana@example.com")
	deck, err := env.decks.CreateDeck(ctx, sess, CreateDeckInput{Title: "Shared"})
	require.NoError(t, err)

	code, err := env.share.CreateShareCode(ctx, deck.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, code.ExpiryDays)
	assert.Equal(t, env.clock.Now().Add(72*time.Hour), code.ExpiresAt)

	_, err = env.share.CreateShareCode(ctx, "deck-missing", 1)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	ok, err := env.share.RevokeShareCode(ctx, code.Code)
	require.NoError(t, err)
	assert.True(t, ok)
	_, found := env.share.ResolveShareCode(ctx, code.Code)
	assert.False(t, found)

	// A code whose deck is gone resolves to nothing.
	code, err = env.share.CreateShareCode(ctx, deck.ID, 1)
	require.NoError(t, err)
	_, err = env.records.Decks.Delete(ctx, deck.ID)
	require.NoError(t, err)
	_, found = env.share.ResolveShareCode(ctx, code.Code)
	assert.False(t, found)
	_, stillStored := env.records.ShareCodes.Get(ctx, code.Code)
	assert.False(t, stillStored)
}

func TestShareCode_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	env := setupServices(t)
	_, sess := env.signUp(t, "ana", "ana@example.com")
	deck, err := env.decks.CreateDeck(ctx, sess, CreateDeckInput{Title: "Shared"})
	require.NoError(t, err)
	other, err := env.decks.CreateDeck(ctx, sess, CreateDeckInput{Title: "Gone"})
	require.NoError(t, err)

	short, err := env.share.CreateShareCode(ctx, deck.ID, 1)
	require.NoError(t, err)
	long, err := env.share.CreateShareCode(ctx, deck.ID, 5)
	require.NoError(t, err)
	dangling, err := env.share.CreateShareCode(ctx, other.ID, 5)
	require.NoError(t, err)
	_, err = env.records.Decks.Delete(ctx, other.ID)
	require.NoError(t, err)

	env.clock.Advance(2 * 24 * time.Hour)
	removed, err := env.share.PurgeExpiredShareCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	codes := env.records.ShareCodes.All(ctx)
	assert.Contains(t, codes, long.Code)
	assert.NotContains(t, codes, short.Code)
	assert.NotContains(t, codes, dangling.Code)

	removed, err = env.share.PurgeExpiredShareCodes(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
