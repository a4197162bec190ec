package service

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/errors"
	"github.com/flashdeck/flashdeck/internal/id"
	"github.com/flashdeck/flashdeck/internal/store"
	"github.com/flashdeck/flashdeck/internal/util"
)

// hydrateParallelism bounds concurrent media reads while exporting.
const hydrateParallelism = 4

// ShareService exports, imports and shares decks.
type ShareService struct {
	config
	records *Records
	media   *Media
}

// NewShareService creates a new share service.
func NewShareService(records *Records, media *Media, opts ...Option) *ShareService {
	return &ShareService{config: newConfig(opts), records: records, media: media}
}

// ExportDeck snapshots a deck with its themes and flashcards. The snapshot
// gets fresh identifiers and carries all media inline, so it can be imported
// into an unrelated profile. Pending media work is settled first.
func (s *ShareService) ExportDeck(ctx context.Context, deckID string) (*domain.SharedDeckExport, error) {
	if err := s.media.Settle(ctx); err != nil {
		return nil, err
	}

	deck, ok := s.records.Decks.Get(ctx, deckID)
	if !ok {
		return nil, errors.NotFoundf("deck %s not found", deckID)
	}
	themes := s.records.Themes.Filter(ctx, func(t *domain.Theme) bool { return t.DeckID == deckID })
	cards := s.records.Flashcards.Filter(ctx, func(f *domain.Flashcard) bool { return f.DeckID == deckID })

	bridge := s.media.bridge
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateParallelism)
	g.Go(func() error {
		bridge.Hydrate(gctx, deck)
		return nil
	})
	for i := range themes {
		g.Go(func() error {
			bridge.Hydrate(gctx, &themes[i])
			return nil
		})
	}
	for i := range cards {
		g.Go(func() error {
			bridge.Hydrate(gctx, &cards[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	exportID, err := id.Generate("deck")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate export ID")
	}

	now := s.now()
	export := &domain.SharedDeckExport{
		ID:          exportID,
		OriginalID:  deck.ID,
		Title:       deck.Title,
		Description: deck.Description,
		CoverImage:  deck.CoverImage,
		Tags:        slices.Clone(deck.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	export.Themes, export.Flashcards, err = rebuildChildren(themes, cards, exportID, now)
	if err != nil {
		return nil, err
	}

	s.logger.Info("deck exported",
		"deck_id", deckID,
		"export_id", exportID,
		"themes", len(export.Themes),
		"flashcards", len(export.Flashcards),
	)
	return export, nil
}

// ImportDeck creates a copy of an export owned by userID, who must be the
// session's user. It returns the new deck's id.
func (s *ShareService) ImportDeck(ctx context.Context, sess *domain.Session, export *domain.SharedDeckExport, userID string) (string, error) {
	if !sess.Owns(userID) {
		return "", errors.Unauthorized("can only import decks for the signed-in user")
	}
	if err := s.validateExport(export); err != nil {
		return "", err
	}

	owner, ok := s.records.Users.Get(ctx, userID)
	if !ok {
		return "", errors.NotFoundf("user %s not found", userID)
	}

	deckID, err := id.Generate("deck")
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "generate deck ID")
	}

	now := s.now()
	deck := domain.Deck{
		ID:          deckID,
		Title:       strings.TrimSpace(export.Title),
		Description: export.Description,
		CoverImage:  export.CoverImage,
		Tags:        util.NormalizeTags(export.Tags),
		AuthorID:    owner.ID,
		AuthorName:  owner.Username,
		IsShared:    true,
		OriginalID:  export.OriginalID,
	}
	deck.InitTimestamps(now)

	themes, cards, err := rebuildChildren(export.Themes, export.Flashcards, deckID, now)
	if err != nil {
		return "", err
	}

	err = s.records.Store.Update(ctx, func(tx *store.Tx) error {
		c := newCascade(tx)
		c.decks[deck.ID] = deck
		for _, theme := range themes {
			c.themes[theme.ID] = theme
		}
		for _, card := range cards {
			c.cards[card.ID] = card
		}
		return c.stage()
	})
	if err != nil {
		return "", err
	}

	s.scheduleMigration(&deck, themes, cards)
	indexDeck(s.config, &deck)

	s.logger.Info("deck imported",
		"deck_id", deckID,
		"original_id", export.OriginalID,
		"user_id", userID,
		"themes", len(themes),
		"flashcards", len(cards),
	)
	return deckID, nil
}

// UpdateFromExport replaces the contents of the session user's earlier import
// of the same original deck with the export. Title and description are
// updated, and all themes and flashcards are deleted and rebuilt from the
// export. It reports false when the user has no such import.
func (s *ShareService) UpdateFromExport(ctx context.Context, sess *domain.Session, export *domain.SharedDeckExport) (bool, error) {
	if err := requireSession(sess); err != nil {
		return false, err
	}
	if err := s.validateExport(export); err != nil {
		return false, err
	}

	var (
		deck     domain.Deck
		found    bool
		themes   []domain.Theme
		cards    []domain.Flashcard
		released []domain.MediaRef
	)
	err := s.records.Store.Update(ctx, func(tx *store.Tx) error {
		c := newCascade(tx)
		deck, found = findImport(c.decks, sess.UserID, export.OriginalID)
		if !found {
			return nil
		}

		now := s.now()
		var err error
		themes, cards, err = rebuildChildren(export.Themes, export.Flashcards, deck.ID, now)
		if err != nil {
			return err
		}

		c.removeDeckChildren(deck.ID)
		released = c.released
		for _, theme := range themes {
			c.themes[theme.ID] = theme
		}
		for _, card := range cards {
			c.cards[card.ID] = card
		}

		deck.Title = strings.TrimSpace(export.Title)
		deck.Description = export.Description
		deck.Touch(now)
		c.decks[deck.ID] = deck
		return c.stage()
	})
	if err != nil || !found {
		return false, err
	}

	s.media.release(domain.CollectionDecks, deck.ID, released)
	s.scheduleMigration(nil, themes, cards)
	indexDeck(s.config, &deck)

	s.logger.Info("deck resynced from export",
		"deck_id", deck.ID,
		"original_id", export.OriginalID,
		"themes", len(themes),
		"flashcards", len(cards),
	)
	return true, nil
}

// findImport picks the user's oldest import of originalID.
func findImport(decks map[string]domain.Deck, userID, originalID string) (domain.Deck, bool) {
	var (
		match domain.Deck
		found bool
	)
	for _, deck := range decks {
		if deck.AuthorID != userID || !deck.IsImportOf(originalID) {
			continue
		}
		if !found || deck.CreatedAt.Before(match.CreatedAt) ||
			(deck.CreatedAt.Equal(match.CreatedAt) && deck.ID < match.ID) {
			match, found = deck, true
		}
	}
	return match, found
}

func (s *ShareService) scheduleMigration(deck *domain.Deck, themes []domain.Theme, cards []domain.Flashcard) {
	if deck != nil {
		reconcile(s.media, s.records.Decks, deck.ID, deck)
	}
	for i := range themes {
		reconcile(s.media, s.records.Themes, themes[i].ID, &themes[i])
	}
	for i := range cards {
		reconcile(s.media, s.records.Flashcards, cards[i].ID, &cards[i])
	}
}

func (s *ShareService) validateExport(export *domain.SharedDeckExport) error {
	if export == nil {
		return errors.Validation("export is empty")
	}
	return s.validator.Validate(export)
}

// rebuildChildren copies themes and flashcards under deckID with fresh ids.
// Flashcard theme ids are remapped through the new theme ids; a flashcard
// whose theme is not among themes gets no theme. Media references are
// dropped since they only resolve in the source profile, which leaves the
// inline copies to be migrated again. Review history is not carried over.
func rebuildChildren(themes []domain.Theme, cards []domain.Flashcard, deckID string, now time.Time) ([]domain.Theme, []domain.Flashcard, error) {
	themeIDs := make(map[string]string, len(themes))
	newThemes := make([]domain.Theme, 0, len(themes))
	for _, theme := range themes {
		themeID, err := id.Generate("theme")
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.CodeInternal, "generate theme ID")
		}
		themeIDs[theme.ID] = themeID

		theme.ID = themeID
		theme.DeckID = deckID
		theme.InitTimestamps(now)
		detachMedia(&theme)
		newThemes = append(newThemes, theme)
	}

	newCards := make([]domain.Flashcard, 0, len(cards))
	for _, card := range cards {
		cardID, err := id.Generate("card")
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.CodeInternal, "generate flashcard ID")
		}

		card.ID = cardID
		card.DeckID = deckID
		card.ThemeID = themeIDs[card.ThemeID]
		card.LastReviewed = nil
		card.ReviewCount = 0
		card.Difficulty = ""
		card.InitTimestamps(now)
		detachMedia(&card)
		newCards = append(newCards, card)
	}
	return newThemes, newCards, nil
}

// detachMedia drops the media references of owner, keeping inline values.
func detachMedia(owner domain.MediaOwner) {
	for _, slot := range owner.MediaSlots() {
		*slot.Ref = ""
	}
}

// CreateShareCode creates a share code for a deck. A non-positive expiryDays
// uses the configured default.
func (s *ShareService) CreateShareCode(ctx context.Context, deckID string, expiryDays int) (*domain.ShareCode, error) {
	if expiryDays <= 0 {
		expiryDays = s.shareExpiryDays
	}
	code := domain.NewShareCode(deckID, expiryDays, s.now())

	err := s.records.Store.Update(ctx, func(tx *store.Tx) error {
		if _, ok := store.Load[domain.Deck](tx, domain.CollectionDecks)[deckID]; !ok {
			return errors.NotFoundf("deck %s not found", deckID)
		}
		codes := store.Load[domain.ShareCode](tx, domain.CollectionShareCodes)
		codes[code.Code] = code
		return store.Stage(tx, domain.CollectionShareCodes, codes)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("share code created", "deck_id", deckID, "expires_at", code.ExpiresAt)
	return &code, nil
}

// ResolveShareCode returns the deck a code points at. Unknown, expired and
// dangling codes resolve to nothing; expired and dangling codes are removed.
func (s *ShareService) ResolveShareCode(ctx context.Context, code string) (*domain.Deck, bool) {
	shareCode, ok := s.records.ShareCodes.Get(ctx, code)
	if !ok {
		return nil, false
	}

	var deck *domain.Deck
	if !shareCode.Expired(s.now()) {
		deck, ok = s.records.Decks.Get(ctx, shareCode.DeckID)
		if ok {
			return deck, true
		}
	}

	if _, err := s.records.ShareCodes.Delete(ctx, code); err != nil {
		s.logger.Warn("failed to evict share code", "deck_id", shareCode.DeckID, "error", err)
	}
	return nil, false
}

// ListShareCodes returns the share codes of a deck, expired ones included.
func (s *ShareService) ListShareCodes(ctx context.Context, deckID string) []domain.ShareCode {
	return s.records.ShareCodes.Filter(ctx, func(c *domain.ShareCode) bool { return c.DeckID == deckID })
}

// RevokeShareCode deletes a share code.
func (s *ShareService) RevokeShareCode(ctx context.Context, code string) (bool, error) {
	return s.records.ShareCodes.Delete(ctx, code)
}

// PurgeExpiredShareCodes removes every expired or dangling share code and
// returns how many were removed.
func (s *ShareService) PurgeExpiredShareCodes(ctx context.Context) (int, error) {
	now := s.now()
	removed := 0
	err := s.records.Store.Update(ctx, func(tx *store.Tx) error {
		decks := store.Load[domain.Deck](tx, domain.CollectionDecks)
		codes := store.Load[domain.ShareCode](tx, domain.CollectionShareCodes)
		for key, code := range codes {
			if _, ok := decks[code.DeckID]; ok && !code.Expired(now) {
				continue
			}
			delete(codes, key)
			removed++
		}
		if removed == 0 {
			return nil
		}
		return store.Stage(tx, domain.CollectionShareCodes, codes)
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("purged share codes", "count", removed)
	}
	return removed, nil
}

// EncodeExport serializes an export document.
func EncodeExport(export *domain.SharedDeckExport) ([]byte, error) {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "encode export")
	}
	return data, nil
}

// DecodeExport parses an export document.
func DecodeExport(data []byte) (*domain.SharedDeckExport, error) {
	var export domain.SharedDeckExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, errors.Validationf("invalid export document: %v", err)
	}
	return &export, nil
}
