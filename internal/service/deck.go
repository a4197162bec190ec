package service

import (
	"context"
	"strings"

	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/errors"
	"github.com/flashdeck/flashdeck/internal/id"
	"github.com/flashdeck/flashdeck/internal/store"
	"github.com/flashdeck/flashdeck/internal/util"
)

// CreateDeckInput is the input for DeckService.CreateDeck.
type CreateDeckInput struct {
	Title       string   `json:"title" validate:"notblank,max=200"`
	Description string   `json:"description" validate:"max=2000"`
	CoverImage  string   `json:"coverImage,omitempty"`
	Tags        []string `json:"tags"`
	IsPublic    bool     `json:"isPublic"`
}

// DeckService manages decks.
type DeckService struct {
	config
	records *Records
	media   *Media
}

// NewDeckService creates a new deck service.
func NewDeckService(records *Records, media *Media, opts ...Option) *DeckService {
	return &DeckService{config: newConfig(opts), records: records, media: media}
}

// CreateDeck creates a deck owned by the session's user.
func (s *DeckService) CreateDeck(ctx context.Context, sess *domain.Session, input CreateDeckInput) (*domain.Deck, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input); err != nil {
		return nil, err
	}

	author, ok := s.records.Users.Get(ctx, sess.UserID)
	if !ok {
		return nil, errors.Unauthorizedf("session user %s no longer exists", sess.UserID)
	}

	deckID, err := id.Generate("deck")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate deck ID")
	}

	deck := domain.Deck{
		ID:          deckID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		CoverImage:  input.CoverImage,
		Tags:        util.NormalizeTags(input.Tags),
		AuthorID:    author.ID,
		AuthorName:  author.Username,
		IsPublic:    input.IsPublic,
	}
	deck.InitTimestamps(s.now())

	if err := s.records.Decks.Put(ctx, &deck); err != nil {
		return nil, err
	}

	reconcile(s.media, s.records.Decks, deck.ID, &deck)
	indexDeck(s.config, &deck)

	s.logger.Info("deck created", "deck_id", deck.ID, "author_id", deck.AuthorID, "title", deck.Title)
	return &deck, nil
}

// GetDeck returns the deck with deckID. Referenced cover media is prefetched
// in the background; use HydrateDeck when the inline cover is needed.
func (s *DeckService) GetDeck(ctx context.Context, deckID string) (*domain.Deck, bool) {
	deck, ok := s.records.Decks.Get(ctx, deckID)
	if ok {
		s.media.prefetch(deck)
	}
	return deck, ok
}

// HydrateDeck returns the deck with its cover inlined. It waits for the deck's
// pending media work first.
func (s *DeckService) HydrateDeck(ctx context.Context, deckID string) (*domain.Deck, bool) {
	if err := s.media.SettleRecord(ctx, domain.CollectionDecks, deckID); err != nil {
		s.logger.Warn("hydrating before media settled", "deck_id", deckID, "error", err)
	}
	deck, ok := s.records.Decks.Get(ctx, deckID)
	if !ok {
		return nil, false
	}
	s.media.bridge.Hydrate(ctx, deck)
	return deck, true
}

// ListDecksByUser returns the decks authored by userID.
func (s *DeckService) ListDecksByUser(ctx context.Context, userID string) []domain.Deck {
	return s.records.Decks.Filter(ctx, func(d *domain.Deck) bool { return d.AuthorID == userID })
}

// ListPublicDecks returns the decks visible to everyone.
func (s *DeckService) ListPublicDecks(ctx context.Context) []domain.Deck {
	return s.records.Decks.Filter(ctx, func(d *domain.Deck) bool { return d.IsPublic || d.IsPublished })
}

// UpdateDeck applies a merge-patch to a deck the session's user owns.
func (s *DeckService) UpdateDeck(ctx context.Context, sess *domain.Session, deckID string, patch domain.DeckPatch) (*domain.Deck, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(patch); err != nil {
		return nil, err
	}
	if patch.Tags != nil {
		tags := util.NormalizeTags(*patch.Tags)
		patch.Tags = &tags
	}

	deck, err := updateRecord(ctx, s.media, s.records.Decks, deckID, func(_ *store.Tx, d *domain.Deck) error {
		if !sess.Owns(d.AuthorID) {
			return errors.Unauthorizedf("deck %s belongs to another user", deckID)
		}
		patch.Apply(d)
		d.Touch(s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	indexDeck(s.config, deck)
	s.logger.Info("deck updated", "deck_id", deckID)
	return deck, nil
}

// DeleteDeck removes a deck the session's user owns, with its themes,
// flashcards, study sessions and share codes, in one atomic write. Media
// owned by any of them is deleted in the background.
func (s *DeckService) DeleteDeck(ctx context.Context, sess *domain.Session, deckID string) (bool, error) {
	if err := requireSession(sess); err != nil {
		return false, err
	}

	var (
		found    bool
		released []domain.MediaRef
	)
	err := s.records.Store.Update(ctx, func(tx *store.Tx) error {
		c := newCascade(tx)
		deck, ok := c.decks[deckID]
		if !ok {
			return nil
		}
		if !sess.Owns(deck.AuthorID) {
			return errors.Unauthorizedf("deck %s belongs to another user", deckID)
		}
		found = true
		c.removeDeck(deckID)
		released = c.released
		return c.stage()
	})
	if err != nil || !found {
		return false, err
	}

	s.media.release(domain.CollectionDecks, deckID, released)
	removeFromIndex(s.config, deckID)

	s.logger.Info("deck deleted", "deck_id", deckID, "released_media", len(released))
	return true, nil
}
