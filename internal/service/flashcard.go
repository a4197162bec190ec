package service

import (
	"context"

	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/errors"
	"github.com/flashdeck/flashdeck/internal/id"
	"github.com/flashdeck/flashdeck/internal/store"
)

// CreateFlashcardInput is the input for FlashcardService.CreateFlashcard.
type CreateFlashcardInput struct {
	DeckID  string      `json:"deckId" validate:"required"`
	ThemeID string      `json:"themeId,omitempty"`
	Front   domain.Side `json:"front"`
	Back    domain.Side `json:"back"`
}

// FlashcardService manages flashcards.
type FlashcardService struct {
	config
	records *Records
	media   *Media
}

// NewFlashcardService creates a new flashcard service.
func NewFlashcardService(records *Records, media *Media, opts ...Option) *FlashcardService {
	return &FlashcardService{config: newConfig(opts), records: records, media: media}
}

// checkTheme verifies that themeID, when set, is a theme of deckID.
func checkTheme(tx *store.Tx, deckID, themeID string) error {
	if themeID == "" {
		return nil
	}
	theme, ok := store.Load[domain.Theme](tx, domain.CollectionThemes)[themeID]
	if !ok {
		return errors.NotFoundf("theme %s not found", themeID)
	}
	if theme.DeckID != deckID {
		return errors.Validationf("theme %s belongs to another deck", themeID)
	}
	return nil
}

// CreateFlashcard adds a flashcard to a deck. The card is returned with its
// inline media; references are attached once the media has been stored.
func (s *FlashcardService) CreateFlashcard(ctx context.Context, input CreateFlashcardInput) (*domain.Flashcard, error) {
	if err := s.validator.Validate(input); err != nil {
		return nil, err
	}

	cardID, err := id.Generate("card")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate flashcard ID")
	}

	card := domain.Flashcard{
		ID:      cardID,
		DeckID:  input.DeckID,
		ThemeID: input.ThemeID,
		Front:   input.Front,
		Back:    input.Back,
	}
	card.InitTimestamps(s.now())

	err = s.records.Store.Update(ctx, func(tx *store.Tx) error {
		if _, ok := store.Load[domain.Deck](tx, domain.CollectionDecks)[input.DeckID]; !ok {
			return errors.NotFoundf("deck %s not found", input.DeckID)
		}
		if err := checkTheme(tx, input.DeckID, input.ThemeID); err != nil {
			return err
		}
		cards := store.Load[domain.Flashcard](tx, domain.CollectionFlashcards)
		cards[card.ID] = card
		return store.Stage(tx, domain.CollectionFlashcards, cards)
	})
	if err != nil {
		return nil, err
	}

	reconcile(s.media, s.records.Flashcards, card.ID, &card)

	s.logger.Debug("flashcard created", "flashcard_id", card.ID, "deck_id", card.DeckID)
	return &card, nil
}

// GetFlashcard returns the flashcard with cardID. Referenced media is
// prefetched in the background; use HydrateFlashcard when the inline media is
// needed.
func (s *FlashcardService) GetFlashcard(ctx context.Context, cardID string) (*domain.Flashcard, bool) {
	card, ok := s.records.Flashcards.Get(ctx, cardID)
	if ok {
		s.media.prefetch(card)
	}
	return card, ok
}

// HydrateFlashcard returns the flashcard with every referenced media value
// inlined. It waits for the card's pending media work first.
func (s *FlashcardService) HydrateFlashcard(ctx context.Context, cardID string) (*domain.Flashcard, bool) {
	if err := s.media.SettleRecord(ctx, domain.CollectionFlashcards, cardID); err != nil {
		s.logger.Warn("hydrating before media settled", "flashcard_id", cardID, "error", err)
	}
	card, ok := s.records.Flashcards.Get(ctx, cardID)
	if !ok {
		return nil, false
	}
	card.Front = s.media.bridge.HydrateSide(ctx, card.Front)
	card.Back = s.media.bridge.HydrateSide(ctx, card.Back)
	return card, true
}

// ListFlashcardsByDeck returns the flashcards of a deck.
func (s *FlashcardService) ListFlashcardsByDeck(ctx context.Context, deckID string) []domain.Flashcard {
	return s.records.Flashcards.Filter(ctx, func(f *domain.Flashcard) bool { return f.DeckID == deckID })
}

// ListFlashcardsByTheme returns the flashcards of a theme.
func (s *FlashcardService) ListFlashcardsByTheme(ctx context.Context, themeID string) []domain.Flashcard {
	return s.records.Flashcards.Filter(ctx, func(f *domain.Flashcard) bool { return f.ThemeID == themeID })
}

// UpdateFlashcard applies a merge-patch to a flashcard. Replacing a side's
// media deletes the old blob before the new inline value is migrated.
func (s *FlashcardService) UpdateFlashcard(ctx context.Context, cardID string, patch domain.FlashcardPatch) (*domain.Flashcard, error) {
	card, err := updateRecord(ctx, s.media, s.records.Flashcards, cardID, func(tx *store.Tx, f *domain.Flashcard) error {
		if patch.ThemeID != nil && *patch.ThemeID != "" {
			theme, ok := store.Load[domain.Theme](tx, domain.CollectionThemes)[*patch.ThemeID]
			if !ok {
				return errors.NotFoundf("theme %s not found", *patch.ThemeID)
			}
			if theme.DeckID != f.DeckID {
				return errors.Validationf("theme %s belongs to another deck", *patch.ThemeID)
			}
		}
		patch.Apply(f)
		f.Touch(s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// RecordReview stores the outcome of reviewing a flashcard.
func (s *FlashcardService) RecordReview(ctx context.Context, cardID string, difficulty domain.Difficulty) (*domain.Flashcard, error) {
	if _, err := domain.ParseDifficulty(string(difficulty)); err != nil {
		return nil, errors.Validation(err.Error())
	}
	return s.records.Flashcards.Update(ctx, cardID, func(f *domain.Flashcard) error {
		f.RecordReview(difficulty, s.now())
		return nil
	})
}

// DeleteFlashcard removes a flashcard and deletes its media in the background.
func (s *FlashcardService) DeleteFlashcard(ctx context.Context, cardID string) (bool, error) {
	var released []domain.MediaRef
	found := false
	err := s.records.Store.Update(ctx, func(tx *store.Tx) error {
		cards := store.Load[domain.Flashcard](tx, domain.CollectionFlashcards)
		card, ok := cards[cardID]
		if !ok {
			return nil
		}
		found = true
		released = domain.MediaRefs(&card)
		delete(cards, cardID)
		return store.Stage(tx, domain.CollectionFlashcards, cards)
	})
	if err != nil || !found {
		return false, err
	}

	s.media.release(domain.CollectionFlashcards, cardID, released)
	return true, nil
}
