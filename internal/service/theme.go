package service

import (
	"context"
	"strings"

	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/errors"
	"github.com/flashdeck/flashdeck/internal/id"
	"github.com/flashdeck/flashdeck/internal/store"
)

// CreateThemeInput is the input for ThemeService.CreateTheme.
type CreateThemeInput struct {
	DeckID      string `json:"deckId" validate:"required"`
	Title       string `json:"title" validate:"notblank,max=200"`
	Description string `json:"description" validate:"max=2000"`
	CoverImage  string `json:"coverImage,omitempty"`
}

// ThemeService manages the themes of a deck.
type ThemeService struct {
	config
	records *Records
	media   *Media
}

// NewThemeService creates a new theme service.
func NewThemeService(records *Records, media *Media, opts ...Option) *ThemeService {
	return &ThemeService{config: newConfig(opts), records: records, media: media}
}

// CreateTheme adds a theme to an existing deck.
func (s *ThemeService) CreateTheme(ctx context.Context, input CreateThemeInput) (*domain.Theme, error) {
	if err := s.validator.Validate(input); err != nil {
		return nil, err
	}

	themeID, err := id.Generate("theme")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate theme ID")
	}

	theme := domain.Theme{
		ID:          themeID,
		DeckID:      input.DeckID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		CoverImage:  input.CoverImage,
	}
	theme.InitTimestamps(s.now())

	err = s.records.Store.Update(ctx, func(tx *store.Tx) error {
		decks := store.Load[domain.Deck](tx, domain.CollectionDecks)
		if _, ok := decks[input.DeckID]; !ok {
			return errors.NotFoundf("deck %s not found", input.DeckID)
		}
		themes := store.Load[domain.Theme](tx, domain.CollectionThemes)
		themes[theme.ID] = theme
		return store.Stage(tx, domain.CollectionThemes, themes)
	})
	if err != nil {
		return nil, err
	}

	reconcile(s.media, s.records.Themes, theme.ID, &theme)

	s.logger.Info("theme created", "theme_id", theme.ID, "deck_id", theme.DeckID)
	return &theme, nil
}

// GetTheme returns the theme with themeID.
func (s *ThemeService) GetTheme(ctx context.Context, themeID string) (*domain.Theme, bool) {
	theme, ok := s.records.Themes.Get(ctx, themeID)
	if ok {
		s.media.prefetch(theme)
	}
	return theme, ok
}

// ListThemesByDeck returns the themes of a deck.
func (s *ThemeService) ListThemesByDeck(ctx context.Context, deckID string) []domain.Theme {
	return s.records.Themes.Filter(ctx, func(t *domain.Theme) bool { return t.DeckID == deckID })
}

// UpdateTheme applies a merge-patch to a theme.
func (s *ThemeService) UpdateTheme(ctx context.Context, themeID string, patch domain.ThemePatch) (*domain.Theme, error) {
	if err := s.validator.Validate(patch); err != nil {
		return nil, err
	}

	theme, err := updateRecord(ctx, s.media, s.records.Themes, themeID, func(_ *store.Tx, t *domain.Theme) error {
		patch.Apply(t)
		t.Touch(s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("theme updated", "theme_id", themeID)
	return theme, nil
}

// DeleteTheme removes a theme. Its flashcards stay in the deck with their
// theme cleared, in the same atomic write.
func (s *ThemeService) DeleteTheme(ctx context.Context, themeID string) (bool, error) {
	var (
		found    bool
		released []domain.MediaRef
		detached int
	)
	err := s.records.Store.Update(ctx, func(tx *store.Tx) error {
		themes := store.Load[domain.Theme](tx, domain.CollectionThemes)
		theme, ok := themes[themeID]
		if !ok {
			return nil
		}
		found = true
		released = domain.MediaRefs(&theme)
		delete(themes, themeID)

		cards := store.Load[domain.Flashcard](tx, domain.CollectionFlashcards)
		now := s.now()
		for cardID, card := range cards {
			if card.ThemeID != themeID {
				continue
			}
			card.ThemeID = ""
			card.Touch(now)
			cards[cardID] = card
			detached++
		}

		if err := store.Stage(tx, domain.CollectionThemes, themes); err != nil {
			return err
		}
		return store.Stage(tx, domain.CollectionFlashcards, cards)
	})
	if err != nil || !found {
		return false, err
	}

	s.media.release(domain.CollectionThemes, themeID, released)

	s.logger.Info("theme deleted", "theme_id", themeID, "detached_flashcards", detached)
	return true, nil
}
