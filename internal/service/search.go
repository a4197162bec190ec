package service

import (
	"context"
	"strings"

	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/util"
)

// DeckIndex is a full-text index over deck metadata.
type DeckIndex interface {
	IndexDeck(deck *domain.Deck) error
	DeleteDeck(deckID string) error
	// SearchDecks returns matching deck ids, best match first.
	SearchDecks(ctx context.Context, query string, limit int) ([]string, error)
}

const defaultSearchLimit = 50

func indexDeck(c config, deck *domain.Deck) {
	if c.index == nil {
		return
	}
	if err := c.index.IndexDeck(deck); err != nil {
		c.logger.Warn("failed to index deck", "deck_id", deck.ID, "error", err)
	}
}

func removeFromIndex(c config, deckIDs ...string) {
	if c.index == nil {
		return
	}
	for _, deckID := range deckIDs {
		if err := c.index.DeleteDeck(deckID); err != nil {
			c.logger.Warn("failed to remove deck from index", "deck_id", deckID, "error", err)
		}
	}
}

// ReindexDecks rebuilds the index entries of every stored deck.
func (s *DeckService) ReindexDecks(ctx context.Context) int {
	if s.index == nil {
		return 0
	}
	decks := s.records.Decks.Filter(ctx, nil)
	for i := range decks {
		indexDeck(s.config, &decks[i])
	}
	return len(decks)
}

// SearchDecks finds decks the session's user can see: their own plus public
// and published decks. Without an index it falls back to matching the title,
// description and tags.
func (s *DeckService) SearchDecks(ctx context.Context, sess *domain.Session, query string) ([]domain.Deck, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Deck{}, nil
	}

	visible := func(d *domain.Deck) bool {
		return d.IsPublic || d.IsPublished || sess.Owns(d.AuthorID)
	}

	if s.index == nil {
		return s.records.Decks.Filter(ctx, func(d *domain.Deck) bool {
			return visible(d) && matchesDeck(d, query)
		}), nil
	}

	ids, err := s.index.SearchDecks(ctx, query, defaultSearchLimit)
	if err != nil {
		return nil, err
	}
	all := s.records.Decks.All(ctx)
	results := make([]domain.Deck, 0, len(ids))
	for _, deckID := range ids {
		deck, ok := all[deckID]
		if ok && visible(&deck) {
			results = append(results, deck)
		}
	}
	return results, nil
}

func matchesDeck(d *domain.Deck, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(d.Title), q) ||
		strings.Contains(strings.ToLower(d.Description), q) ||
		util.HasTag(d.Tags, query)
}
