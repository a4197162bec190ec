package service

import (
	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/store"
)

// cascade stages deletions that span collections inside one store
// transaction, collecting the media references the deleted records held.
type cascade struct {
	tx       *store.Tx
	decks    map[string]domain.Deck
	themes   map[string]domain.Theme
	cards    map[string]domain.Flashcard
	sessions map[string]domain.StudySession
	codes    map[string]domain.ShareCode
	released []domain.MediaRef
}

func newCascade(tx *store.Tx) *cascade {
	return &cascade{
		tx:       tx,
		decks:    store.Load[domain.Deck](tx, domain.CollectionDecks),
		themes:   store.Load[domain.Theme](tx, domain.CollectionThemes),
		cards:    store.Load[domain.Flashcard](tx, domain.CollectionFlashcards),
		sessions: store.Load[domain.StudySession](tx, domain.CollectionStudySessions),
		codes:    store.Load[domain.ShareCode](tx, domain.CollectionShareCodes),
	}
}

// removeDeck deletes a deck with everything that points at it.
func (c *cascade) removeDeck(deckID string) {
	if deck, ok := c.decks[deckID]; ok {
		c.released = append(c.released, domain.MediaRefs(&deck)...)
		delete(c.decks, deckID)
	}
	c.removeDeckChildren(deckID)
	for sessionID, session := range c.sessions {
		if session.DeckID == deckID {
			delete(c.sessions, sessionID)
		}
	}
	for code, shareCode := range c.codes {
		if shareCode.DeckID == deckID {
			delete(c.codes, code)
		}
	}
}

// removeDeckChildren deletes the themes and flashcards of a deck.
func (c *cascade) removeDeckChildren(deckID string) {
	for themeID, theme := range c.themes {
		if theme.DeckID == deckID {
			c.released = append(c.released, domain.MediaRefs(&theme)...)
			delete(c.themes, themeID)
		}
	}
	for cardID, card := range c.cards {
		if card.DeckID == deckID {
			c.released = append(c.released, domain.MediaRefs(&card)...)
			delete(c.cards, cardID)
		}
	}
}

func (c *cascade) stage() error {
	if err := store.Stage(c.tx, domain.CollectionDecks, c.decks); err != nil {
		return err
	}
	if err := store.Stage(c.tx, domain.CollectionThemes, c.themes); err != nil {
		return err
	}
	if err := store.Stage(c.tx, domain.CollectionFlashcards, c.cards); err != nil {
		return err
	}
	if err := store.Stage(c.tx, domain.CollectionStudySessions, c.sessions); err != nil {
		return err
	}
	return store.Stage(c.tx, domain.CollectionShareCodes, c.codes)
}
