package domain

import (
	"fmt"
	"time"
)

// ShareCode maps an opaque token to a deck until ExpiresAt.
type ShareCode struct {
	Code       string    `json:"code"`
	DeckID     string    `json:"deckId"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	ExpiryDays int       `json:"expiryDays"`
}

// NewShareCode builds a share code for deckID that is valid for expiryDays
// days starting at now. Expiry is stored as an absolute time; the token is
// never parsed back.
func NewShareCode(deckID string, expiryDays int, now time.Time) ShareCode {
	return ShareCode{
		Code:       fmt.Sprintf("share_%s_%d_%d", deckID, now.UnixMilli(), expiryDays),
		DeckID:     deckID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Duration(expiryDays) * 24 * time.Hour),
		ExpiryDays: expiryDays,
	}
}

// Expired reports whether the code is past its expiry. A code is still valid
// at exactly ExpiresAt.
func (c ShareCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// SharedDeckExport is a detached deck snapshot with fresh identifiers. It is
// self-contained: media travels inline as data URIs.
type SharedDeckExport struct {
	ID          string      `json:"id"`
	OriginalID  string      `json:"originalId" validate:"required"`
	Title       string      `json:"title" validate:"notblank,max=200"`
	Description string      `json:"description"`
	CoverImage  string      `json:"coverImage,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Themes      []Theme     `json:"themes"`
	Flashcards  []Flashcard `json:"flashcards"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}
