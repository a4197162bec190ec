// Package domain defines the persisted records of a flashcard profile and the
// pure rules that operate on them.
package domain

import "time"

// Timestamps provides the common fields for records that track edits.
// This gets embedded in every record type that supports merge-patch updates.
type Timestamps struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Touch updates UpdatedAt. Call this whenever the record changes.
func (t *Timestamps) Touch(now time.Time) {
	t.UpdatedAt = now
}

// InitTimestamps sets both CreatedAt and UpdatedAt to now.
// Call this when creating a new record.
func (t *Timestamps) InitTimestamps(now time.Time) {
	t.CreatedAt = now
	t.UpdatedAt = now
}

// Collection names in the record store.
const (
	CollectionUsers         = "users"
	CollectionDecks         = "decks"
	CollectionThemes        = "themes"
	CollectionFlashcards    = "flashcards"
	CollectionStudySessions = "studySessions"
	CollectionShareCodes    = "shareCodes"
)

// Collections lists every record collection.
var Collections = []string{
	CollectionUsers,
	CollectionDecks,
	CollectionThemes,
	CollectionFlashcards,
	CollectionStudySessions,
	CollectionShareCodes,
}
