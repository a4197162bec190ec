package domain

import (
	"fmt"
	"time"
)

// Difficulty is the tier a learner assigns after reviewing a card.
type Difficulty string

// Difficulty tiers.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty validates a difficulty tier.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(s); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	default:
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
}

// Side is one face of a flashcard.
type Side struct {
	Text    string `json:"text"`
	Image   string `json:"image,omitempty"`
	ImageID string `json:"imageId,omitempty"`
	Audio   string `json:"audio,omitempty"`
	AudioID string `json:"audioId,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

func (s *Side) slots(prefix string) []MediaSlot {
	return []MediaSlot{
		{Name: prefix + ".image", Kind: KindImage, Inline: &s.Image, Ref: &s.ImageID},
		{Name: prefix + ".audio", Kind: KindAudio, Inline: &s.Audio, Ref: &s.AudioID},
	}
}

// Flashcard is a study card with a front and back side.
type Flashcard struct {
	Timestamps
	ID           string     `json:"id"`
	DeckID       string     `json:"deckId"`
	ThemeID      string     `json:"themeId,omitempty"`
	Front        Side       `json:"front"`
	Back         Side       `json:"back"`
	LastReviewed *time.Time `json:"lastReviewed,omitempty"`
	ReviewCount  int        `json:"reviewCount,omitempty"`
	Difficulty   Difficulty `json:"difficulty,omitempty"`
}

// MediaSlots implements MediaOwner.
func (f *Flashcard) MediaSlots() []MediaSlot {
	return append(f.Front.slots("front"), f.Back.slots("back")...)
}

// RecordReview stores the outcome of one review.
func (f *Flashcard) RecordReview(d Difficulty, now time.Time) {
	f.LastReviewed = &now
	f.ReviewCount++
	f.Difficulty = d
	f.Touch(now)
}

// FlashcardPatch is a merge-patch for a Flashcard. Sides are replaced whole.
type FlashcardPatch struct {
	// ThemeID moves the card to another theme of the same deck; "" removes it.
	ThemeID *string `json:"themeId,omitempty"`
	Front   *Side   `json:"front,omitempty"`
	Back    *Side   `json:"back,omitempty"`
}

// Apply merges the patch into f.
func (p FlashcardPatch) Apply(f *Flashcard) {
	if p.ThemeID != nil {
		f.ThemeID = *p.ThemeID
	}
	if p.Front != nil {
		f.Front = *p.Front
	}
	if p.Back != nil {
		f.Back = *p.Back
	}
}
