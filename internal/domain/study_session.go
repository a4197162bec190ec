package domain

import "time"

// StudySession tracks one pass of a user through a deck.
type StudySession struct {
	ID               string     `json:"id"`
	DeckID           string     `json:"deckId"`
	UserID           string     `json:"userId"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          *time.Time `json:"endTime,omitempty"`
	CardsReviewed    int        `json:"cardsReviewed"`
	CorrectAnswers   int        `json:"correctAnswers"`
	IncorrectAnswers int        `json:"incorrectAnswers"`
}

// IsActive returns true if the session has not ended.
func (s *StudySession) IsActive() bool {
	return s.EndTime == nil
}

// RecordAnswer counts one reviewed card.
func (s *StudySession) RecordAnswer(correct bool) {
	s.CardsReviewed++
	if correct {
		s.CorrectAnswers++
	} else {
		s.IncorrectAnswers++
	}
}

// End closes the session. Ending twice keeps the first end time.
func (s *StudySession) End(now time.Time) {
	if s.EndTime == nil {
		s.EndTime = &now
	}
}

// Accuracy is the share of correct answers, 0 when nothing was reviewed.
func (s *StudySession) Accuracy() float64 {
	if s.CardsReviewed == 0 {
		return 0
	}
	return float64(s.CorrectAnswers) / float64(s.CardsReviewed)
}

// StudySessionPatch is a merge-patch for a StudySession.
type StudySessionPatch struct {
	CardsReviewed    *int       `json:"cardsReviewed,omitempty" validate:"omitempty,gte=0"`
	CorrectAnswers   *int       `json:"correctAnswers,omitempty" validate:"omitempty,gte=0"`
	IncorrectAnswers *int       `json:"incorrectAnswers,omitempty" validate:"omitempty,gte=0"`
	EndTime          *time.Time `json:"endTime,omitempty"`
}

// Apply merges the patch into s.
func (p StudySessionPatch) Apply(s *StudySession) {
	if p.CardsReviewed != nil {
		s.CardsReviewed = *p.CardsReviewed
	}
	if p.CorrectAnswers != nil {
		s.CorrectAnswers = *p.CorrectAnswers
	}
	if p.IncorrectAnswers != nil {
		s.IncorrectAnswers = *p.IncorrectAnswers
	}
	if p.EndTime != nil {
		end := *p.EndTime
		s.EndTime = &end
	}
}
