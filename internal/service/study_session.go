package service

import (
	"context"

	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/errors"
	"github.com/flashdeck/flashdeck/internal/id"
	"github.com/flashdeck/flashdeck/internal/store"
)

// StudySessionService tracks study passes through decks.
type StudySessionService struct {
	config
	records *Records
}

// NewStudySessionService creates a new study session service.
func NewStudySessionService(records *Records, opts ...Option) *StudySessionService {
	return &StudySessionService{config: newConfig(opts), records: records}
}

// StartSession begins a study session of the session's user on a deck.
func (s *StudySessionService) StartSession(ctx context.Context, sess *domain.Session, deckID string) (*domain.StudySession, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}

	sessionID, err := id.Generate("study")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate study session ID")
	}

	session := domain.StudySession{
		ID:        sessionID,
		DeckID:    deckID,
		UserID:    sess.UserID,
		StartTime: s.now(),
	}

	err = s.records.Store.Update(ctx, func(tx *store.Tx) error {
		if _, ok := store.Load[domain.Deck](tx, domain.CollectionDecks)[deckID]; !ok {
			return errors.NotFoundf("deck %s not found", deckID)
		}
		sessions := store.Load[domain.StudySession](tx, domain.CollectionStudySessions)
		sessions[session.ID] = session
		return store.Stage(tx, domain.CollectionStudySessions, sessions)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("study session started", "study_session_id", session.ID, "deck_id", deckID, "user_id", sess.UserID)
	return &session, nil
}

// GetSession returns the study session with sessionID.
func (s *StudySessionService) GetSession(ctx context.Context, sessionID string) (*domain.StudySession, bool) {
	return s.records.StudySessions.Get(ctx, sessionID)
}

// ListSessionsByDeck returns the study sessions on a deck.
func (s *StudySessionService) ListSessionsByDeck(ctx context.Context, deckID string) []domain.StudySession {
	return s.records.StudySessions.Filter(ctx, func(ss *domain.StudySession) bool { return ss.DeckID == deckID })
}

// ListSessionsByUser returns the study sessions of a user.
func (s *StudySessionService) ListSessionsByUser(ctx context.Context, userID string) []domain.StudySession {
	return s.records.StudySessions.Filter(ctx, func(ss *domain.StudySession) bool { return ss.UserID == userID })
}

// RecordAnswer counts one reviewed card in an active session.
func (s *StudySessionService) RecordAnswer(ctx context.Context, sessionID string, correct bool) (*domain.StudySession, error) {
	return s.records.StudySessions.Update(ctx, sessionID, func(ss *domain.StudySession) error {
		if !ss.IsActive() {
			return errors.Conflict("study session has ended")
		}
		ss.RecordAnswer(correct)
		return nil
	})
}

// EndSession closes a study session. Ending an ended session is a no-op.
func (s *StudySessionService) EndSession(ctx context.Context, sessionID string) (*domain.StudySession, error) {
	return s.records.StudySessions.Update(ctx, sessionID, func(ss *domain.StudySession) error {
		ss.End(s.now())
		return nil
	})
}

// UpdateSession applies a merge-patch to a study session.
func (s *StudySessionService) UpdateSession(ctx context.Context, sessionID string, patch domain.StudySessionPatch) (*domain.StudySession, error) {
	if err := s.validator.Validate(patch); err != nil {
		return nil, err
	}
	return s.records.StudySessions.Update(ctx, sessionID, func(ss *domain.StudySession) error {
		patch.Apply(ss)
		if ss.EndTime != nil && ss.EndTime.Before(ss.StartTime) {
			return errors.Validation("end time is before start time")
		}
		return nil
	})
}

// DeleteSession removes a study session.
func (s *StudySessionService) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	return s.records.StudySessions.Delete(ctx, sessionID)
}
