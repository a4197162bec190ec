package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/errors"
	"github.com/flashdeck/flashdeck/internal/id"
	"github.com/flashdeck/flashdeck/internal/store"
)

// CreateUserInput is the input for UserService.CreateUser.
type CreateUserInput struct {
	Username string `json:"username" validate:"notblank,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=1024"`
	// Avatar is optional inline media.
	Avatar string `json:"avatar,omitempty"`
}

// UserService manages local profile accounts and sessions.
type UserService struct {
	config
	records *Records
	media   *Media
}

// NewUserService creates a new user service.
func NewUserService(records *Records, media *Media, opts ...Option) *UserService {
	return &UserService{config: newConfig(opts), records: records, media: media}
}

// CreateUser registers a user. Emails are unique, compared case-insensitively.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	if err := s.validator.Validate(input); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, errors.Validationf("password: %v", err)
	}

	userID, err := id.Generate("user")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate user ID")
	}

	user := domain.User{
		ID:           userID,
		Username:     strings.TrimSpace(input.Username),
		Email:        normalizeEmail(input.Email),
		PasswordHash: hash,
		CreatedAt:    s.now(),
		Avatar:       input.Avatar,
	}

	err = s.records.Store.Update(ctx, func(tx *store.Tx) error {
		users := store.Load[domain.User](tx, domain.CollectionUsers)
		for _, existing := range users {
			if existing.Email == user.Email {
				return errors.AlreadyExistsf("email %s is already registered", user.Email)
			}
		}
		users[user.ID] = user
		return store.Stage(tx, domain.CollectionUsers, users)
	})
	if err != nil {
		return nil, err
	}

	reconcile(s.media, s.records.Users, user.ID, &user)

	s.logger.Info("user created", "user_id", user.ID, "username", user.Username)
	return &user, nil
}

// GetUser returns the user with userID.
func (s *UserService) GetUser(ctx context.Context, userID string) (*domain.User, bool) {
	user, ok := s.records.Users.Get(ctx, userID)
	if ok {
		s.media.prefetch(user)
	}
	return user, ok
}

// GetUserByEmail looks a user up by email address.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*domain.User, bool) {
	email = normalizeEmail(email)
	users := s.records.Users.Filter(ctx, func(u *domain.User) bool { return u.Email == email })
	if len(users) == 0 {
		return nil, false
	}
	return &users[0], true
}

// Login verifies a password and opens a session. With a LoginLimiter set,
// attempts beyond its budget fail with RATE_LIMITED before the password is checked.
func (s *UserService) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	if s.loginLimiter != nil && !s.loginLimiter.Allow(normalizeEmail(email)) {
		s.logger.Warn("login throttled", "email", normalizeEmail(email))
		return nil, errors.RateLimited("too many login attempts, try again later")
	}

	user, ok := s.GetUserByEmail(ctx, email)
	if !ok {
		return nil, errors.Unauthorized("invalid email or password")
	}

	match, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil || !match {
		return nil, errors.Unauthorized("invalid email or password")
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		if hash, err := s.hasher.Hash(password); err == nil {
			_, err = s.records.Users.Update(ctx, user.ID, func(u *domain.User) error {
				u.PasswordHash = hash
				return nil
			})
			if err != nil {
				s.logger.Warn("password rehash failed", "user_id", user.ID, "error", err)
			}
		}
	}

	return &domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Username:  user.Username,
		StartedAt: s.now(),
	}, nil
}

// UpdateUser applies a merge-patch to the session's own user.
func (s *UserService) UpdateUser(ctx context.Context, sess *domain.Session, userID string, patch domain.UserPatch) (*domain.User, error) {
	if !sess.Owns(userID) {
		return nil, errors.Unauthorized("cannot update another user")
	}
	if err := s.validator.Validate(patch); err != nil {
		return nil, err
	}
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		patch.Email = &email
	}

	user, err := updateRecord(ctx, s.media, s.records.Users, userID, func(tx *store.Tx, u *domain.User) error {
		if patch.Email != nil {
			for _, other := range store.Load[domain.User](tx, domain.CollectionUsers) {
				if other.ID != userID && other.Email == *patch.Email {
					return errors.AlreadyExistsf("email %s is already registered", *patch.Email)
				}
			}
		}
		patch.Apply(u)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user updated", "user_id", userID)
	return user, nil
}

// DeleteUser removes the session's own user together with the user's decks,
// their themes, flashcards and share codes, and the user's study sessions.
func (s *UserService) DeleteUser(ctx context.Context, sess *domain.Session, userID string) (bool, error) {
	if !sess.Owns(userID) {
		return false, errors.Unauthorized("cannot delete another user")
	}

	var (
		found    bool
		released []domain.MediaRef
		deckIDs  []string
	)
	err := s.records.Store.Update(ctx, func(tx *store.Tx) error {
		users := store.Load[domain.User](tx, domain.CollectionUsers)
		user, ok := users[userID]
		if !ok {
			return nil
		}
		found = true
		released = domain.MediaRefs(&user)
		delete(users, userID)

		c := newCascade(tx)
		for deckID, deck := range c.decks {
			if deck.AuthorID == userID {
				deckIDs = append(deckIDs, deckID)
				c.removeDeck(deckID)
			}
		}
		for sessionID, session := range c.sessions {
			if session.UserID == userID {
				delete(c.sessions, sessionID)
			}
		}
		released = append(released, c.released...)

		if err := store.Stage(tx, domain.CollectionUsers, users); err != nil {
			return err
		}
		return c.stage()
	})
	if err != nil || !found {
		return false, err
	}

	s.media.release(domain.CollectionUsers, userID, released)
	removeFromIndex(s.config, deckIDs...)

	s.logger.Info("user deleted", "user_id", userID, "decks", len(deckIDs))
	return true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
