package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashdeck/flashdeck/internal/auth"
	"github.com/flashdeck/flashdeck/internal/domain"
	"github.com/flashdeck/flashdeck/internal/errors"
	"github.com/flashdeck/flashdeck/internal/ratelimit"
)

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	env := setupServices(t)

	user, err := env.users.CreateUser(ctx, CreateUserInput{Username: " demo ", Email: "Demo@X.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "demo", user.Username)
	assert.Equal(t, "demo@x.com", user.Email)
	assert.True(t, strings.HasPrefix(user.PasswordHash, "$argon2id$"))

	stored, ok := env.users.GetUser(ctx, user.ID)
	require.True(t, ok)
	assert.Equal(t, user.PasswordHash, stored.PasswordHash)

	_, err = env.users.CreateUser(ctx, CreateUserInput{Username: "again", Email: "demo@x.com", Password: "pw"})
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)

	_, err = env.users.CreateUser(ctx, CreateUserInput{Username: "x", Email: "not-an-email", Password: "pw"})
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = env.users.CreateUser(ctx, CreateUserInput{Username: "x", Email: "x@example.com"})
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	env := setupServices(t)
	user, _ := env.signUp(t, "ana", "ana@example.com")

	sess, err := env.users.Login(ctx, "ANA@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, user.ID, sess.UserID)
	assert.Equal(t, "ana", sess.Username)
	assert.NotEmpty(t, sess.ID)

	_, err = env.users.Login(ctx, "ana@example.com", "wrong")
	assert.ErrorIs(t, err, errors.ErrUnauthorized)

	_, err = env.users.Login(ctx, "nobody@example.com", "pw")
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
}

func TestLogin_Throttled(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.New(0.001, 3)
	t.Cleanup(limiter.Stop)
	env := setupServices(t, WithLoginLimiter(limiter))

	env.signUp(t, "ana", "ana@example.com")
	env.signUp(t, "ben", "ben@example.com")

	_, err := env.users.Login(ctx, "ana@example.com", "wrong")
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
	_, err = env.users.Login(ctx, "ana@example.com", "pw")
	require.NoError(t, err)

	// The budget is per normalized address, so case tricks do not reset it.
	_, err = env.users.Login(ctx, " ANA@example.com", "pw")
	assert.ErrorIs(t, err, errors.ErrRateLimited)

	_, err = env.users.Login(ctx, "ben@example.com", "pw")
	assert.NoError(t, err)
}

func TestLogin_RehashesOutdatedHash(t *testing.T) {
	ctx := context.Background()
	env := setupServices(t)
	user, _ := env.signUp(t, "ana", "ana@example.com")

	stronger := auth.NewHasher(auth.Params{Memory: 2048, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	users := NewUserService(env.records, env.media, WithHasher(stronger), WithClock(env.clock.Now))

	_, err := users.Login(ctx, "ana@example.com", "pw")
	require.NoError(t, err)

	stored, _ := env.users.GetUser(ctx, user.ID)
	assert.NotEqual(t, user.PasswordHash, stored.PasswordHash)
	assert.False(t, stronger.NeedsRehash(stored.PasswordHash))
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	env := setupServices(t)
	user, sess := env.signUp(t, "ana", "ana@example.com")
	other, _ := env.signUp(t, "bo", "bo@example.com")

	name := "ana maria"
	updated, err := env.users.UpdateUser(ctx, sess, user.ID, domain.UserPatch{Username: &name})
	require.NoError(t, err)
	assert.Equal(t, "ana maria", updated.Username)
	assert.Equal(t, "ana@example.com", updated.Email)

	taken := "BO@example.com"
	_, err = env.users.UpdateUser(ctx, sess, user.ID, domain.UserPatch{Email: &taken})
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)

	_, err = env.users.UpdateUser(ctx, sess, other.ID, domain.UserPatch{Username: &name})
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
}

func TestDeleteUser_Cascades(t *testing.T) {
	ctx := context.Background()
	env := setupServices(t)
	user, sess := env.signUp(t, "ana", "ana@example.com")
	other, otherSess := env.signUp(t, "bo", "bo@example.com")

	mine := buildDeck(t, env, sess)
	theirs, err := env.decks.CreateDeck(ctx, otherSess, CreateDeckInput{Title: "Bo's"})
	require.NoError(t, err)
	_, err = env.sessions.StartSession(ctx, sess, theirs.ID)
	require.NoError(t, err)
	env.settle(t)

	_, err = env.users.DeleteUser(ctx, otherSess, user.ID)
	assert.ErrorIs(t, err, errors.ErrUnauthorized)

	ok, err := env.users.DeleteUser(ctx, sess, user.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	env.settle(t)

	_, found := env.users.GetUser(ctx, user.ID)
	assert.False(t, found)
	_, found = env.decks.GetDeck(ctx, mine.ID)
	assert.False(t, found)
	assert.Empty(t, env.cards.ListFlashcardsByDeck(ctx, mine.ID))
	assert.Empty(t, env.sessions.ListSessionsByUser(ctx, user.ID))
	assert.Zero(t, env.blobCount(t))

	_, found = env.decks.GetDeck(ctx, theirs.ID)
	assert.True(t, found)
	_, found = env.users.GetUser(ctx, other.ID)
	assert.True(t, found)
}
