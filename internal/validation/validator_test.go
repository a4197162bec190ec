package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashdeck/flashdeck/internal/errors"
	"github.com/flashdeck/flashdeck/internal/validation"
)

type TestRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=8,max=1024"`
	Name     string   `json:"name" validate:"notblank"`
	Tags     []string `json:"tags" validate:"unique"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	req := TestRequest{
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
		Tags:     []string{"spanish", "verbs"},
	}

	assert.NoError(t, v.Validate(req))
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       TestRequest
		wantField string
		wantMsg   string
	}{
		{
			name: "blank name",
			req: TestRequest{
				Email:    "test@example.com",
				Password: "password123",
				Name:     "   ",
			},
			wantField: "name",
			wantMsg:   "must not be blank",
		},
		{
			name: "invalid email",
			req: TestRequest{
				Email:    "not-an-email",
				Password: "password123",
				Name:     "Test",
			},
			wantField: "email",
			wantMsg:   "must be a valid email address",
		},
		{
			name: "password too short",
			req: TestRequest{
				Email:    "test@example.com",
				Password: "short",
				Name:     "Test",
			},
			wantField: "password",
			wantMsg:   "must be at least 8 characters",
		},
		{
			name: "duplicate tags",
			req: TestRequest{
				Email:    "test@example.com",
				Password: "password123",
				Name:     "Test",
				Tags:     []string{"a", "a"},
			},
			wantField: "tags",
			wantMsg:   "must not contain duplicates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrValidation)

			var domainErr *errors.Error
			require.True(t, errors.As(err, &domainErr))
			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Equal(t, tt.wantMsg, details[tt.wantField])
			assert.Contains(t, domainErr.Message, tt.wantField)
		})
	}
}

func TestValidator_MultipleFieldsSorted(t *testing.T) {
	v := validation.New()

	err := v.Validate(TestRequest{})
	require.Error(t, err)
	assert.Equal(t,
		"validation failed: email is required; name must not be blank; password is required",
		err.Error())
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := validation.New()

	req := TestRequest{
		Email:    "",
		Password: "password123",
		Name:     "Test",
	}

	err := v.Validate(req)
	assert.Error(t, err)

	// Should use JSON tag name "email", not struct field name "Email"
	assert.Contains(t, err.Error(), "email")
	assert.NotContains(t, err.Error(), "Email")
}
