package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		kind   Kind
		status int
	}{
		{"validation", Validation(FieldError{Path: "email", Message: "invalid email"}), KindValidation, http.StatusBadRequest},
		{"conflict", Conflict("email", "email already exists"), KindConflict, http.StatusBadRequest},
		{"bad request", BadRequest("nothing to update"), KindBadRequest, http.StatusBadRequest},
		{"unauthorized", Unauthorized("password", "password is wrong"), KindUnauthorized, http.StatusUnauthorized},
		{"not found", NotFound("email", "user not found"), KindNotFound, http.StatusNotFound},
		{"too many requests", TooManyRequests("slow down"), KindTooManyRequests, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestFieldErrors(t *testing.T) {
	t.Run("path becomes single field", func(t *testing.T) {
		err := Conflict("email", "email already exists")
		assert.Equal(t, []FieldError{{Path: "email", Message: "email already exists"}}, err.FieldErrors())
	})

	t.Run("explicit fields win", func(t *testing.T) {
		err := Validation(
			FieldError{Path: "email", Message: "invalid email"},
			FieldError{Path: "password", Message: "too short"},
		)
		assert.Len(t, err.FieldErrors(), 2)
		assert.Equal(t, "validation failed", err.Message)
	})

	t.Run("no path renders empty list", func(t *testing.T) {
		err := BadRequest("nothing to update")
		assert.NotNil(t, err.FieldErrors())
		assert.Empty(t, err.FieldErrors())
	})
}

func TestWrapKeepsKindAndCause(t *testing.T) {
	cause := errors.New("signature mismatch")
	base := Unauthorized("", "verification failed")
	wrapped := base.Wrap(cause)

	assert.Nil(t, base.Err)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "verification failed", wrapped.Message)
	assert.Contains(t, wrapped.Error(), "signature mismatch")
}

func TestAsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("failed to load user: %w", NotFound("", "user not found"))

	appErr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, appErr.Kind)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsKind(err, KindConflict))

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}
