package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"shorturl-go/pkg/validator"
)

func TestConstructorsCarryStatus(t *testing.T) {
	tests := []struct {
		err  *AppError
		code int
		kind Kind
	}{
		{Validation(nil), http.StatusBadRequest, KindValidation},
		{NotFound("gone"), http.StatusNotFound, KindNotFound},
		{Conflict("taken"), http.StatusConflict, KindConflict},
		{GenerationExhausted(5), http.StatusServiceUnavailable, KindGenerationExhausted},
		{Unauthorized("nope"), http.StatusUnauthorized, KindUnauthorized},
		{EntryCodeRequired(), http.StatusForbidden, KindEntryCodeRequired},
		{Storage(errors.New("db down")), http.StatusInternalServerError, KindStorage},
		{Internal(errors.New("qr")), http.StatusInternalServerError, KindInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.NotEmpty(t, tt.err.MessageID)
		})
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("resolve: %w", NotFound("short url not found"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))

	var appErr *AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusNotFound, appErr.Code)
}

func TestStorageUnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Storage(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestInvalidRequest(t *testing.T) {
	err := InvalidRequest("body", "error.body_invalid", "Request body is malformed")

	assert.Equal(t, KindValidation, err.Kind)
	assert.Equal(t, validator.Violations{validator.NewViolation("body", "error.body_invalid", "Request body is malformed")}, err.Violations)
}
