package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	unauthorized := NewUnauthorized("NO_TOKEN", "authorization token required")
	wrapped := fmt.Errorf("gate: %w", unauthorized)
	de := ToDomainError(wrapped)
	require.NotNil(t, de)
	assert.Equal(t, http.StatusUnauthorized, de.HTTPStatus)
	assert.Equal(t, "NO_TOKEN", de.Code)

	de = ToDomainError(fmt.Errorf("load user: %w", pgx.ErrNoRows))
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)

	cause := errors.New("connection refused")
	de = ToDomainError(cause)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	assert.Equal(t, "internal server error", de.Message)
	assert.ErrorIs(t, de, cause)
}

func TestDomainError_Error(t *testing.T) {
	err := NewInternalError(errors.New("boom"))
	assert.Equal(t, "internal server error: boom", err.Error())
	assert.Equal(t, "insufficient permissions", NewForbidden("ROLE_DENIED", "insufficient permissions").Error())
}
