package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/deviceauth-go/internal/errors"
)

func TestStatusFromCode(t *testing.T) {
	tests := []struct {
		code   apperrors.ErrorCode
		status int
	}{
		{apperrors.ErrCodeAuthorizationPending, 428},
		{apperrors.ErrCodeAccessDenied, http.StatusForbidden},
		{apperrors.ErrCodeExpired, http.StatusGone},
		{apperrors.ErrCodeNotFound, http.StatusNotFound},
		{apperrors.ErrCodeAlreadyUsed, http.StatusConflict},
		{apperrors.ErrCodeUnauthenticated, http.StatusUnauthorized},
		{apperrors.ErrCodeRateLimitExceeded, http.StatusTooManyRequests},
		{apperrors.ErrCodeExternal, http.StatusBadGateway},
		{apperrors.ErrCodeDatabase, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.status, StatusFromCode(tc.code))
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Run("writes app error with mapped status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, apperrors.Expired())

		assert.Equal(t, http.StatusGone, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, apperrors.ErrCodeExpired, body.Code)
		assert.NotEmpty(t, body.Error)
	})

	t.Run("hides unknown errors behind internal error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("pq: relation does not exist"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "relation")
	})
}
