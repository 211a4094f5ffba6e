package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/deviceauth-go/internal/httputil"
)

func TestBodyLimitMiddleware(t *testing.T) {
	mw := NewBodyLimitMiddleware(16)

	t.Run("rejects declared oversize body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 32)))
		rec := httptest.NewRecorder()
		mw.Handler(okHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("caps streamed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 32)))
		req.ContentLength = -1
		rec := httptest.NewRecorder()

		var readErr error
		mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, readErr = io.ReadAll(r.Body)
		})).ServeHTTP(rec, req)
		assert.Error(t, readErr)
	})

	t.Run("zero uses default", func(t *testing.T) {
		assert.Equal(t, int64(DefaultMaxBodySize), NewBodyLimitMiddleware(0).maxSize)
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	NewSecurityHeadersMiddleware(true).Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))

	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))

	rec = httptest.NewRecorder()
	NewSecurityHeadersMiddleware(false).Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)
	handler := chimiddleware.RequestID(NewRequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/device/token" {
			w.WriteHeader(httputil.StatusAuthorizationPending)
			return
		}
		w.WriteHeader(http.StatusOK)
	})))

	t.Run("logs completed request", func(t *testing.T) {
		buf.Reset()
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/device/code", nil))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "/v1/device/code", entry["path"])
		assert.EqualValues(t, 200, entry["status"])
		assert.NotEmpty(t, entry["req_id"])
	})

	t.Run("pending polls stay below info", func(t *testing.T) {
		buf.Reset()
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/device/token", nil))
		assert.Empty(t, buf.String())
	})
}
