package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openclaw/deviceauth-go/internal/model"
	"github.com/openclaw/deviceauth-go/internal/service"
)

type recordingLimiter struct {
	allow bool
	keys  []string
}

func (l *recordingLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	l.keys = append(l.keys, key)
	return l.allow, time.Now().Add(30 * time.Second)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("keys by client ip", func(t *testing.T) {
		limiter := &recordingLimiter{allow: true}
		mw := NewRateLimitMiddleware(limiter, 10, time.Minute, "begin", ClientIPKey)

		req := httptest.NewRequest("POST", "/v1/device/code", nil)
		req.RemoteAddr = "192.0.2.10:4444"
		rec := httptest.NewRecorder()
		mw.Handler(okHandler()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"begin:ip:192.0.2.10"}, limiter.keys)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("client ip key ignores forwarding headers", func(t *testing.T) {
		limiter := &recordingLimiter{allow: true}
		mw := NewRateLimitMiddleware(limiter, 10, time.Minute, "begin", ClientIPKey)
		handler := mw.Handler(okHandler())

		for _, spoofed := range []string{"10.0.0.1", "10.0.0.2"} {
			req := httptest.NewRequest("POST", "/v1/device/code", nil)
			req.RemoteAddr = "192.0.2.10:4444"
			req.Header.Set("X-Forwarded-For", spoofed)
			req.Header.Set("X-Real-IP", spoofed)
			handler.ServeHTTP(httptest.NewRecorder(), req)
		}

		assert.Equal(t, []string{"begin:ip:192.0.2.10", "begin:ip:192.0.2.10"}, limiter.keys)
	})

	t.Run("client ip key after RealIP rewrite", func(t *testing.T) {
		limiter := &recordingLimiter{allow: true}
		mw := NewRateLimitMiddleware(limiter, 10, time.Minute, "begin", ClientIPKey)

		req := httptest.NewRequest("POST", "/v1/device/code", nil)
		req.RemoteAddr = "203.0.113.7"
		mw.Handler(okHandler()).ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, []string{"begin:ip:203.0.113.7"}, limiter.keys)
	})

	t.Run("keys by account", func(t *testing.T) {
		limiter := &recordingLimiter{allow: true}
		mw := NewRateLimitMiddleware(limiter, 10, time.Minute, "approve", AccountKey)

		req := httptest.NewRequest("POST", "/v1/device/approve", nil)
		req = req.WithContext(WithAccount(req.Context(), &model.Account{ID: "acct-1"}))
		rec := httptest.NewRecorder()
		mw.Handler(okHandler()).ServeHTTP(rec, req)

		assert.Equal(t, []string{"approve:account:acct-1"}, limiter.keys)
	})

	t.Run("skips when no key", func(t *testing.T) {
		limiter := &recordingLimiter{allow: false}
		mw := NewRateLimitMiddleware(limiter, 10, time.Minute, "approve", AccountKey)

		rec := httptest.NewRecorder()
		mw.Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, limiter.keys)
	})

	t.Run("rejects with 429 and retry-after", func(t *testing.T) {
		limiter := &recordingLimiter{allow: false}
		mw := NewRateLimitMiddleware(limiter, 10, time.Minute, "begin", ClientIPKey)

		rec := httptest.NewRecorder()
		mw.Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest("POST", "/v1/device/code", nil))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
	})

	t.Run("works with the memory limiter", func(t *testing.T) {
		mw := NewRateLimitMiddleware(service.NewMemoryRateLimiter(), 2, time.Minute, "begin", ClientIPKey)
		handler := mw.Handler(okHandler())

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest("POST", "/v1/device/code", nil)
			req.RemoteAddr = "198.51.100.1:1000"
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			codes = append(codes, rec.Code)
		}
		assert.Equal(t, []int{200, 200, 429}, codes)
	})
}
