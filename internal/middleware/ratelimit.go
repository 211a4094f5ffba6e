package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/openclaw/deviceauth-go/internal/audit"
	apperrors "github.com/openclaw/deviceauth-go/internal/errors"
	"github.com/openclaw/deviceauth-go/internal/httputil"
	"github.com/openclaw/deviceauth-go/internal/service"
)

// KeyFunc picks the rate limit bucket for a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// ClientIPKey buckets by the peer address. Forwarding headers are ignored here;
// chi's RealIP middleware has already applied them to RemoteAddr.
func ClientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// AccountKey buckets by the authenticated account. Must run after AuthMiddleware.
func AccountKey(r *http.Request) string {
	if account := GetAccount(r.Context()); account != nil {
		return "account:" + account.ID
	}
	return ""
}

type RateLimitMiddleware struct {
	limiter service.RateLimiter
	limit   int
	window  time.Duration
	prefix  string
	key     KeyFunc
}

func NewRateLimitMiddleware(
	limiter service.RateLimiter,
	limit int,
	window time.Duration,
	prefix string,
	key KeyFunc,
) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
		key:     key,
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bucket := m.key(r)
		if bucket == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("%s:%s", m.prefix, bucket)
		allowed, resetAt := m.limiter.CheckLimit(r.Context(), key, m.limit, m.window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			secondsLeft := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(secondsLeft))
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"bucket": m.prefix},
			})
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
