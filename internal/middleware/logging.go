package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/deviceauth-go/internal/httputil"
)

// NewRequestLogger attaches logger to each request context and writes one
// access line per request. Pending polls are logged at debug.
func NewRequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			var e *zerolog.Event
			switch {
			case status >= http.StatusInternalServerError:
				e = hlog.FromRequest(r).Error()
			case status == httputil.StatusAuthorizationPending:
				e = hlog.FromRequest(r).Debug()
			default:
				e = hlog.FromRequest(r).Info()
			}
			e.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("request")
		})(next)
		h = hlog.UserAgentHandler("user_agent")(h)
		h = hlog.RemoteAddrHandler("ip")(h)
		h = requestIDField(h)
		return hlog.NewHandler(logger)(h)
	}
}

// RequestLogger uses the global logger.
func RequestLogger(next http.Handler) http.Handler {
	return NewRequestLogger(log.Logger)(next)
}

func requestIDField(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("req_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}
