package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventPairingBegin     EventType = "pairing_begin"
	EventPairingApprove   EventType = "pairing_approve"
	EventPairingDeny      EventType = "pairing_deny"
	EventCredentialIssued EventType = "credential_issued"
	EventGrantDenied      EventType = "grant_denied"
	EventRateLimitExceed  EventType = "rate_limit_exceeded"
	EventAuthFailure      EventType = "auth_failure"
)

type Event struct {
	Type      EventType
	AccountID string
	DeviceID  string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

// Log writes a security audit record. Device ids are truncated since they
// act as a bearer secret until redeemed.
func Log(ctx context.Context, event Event) {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}

	l := logger.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.AccountID != "" {
		l = l.With().Str("account_id", event.AccountID).Logger()
	}
	if event.DeviceID != "" {
		l = l.With().Str("device_id", truncate(event.DeviceID)).Logger()
	}
	if event.IP != "" {
		l = l.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		l = l.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := l.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
// The headers are caller-controlled, so this is for audit display, not for rate limit keys.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func truncate(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
