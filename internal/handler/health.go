package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type GrantCounter interface {
	Count(ctx context.Context) (int, error)
}

// Health reports liveness plus the number of unexpired grants.
func Health(grants GrantCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		}

		count, err := grants.Count(r.Context())
		if err != nil {
			log.Warn().Err(err).Msg("health: failed to count grants")
			body["status"] = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["activeGrants"] = count

		writeJSON(w, http.StatusOK, body)
	}
}
