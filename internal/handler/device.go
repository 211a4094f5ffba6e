package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/deviceauth-go/internal/audit"
	apperrors "github.com/openclaw/deviceauth-go/internal/errors"
	"github.com/openclaw/deviceauth-go/internal/httputil"
	"github.com/openclaw/deviceauth-go/internal/middleware"
	"github.com/openclaw/deviceauth-go/internal/model"
	"github.com/openclaw/deviceauth-go/internal/service"
)

type DeviceHandler struct {
	grants *service.GrantService
}

func NewDeviceHandler(grants *service.GrantService) *DeviceHandler {
	return &DeviceHandler{grants: grants}
}

// DeviceMiddleware groups the middleware the device routes need.
// Nil entries are skipped.
type DeviceMiddleware struct {
	Auth         func(http.Handler) http.Handler
	BeginLimit   func(http.Handler) http.Handler
	ApproveLimit func(http.Handler) http.Handler
}

func (h *DeviceHandler) Routes(mw DeviceMiddleware) chi.Router {
	r := chi.NewRouter()

	r.With(compact(mw.BeginLimit)...).Post("/code", h.BeginPairing)
	r.Post("/token", h.Redeem)

	r.Group(func(r chi.Router) {
		r.Use(compact(mw.Auth, mw.ApproveLimit)...)
		r.Post("/approve", h.Approve)
		r.Post("/deny", h.Deny)
	})

	return r
}

func compact(mws ...func(http.Handler) http.Handler) []func(http.Handler) http.Handler {
	out := make([]func(http.Handler) http.Handler, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// POST /v1/device/code
// Starts a pairing for an unauthenticated device.
func (h *DeviceHandler) BeginPairing(w http.ResponseWriter, r *http.Request) {
	start, err := h.grants.Begin(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to begin pairing")
		httputil.WriteError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventPairingBegin,
		DeviceID: start.DeviceID,
	})
	writeJSON(w, http.StatusOK, start)
}

type pairingCodeRequest struct {
	PairingCode string `json:"pairingCode"`
}

// POST /v1/device/approve
func (h *DeviceHandler) Approve(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		httputil.WriteError(w, apperrors.Unauthenticated("Unauthorized"))
		return
	}

	var req pairingCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.PairingCode == "" {
		httputil.WriteError(w, apperrors.MissingRequired("pairingCode"))
		return
	}

	grant, err := h.grants.Approve(r.Context(), req.PairingCode, account.ID)
	if err != nil {
		if !apperrors.IsAppError(err) {
			log.Error().Err(err).Msg("failed to approve pairing")
		}
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":     "Device approved",
		"pairingCode": grant.PairingCode,
	})
}

// POST /v1/device/deny
// Always succeeds for an authenticated caller unless storage fails.
func (h *DeviceHandler) Deny(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	if account == nil {
		httputil.WriteError(w, apperrors.Unauthenticated("Unauthorized"))
		return
	}

	var req pairingCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.grants.Deny(r.Context(), req.PairingCode, account.ID); err != nil {
		log.Error().Err(err).Msg("failed to deny pairing")
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Device denied"})
}

type redeemRequest struct {
	DeviceID string `json:"deviceId"`
}

// POST /v1/device/token
// Polled by the device until the grant reaches a terminal outcome.
func (h *DeviceHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.grants.Redeem(r.Context(), req.DeviceID)
	if err != nil {
		log.Error().Err(err).Msg("failed to redeem grant")
		httputil.WriteError(w, err)
		return
	}

	switch result.Outcome {
	case model.OutcomeIssued:
		writeJSON(w, http.StatusOK, result.Credential)
	case model.OutcomePending:
		httputil.WriteError(w, apperrors.AuthorizationPending())
	case model.OutcomeDenied:
		httputil.WriteError(w, apperrors.AccessDenied())
	default:
		httputil.WriteError(w, apperrors.Expired())
	}
}
