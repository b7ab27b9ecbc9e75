package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fuomag9/swasthya-link/internal/oauth"
	"github.com/fuomag9/swasthya-link/internal/wearable"
)

// writeWearableError maps lifecycle and protocol failures onto responses
func writeWearableError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, wearable.ErrNotConnected):
		writeError(w, http.StatusConflict, "not_connected", "Wearable account not connected")
	case errors.Is(err, wearable.ErrReauthorizationRequired):
		writeError(w, http.StatusConflict, "reauthorization_required", "Wearable reauthorization required")
	case errors.Is(err, oauth.ErrInvalidState):
		writeError(w, http.StatusBadRequest, "invalid_state", "Invalid or expired login state")
	case oauth.IsKind(err, oauth.KindValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case oauth.IsKind(err, oauth.KindTransport):
		writeError(w, http.StatusGatewayTimeout, "provider_unreachable", "Wearable provider unreachable")
	case oauth.IsKind(err, oauth.KindProvider):
		writeError(w, http.StatusBadGateway, "provider_error", err.Error())
	case oauth.IsKind(err, oauth.KindMalformedResponse):
		writeError(w, http.StatusBadGateway, "malformed_response", "Wearable provider sent an unusable response")
	default:
		log.Error("Wearable operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "Wearable operation failed")
	}
}

// HandleWearableStatus reports the stored token state
func HandleWearableStatus(mgr *wearable.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := mgr.Status(r.Context())
		if err != nil {
			writeWearableError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// HandleWearableAuthorize starts a login and returns the provider URL
func HandleWearableAuthorize(mgr *wearable.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attempt, err := mgr.BeginLogin(r.Context())
		if err != nil {
			writeWearableError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, attempt)
	}
}

// HandleWearableCallback completes a login from the provider redirect.
// The state value authenticates this request, so it sits outside the
// dashboard auth group.
func HandleWearableCallback(mgr *wearable.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		state := q.Get("state")

		if providerErr := q.Get("error"); providerErr != "" {
			if err := mgr.AbandonLogin(r.Context(), state); err != nil {
				log.Debug("No pending login for denied callback", zap.Error(err))
			}
			log.Info("Provider denied authorization",
				zap.String("error", providerErr),
				zap.String("description", q.Get("error_description")))
			writeError(w, http.StatusBadRequest, providerErr, "Authorization was not granted")
			return
		}

		if state == "" || q.Get("code") == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid wearable callback")
			return
		}

		st, err := mgr.CompleteLogin(r.Context(), state, q.Get("code"))
		if err != nil {
			writeWearableError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// HandleWearableRefresh forces a token refresh
func HandleWearableRefresh(mgr *wearable.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := mgr.Refresh(r.Context())
		if err != nil {
			writeWearableError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// HandleWearableDisconnect deletes the stored token; ?revoke=false skips revocation
func HandleWearableDisconnect(mgr *wearable.Manager, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		revoke := r.URL.Query().Get("revoke") != "false"
		if err := mgr.Disconnect(r.Context(), revoke); err != nil {
			writeWearableError(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleWearableSync pulls heart-rate samples for ?date=YYYY-MM-DD (default today)
func HandleWearableSync(syncer *wearable.Syncer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day := time.Now()
		if d := r.URL.Query().Get("date"); d != "" {
			parsed, err := time.ParseInLocation(time.DateOnly, d, time.Local)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
				return
			}
			day = parsed
		}

		res, err := syncer.Sync(r.Context(), day)
		if err != nil {
			writeWearableError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
