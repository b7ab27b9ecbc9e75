package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/fuomag9/swasthya-link/internal/models"
)

const manualEmergencyMessage = "Manual emergency triggered from Swasthya AI. Immediate response requested."

// EmergencyRequest optionally overrides the relayed text
type EmergencyRequest struct {
	Message string `json:"message"`
}

// HandleTriggerEmergency relays a manual emergency to every contact
func HandleTriggerEmergency(alerts Alerter, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EmergencyRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
				return
			}
		}

		text := strings.TrimSpace(req.Message)
		if text == "" {
			text = manualEmergencyMessage
		}

		log.Warn("Manual emergency triggered")
		out, err := alerts.Alert(r.Context(), models.EventManualTrigger, text)
		if err != nil {
			log.Error("Failed to relay emergency", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal", "Failed to relay emergency")
			return
		}
		writeJSON(w, http.StatusAccepted, out)
	}
}

// HandleGetEmergencyEvents lists recorded alerts, newest first
func HandleGetEmergencyEvents(alerts Alerter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := alerts.Events(r.Context(), queryLimit(r, 50, 500))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "Failed to fetch emergency events")
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}
