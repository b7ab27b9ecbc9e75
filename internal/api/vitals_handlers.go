package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fuomag9/swasthya-link/internal/models"
	"github.com/fuomag9/swasthya-link/internal/notification"
	"github.com/fuomag9/swasthya-link/internal/risk"
	"github.com/fuomag9/swasthya-link/internal/websocket"
)

// Alerter relays alerts and lists past ones
type Alerter interface {
	Alert(ctx context.Context, eventType, text string) (*notification.AlertOutcome, error)
	Events(ctx context.Context, limit int) ([]models.EmergencyEvent, error)
}

// Broadcaster pushes live updates to dashboard clients
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// VitalsResponse is the saved reading, its assessment and any alert raised
type VitalsResponse struct {
	Record     *models.HealthRecord       `json:"record"`
	Assessment risk.Assessment            `json:"assessment"`
	Alert      *notification.AlertOutcome `json:"alert,omitempty"`
}

// HandleCreateVitals scores and stores a reading. A high score triggers the
// emergency protocol.
func HandleCreateVitals(db *gorm.DB, alerts Alerter, hub Broadcaster, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var v risk.Vitals
		if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
			return
		}
		if err := v.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		a := risk.DefaultScorer.Assess(v)
		record := &models.HealthRecord{
			HeartRate:  v.HeartRate,
			SystolicBP: v.SystolicBP,
			BloodSugar: v.BloodSugar,
			RiskScore:  a.Score,
			RiskLabel:  a.Label,
		}
		if err := db.WithContext(r.Context()).Create(record).Error; err != nil {
			log.Error("Failed to save health record", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal", "Failed to save health record")
			return
		}

		resp := VitalsResponse{Record: record, Assessment: a}
		if a.High() {
			out, err := alerts.Alert(r.Context(), models.EventAutoHighRisk, risk.AlertMessage(v, a))
			if err != nil {
				log.Error("Failed to raise high-risk alert", zap.Int("record_id", record.ID), zap.Error(err))
			}
			resp.Alert = out
		}

		if err := hub.Broadcast(websocket.TypeVitals, resp); err != nil {
			log.Warn("Failed to broadcast vitals", zap.Error(err))
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

// HandleGetVitals lists recent readings, newest first
func HandleGetVitals(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var records []models.HealthRecord
		err := db.WithContext(r.Context()).
			Order("created_at DESC, id DESC").
			Limit(queryLimit(r, 50, 500)).
			Find(&records).Error
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "Failed to fetch health records")
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}
