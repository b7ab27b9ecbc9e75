package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fuomag9/swasthya-link/internal/models"
	"github.com/fuomag9/swasthya-link/internal/notification"
)

// ReminderScheduler keeps the cron entries for reminders in step with the table
type ReminderScheduler interface {
	ScheduleReminder(r *models.MedicineReminder) error
	UnscheduleReminder(reminderID int)
	NextReminder(reminderID int) (time.Time, bool)
}

// ReminderRequest creates a daily reminder at Time (HH:MM, 24h). NotifyNow
// also relays the reminder text to the contacts straight away.
type ReminderRequest struct {
	Medicine  string `json:"medicine"`
	Time      string `json:"time"`
	NotifyNow bool   `json:"notify_now"`
}

// ReminderResponse is a reminder with its next fire time
type ReminderResponse struct {
	models.MedicineReminder
	NextRun *time.Time                 `json:"next_run,omitempty"`
	Alert   *notification.AlertOutcome `json:"alert,omitempty"`
}

func withNextRun(s ReminderScheduler, r models.MedicineReminder) ReminderResponse {
	resp := ReminderResponse{MedicineReminder: r}
	if next, ok := s.NextReminder(r.ID); ok {
		resp.NextRun = &next
	}
	return resp
}

// HandleGetReminders lists active reminders
func HandleGetReminders(db *gorm.DB, sched ReminderScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reminders []models.MedicineReminder
		err := db.WithContext(r.Context()).
			Where("active = ?", true).
			Order("hour, minute, id").
			Find(&reminders).Error
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "Failed to fetch reminders")
			return
		}

		resp := make([]ReminderResponse, 0, len(reminders))
		for _, rem := range reminders {
			resp = append(resp, withNextRun(sched, rem))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleCreateReminder stores and schedules a daily reminder
func HandleCreateReminder(db *gorm.DB, sched ReminderScheduler, alerts Alerter, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReminderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
			return
		}

		at, err := time.Parse("15:04", strings.TrimSpace(req.Time))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "time must be HH:MM")
			return
		}

		reminder := models.MedicineReminder{
			Medicine: strings.TrimSpace(req.Medicine),
			Hour:     at.Hour(),
			Minute:   at.Minute(),
			Active:   true,
		}
		if err := reminder.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		if err := db.WithContext(r.Context()).Create(&reminder).Error; err != nil {
			log.Error("Failed to create reminder", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal", "Failed to create reminder")
			return
		}
		if err := sched.ScheduleReminder(&reminder); err != nil {
			log.Error("Failed to schedule reminder", zap.Int("reminder_id", reminder.ID), zap.Error(err))
			// an unscheduled row must not come back on the next start
			if err := db.WithContext(r.Context()).Delete(&reminder).Error; err != nil {
				log.Error("Failed to remove unscheduled reminder", zap.Int("reminder_id", reminder.ID), zap.Error(err))
			}
			writeError(w, http.StatusInternalServerError, "internal", "Failed to schedule reminder")
			return
		}

		log.Info("Reminder scheduled",
			zap.Int("reminder_id", reminder.ID),
			zap.String("medicine", reminder.Medicine),
			zap.String("at", req.Time))

		resp := withNextRun(sched, reminder)
		if req.NotifyNow {
			out, err := alerts.Alert(r.Context(), models.EventMedicineReminder, reminder.Message())
			if err != nil {
				log.Error("Failed to relay reminder", zap.Int("reminder_id", reminder.ID), zap.Error(err))
			}
			resp.Alert = out
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

// HandleDeleteReminder deactivates and unschedules a reminder
func HandleDeleteReminder(db *gorm.DB, sched ReminderScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid reminder ID")
			return
		}

		var reminder models.MedicineReminder
		err = db.WithContext(r.Context()).Where("id = ? AND active = ?", id, true).First(&reminder).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Reminder not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "Failed to fetch reminder")
			return
		}

		if err := db.WithContext(r.Context()).Model(&reminder).Update("active", false).Error; err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "Failed to delete reminder")
			return
		}
		sched.UnscheduleReminder(id)

		w.WriteHeader(http.StatusNoContent)
	}
}
