package models

import "time"

// Event types recorded for alerts
const (
	EventAutoHighRisk     = "auto_high_risk"
	EventManualTrigger    = "manual_trigger"
	EventMedicineReminder = "medicine_reminder"
)

// EmergencyEvent records every alert relay attempt and its outcome
type EmergencyEvent struct {
	ID            int       `json:"id" gorm:"primaryKey;autoIncrement"`
	EventType     string    `json:"event_type" gorm:"not null;index"`
	Message       string    `json:"message" gorm:"type:text;not null"`
	Status        string    `json:"status" gorm:"not null"` // "k/n sent" or "no_contacts"
	FamilyContact *string   `json:"family_contact,omitempty"`
	DoctorContact *string   `json:"doctor_contact,omitempty"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for EmergencyEvent
func (EmergencyEvent) TableName() string {
	return "emergency_events"
}
