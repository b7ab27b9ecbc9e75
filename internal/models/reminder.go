package models

import (
	"fmt"
	"strings"
	"time"
)

// MedicineReminder is a daily reminder relayed to the emergency contacts
type MedicineReminder struct {
	ID        int       `json:"id" gorm:"primaryKey;autoIncrement"`
	Medicine  string    `json:"medicine" gorm:"not null"`
	Hour      int       `json:"hour" gorm:"not null"`
	Minute    int       `json:"minute" gorm:"not null"`
	Active    bool      `json:"active" gorm:"default:true;index"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for MedicineReminder
func (MedicineReminder) TableName() string {
	return "medicine_reminders"
}

// Validate checks the reminder fields
func (r *MedicineReminder) Validate() error {
	if strings.TrimSpace(r.Medicine) == "" {
		return fmt.Errorf("medicine name is required")
	}
	if r.Hour < 0 || r.Hour > 23 {
		return fmt.Errorf("hour must be between 0 and 23")
	}
	if r.Minute < 0 || r.Minute > 59 {
		return fmt.Errorf("minute must be between 0 and 59")
	}
	return nil
}

// CronSpec returns the daily cron expression for the reminder
func (r *MedicineReminder) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", r.Minute, r.Hour)
}

// Message returns the text relayed when the reminder fires
func (r *MedicineReminder) Message() string {
	return fmt.Sprintf("Medicine reminder: Take %s at %02d:%02d.", r.Medicine, r.Hour, r.Minute)
}
