package models

import "time"

// HealthRecord is one set of vitals entered on the dashboard together with
// the risk assessment derived from it
type HealthRecord struct {
	ID         int       `json:"id" gorm:"primaryKey;autoIncrement"`
	HeartRate  float64   `json:"heart_rate" gorm:"not null"`
	SystolicBP float64   `json:"systolic_bp" gorm:"column:systolic_bp;not null"`
	BloodSugar float64   `json:"blood_sugar" gorm:"not null"`
	RiskScore  int       `json:"risk_score" gorm:"not null"`
	RiskLabel  int       `json:"risk_label" gorm:"not null"` // 1 = high risk
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for HealthRecord
func (HealthRecord) TableName() string {
	return "health_records"
}

// HeartRateSample is a single heart-rate reading pulled from the wearable provider
type HeartRateSample struct {
	ID         int       `json:"id" gorm:"primaryKey;autoIncrement"`
	Provider   string    `json:"provider" gorm:"not null;uniqueIndex:idx_sample_provider_time"`
	RecordedAt time.Time `json:"recorded_at" gorm:"not null;uniqueIndex:idx_sample_provider_time"`
	BPM        int       `json:"bpm" gorm:"column:bpm;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for HeartRateSample
func (HeartRateSample) TableName() string {
	return "heart_rate_samples"
}
