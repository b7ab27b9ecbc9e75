package models

import "time"

// OAuthSession represents an in-flight PKCE login, keyed by its state value
type OAuthSession struct {
	ID           int       `json:"id" gorm:"primaryKey;autoIncrement"`
	State        string    `json:"state" gorm:"uniqueIndex;not null"`
	Provider     string    `json:"provider" gorm:"not null"`
	CodeVerifier string    `json:"-" gorm:"not null"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"not null;index"`
}

// TableName specifies the table name for OAuthSession
func (OAuthSession) TableName() string {
	return "oauth_sessions"
}

// WearableToken is the database form of the provider token record.
// Exactly one row exists per provider.
type WearableToken struct {
	Provider     string `gorm:"primaryKey"`
	AccessToken  string `gorm:"type:text;not null"`
	RefreshToken string `gorm:"type:text"`
	ExpiresAt    int64  `gorm:"not null"`
	TokenType    string `gorm:"not null"`
	Scope        string `gorm:"type:text"`
	// set once the provider rejected the refresh token
	ReauthRequired bool `gorm:"not null"`
	UpdatedAt      time.Time
}

// TableName specifies the table name for WearableToken
func (WearableToken) TableName() string {
	return "wearable_tokens"
}

// All returns every model managed by AutoMigrate
func All() []interface{} {
	return []interface{}{
		&HealthRecord{},
		&HeartRateSample{},
		&EmergencyEvent{},
		&MedicineReminder{},
		&OAuthSession{},
		&WearableToken{},
	}
}
