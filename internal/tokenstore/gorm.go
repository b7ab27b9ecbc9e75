package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fuomag9/swasthya-link/internal/models"
)

// GormStore keeps the record as a single row keyed by provider name
type GormStore struct {
	db       *gorm.DB
	provider string
}

// NewGormStore creates a database-backed store for one provider
func NewGormStore(db *gorm.DB, provider string) *GormStore {
	return &GormStore{db: db, provider: provider}
}

func (s *GormStore) Load(ctx context.Context) (*Record, bool, error) {
	var row models.WearableToken
	err := s.db.WithContext(ctx).Where("provider = ?", s.provider).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load token record: %w", err)
	}

	return &Record{
		AccessToken:    row.AccessToken,
		RefreshToken:   row.RefreshToken,
		ExpiresAt:      row.ExpiresAt,
		TokenType:      row.TokenType,
		Scope:          row.Scope,
		ReauthRequired: row.ReauthRequired,
	}, true, nil
}

func (s *GormStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("token record is nil")
	}

	row := models.WearableToken{
		Provider:       s.provider,
		AccessToken:    rec.AccessToken,
		RefreshToken:   rec.RefreshToken,
		ExpiresAt:      rec.ExpiresAt,
		TokenType:      rec.TokenType,
		Scope:          rec.Scope,
		ReauthRequired: rec.ReauthRequired,
	}

	// Full overwrite: every column is replaced on conflict
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save token record: %w", err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context) error {
	err := s.db.WithContext(ctx).Where("provider = ?", s.provider).Delete(&models.WearableToken{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete token record: %w", err)
	}
	return nil
}
