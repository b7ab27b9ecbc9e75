package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fuomag9/swasthya-link/internal/models"
)

// DefaultSessionTTL bounds how long a login attempt may stay pending
const DefaultSessionTTL = 10 * time.Minute

// Session is a pending login attempt. It binds the state sent to the
// provider to the PKCE verifier that must accompany the code exchange.
type Session struct {
	State        string
	Provider     string
	CodeVerifier string
	RedirectURI  string
	ExpiresAt    time.Time
}

// SessionStore keeps pending login attempts until their callback arrives
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	// Consume returns and removes the session for state. Unknown, already
	// consumed and expired states yield ErrInvalidState.
	Consume(ctx context.Context, state string) (*Session, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// GormSessionStore persists sessions in the oauth_sessions table
type GormSessionStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormSessionStore creates a session store backed by db
func NewGormSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db, now: time.Now}
}

func (s *GormSessionStore) Save(ctx context.Context, sess *Session) error {
	row := models.OAuthSession{
		State:        sess.State,
		Provider:     sess.Provider,
		CodeVerifier: sess.CodeVerifier,
		RedirectURI:  sess.RedirectURI,
		ExpiresAt:    sess.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save oauth session: %w", err)
	}
	return nil
}

func (s *GormSessionStore) Consume(ctx context.Context, state string) (*Session, error) {
	if state == "" {
		return nil, ErrInvalidState
	}

	var row models.OAuthSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("state = ?", state).First(&row).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.OAuthSession{}, row.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// consumed concurrently
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume oauth session: %w", err)
	}

	if !s.now().Before(row.ExpiresAt) {
		return nil, ErrInvalidState
	}

	return &Session{
		State:        row.State,
		Provider:     row.Provider,
		CodeVerifier: row.CodeVerifier,
		RedirectURI:  row.RedirectURI,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}

func (s *GormSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", s.now()).Delete(&models.OAuthSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired oauth sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
