package wearable

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fuomag9/swasthya-link/internal/config"
	"github.com/fuomag9/swasthya-link/internal/oauth"
	"github.com/fuomag9/swasthya-link/internal/tokenstore"
)

var (
	// ErrNotConnected means no token record exists; the user must log in
	ErrNotConnected = errors.New("wearable account not connected")
	// ErrReauthorizationRequired means the stored grant can no longer be
	// refreshed and the user must log in again
	ErrReauthorizationRequired = errors.New("wearable reauthorization required")
	// ErrAccessTokenRejected is returned by a Use callback when the provider
	// API answered 401 to the current access token
	ErrAccessTokenRejected = errors.New("access token rejected by provider")
)

// TokenState describes the stored token at a point in time
type TokenState string

const (
	StateNoToken TokenState = "no_token"
	StateValid   TokenState = "valid"
	StateExpired TokenState = "expired"
)

const defaultExpiryMargin = 60 * time.Second

// LoginAttempt is the result of starting a login
type LoginAttempt struct {
	URL       string    `json:"authorize_url"`
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Status reports the connection state without touching the network
type Status struct {
	Provider       string     `json:"provider"`
	State          TokenState `json:"state"`
	Connected      bool       `json:"connected"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Scope          string     `json:"scope,omitempty"`
	CanRefresh     bool       `json:"can_refresh"`
	ReauthRequired bool       `json:"reauth_required"`
}

// Manager owns the token lifecycle for the configured provider: login,
// lazy refresh before use, forced refresh and disconnect. The token store
// is re-read on every operation so external edits are picked up.
type Manager struct {
	cfg      config.WearableConfig
	client   *oauth.Client
	store    tokenstore.Store
	sessions oauth.SessionStore
	log      *zap.Logger
	now      func() time.Time
	margin   time.Duration

	// serializes check, refresh and use of the token
	mu sync.Mutex
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithManagerClock sets the clock used for expiry checks and session TTLs
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a lifecycle manager
func NewManager(cfg config.WearableConfig, client *oauth.Client, store tokenstore.Store, sessions oauth.SessionStore, log *zap.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:      cfg,
		client:   client,
		store:    store,
		sessions: sessions,
		log:      log.Named("wearable"),
		now:      time.Now,
		margin:   cfg.ExpiryMargin,
	}
	// zero is a valid policy: refresh only once the token has expired
	if m.margin < 0 {
		m.margin = defaultExpiryMargin
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Provider returns the provider profile name
func (m *Manager) Provider() string {
	return m.client.Profile().Name
}

// BeginLogin creates a pending login attempt and returns the URL the user
// must visit to grant access.
func (m *Manager) BeginLogin(ctx context.Context) (*LoginAttempt, error) {
	profile := m.client.Profile()
	pair := oauth.NewPKCEPair()
	state := oauth.NewState()

	ttl := m.cfg.SessionTTL
	if ttl <= 0 {
		ttl = oauth.DefaultSessionTTL
	}
	expiresAt := m.now().Add(ttl)

	err := m.sessions.Save(ctx, &oauth.Session{
		State:        state,
		Provider:     profile.Name,
		CodeVerifier: pair.Verifier,
		RedirectURI:  m.cfg.RedirectURL,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		return nil, err
	}

	url := oauth.BuildAuthorizeURL(profile, oauth.AuthorizationRequest{
		ClientID:      m.cfg.ClientID,
		RedirectURI:   m.cfg.RedirectURL,
		Scope:         profile.Scope(),
		State:         state,
		CodeChallenge: pair.Challenge,
	})

	m.log.Info("Login started", zap.String("provider", profile.Name), zap.Time("expires_at", expiresAt))
	return &LoginAttempt{URL: url, State: state, ExpiresAt: expiresAt}, nil
}

// CompleteLogin validates the callback state, exchanges the code and
// stores the resulting token, replacing any previous one.
func (m *Manager) CompleteLogin(ctx context.Context, state, code string) (*Status, error) {
	sess, err := m.sessions.Consume(ctx, state)
	if err != nil {
		return nil, err
	}
	if sess.Provider != m.Provider() {
		return nil, oauth.ErrInvalidState
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.client.ExchangeCode(ctx, oauth.ExchangeRequest{
		ClientID:     m.cfg.ClientID,
		ClientSecret: m.cfg.ClientSecret,
		Code:         code,
		RedirectURI:  sess.RedirectURI,
		CodeVerifier: sess.CodeVerifier,
	})
	if err != nil {
		m.log.Warn("Code exchange failed", zap.Error(err))
		return nil, err
	}

	if err := m.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	m.log.Info("Wearable account connected",
		zap.String("provider", m.Provider()),
		zap.String("scope", rec.Scope),
		zap.Time("expires_at", rec.ExpiryTime()))
	return m.statusOf(rec, true), nil
}

// AbandonLogin discards a pending login, e.g. after the user denied access
func (m *Manager) AbandonLogin(ctx context.Context, state string) error {
	_, err := m.sessions.Consume(ctx, state)
	return err
}

// Status reports the stored token state
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	rec, found, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return m.statusOf(rec, found), nil
}

func (m *Manager) statusOf(rec *tokenstore.Record, found bool) *Status {
	st := &Status{
		Provider: m.Provider(),
		State:    StateNoToken,
	}
	if !found {
		return st
	}
	// a revoked grant is as good as no token until the next login
	if rec.ReauthRequired {
		st.ReauthRequired = true
		return st
	}

	exp := rec.ExpiryTime()
	st.Connected = true
	st.ExpiresAt = &exp
	st.Scope = rec.Scope
	st.CanRefresh = rec.CanRefresh()
	st.State = StateValid
	if rec.Expired(m.now(), m.margin) {
		st.State = StateExpired
		st.ReauthRequired = !st.CanRefresh
	}
	return st
}

// Use runs fn with a valid token, refreshing it first when it is expired
// or about to expire. If fn reports ErrAccessTokenRejected the token is
// refreshed once and fn is retried.
func (m *Manager) Use(ctx context.Context, fn func(ctx context.Context, rec *tokenstore.Record) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, found, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotConnected
	}
	if rec.ReauthRequired {
		return ErrReauthorizationRequired
	}

	if rec.Expired(m.now(), m.margin) {
		m.log.Debug("Access token expiring, refreshing", zap.Time("expires_at", rec.ExpiryTime()))
		if rec, err = m.refreshLocked(ctx, rec); err != nil {
			return err
		}
	}

	err = fn(ctx, rec)
	if !errors.Is(err, ErrAccessTokenRejected) {
		return err
	}

	m.log.Info("Access token rejected by provider, refreshing")
	if rec, err = m.refreshLocked(ctx, rec); err != nil {
		return err
	}
	return fn(ctx, rec)
}

// Refresh forces a refresh regardless of the current expiry
func (m *Manager) Refresh(ctx context.Context) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, found, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotConnected
	}

	rec, err = m.refreshLocked(ctx, rec)
	if err != nil {
		return nil, err
	}
	return m.statusOf(rec, true), nil
}

// refreshLocked must be called with mu held. A failed refresh leaves the
// stored record untouched, except that a rejected grant is marked so the
// revoked refresh token is never sent again.
func (m *Manager) refreshLocked(ctx context.Context, rec *tokenstore.Record) (*tokenstore.Record, error) {
	if !rec.CanRefresh() {
		return nil, ErrReauthorizationRequired
	}

	next, err := m.client.RefreshToken(ctx, oauth.RefreshRequest{
		ClientID:     m.cfg.ClientID,
		ClientSecret: m.cfg.ClientSecret,
		RefreshToken: rec.RefreshToken,
	})
	if err != nil {
		if oauth.IsInvalidGrant(err) {
			m.log.Warn("Refresh token rejected, reauthorization required", zap.Error(err))
			m.markRevoked(ctx, rec)
			return nil, fmt.Errorf("%w: %w", ErrReauthorizationRequired, err)
		}
		m.log.Warn("Token refresh failed", zap.Error(err))
		return nil, err
	}

	if err := m.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to store refreshed token: %w", err)
	}

	m.log.Info("Access token refreshed", zap.Time("expires_at", next.ExpiryTime()))
	return next, nil
}

// markRevoked persists the rejected grant without its refresh token. The
// caller's error is what matters, so a failed write is only logged.
func (m *Manager) markRevoked(ctx context.Context, rec *tokenstore.Record) {
	revoked := *rec
	revoked.RefreshToken = ""
	revoked.ReauthRequired = true
	if err := m.store.Save(ctx, &revoked); err != nil {
		m.log.Error("Failed to mark token as revoked", zap.Error(err))
	}
}

// Disconnect deletes the stored token. With revoke set the provider is
// asked to invalidate the grant first; a failed revocation is logged and
// does not keep the token.
func (m *Manager) Disconnect(ctx context.Context, revoke bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, found, err := m.store.Load(ctx)
	if err != nil {
		return err
	}

	if found && revoke {
		token := rec.RefreshToken
		if token == "" {
			token = rec.AccessToken
		}
		if err := m.client.RevokeToken(ctx, m.cfg.ClientID, m.cfg.ClientSecret, token); err != nil {
			m.log.Warn("Token revocation failed", zap.Error(err))
		}
	}

	if err := m.store.Delete(ctx); err != nil {
		return err
	}

	m.log.Info("Wearable account disconnected", zap.Bool("revoked", found && revoke))
	return nil
}
