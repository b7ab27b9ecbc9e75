// Package tokenstore persists the wearable provider's token record.
//
// Exactly one record is kept per provider integration. Save always replaces
// the whole record; Load reports a missing record through its found result
// rather than an error.
package tokenstore

import (
	"context"
	"time"
)

// Record is the persisted token payload. ExpiresAt is computed locally at
// receipt time from the provider's expires_in and stored as unix seconds.
// ReauthRequired marks a grant the provider has revoked; only a new login
// replaces such a record.
type Record struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	ExpiresAt      int64  `json:"expires_at"`
	TokenType      string `json:"token_type"`
	Scope          string `json:"scope"`
	ReauthRequired bool   `json:"reauth_required,omitempty"`
}

// ExpiryTime returns ExpiresAt as a time.Time
func (r *Record) ExpiryTime() time.Time {
	return time.Unix(r.ExpiresAt, 0)
}

// Expired reports whether the access token is at or past its expiry once the
// safety margin is taken into account.
func (r *Record) Expired(now time.Time, margin time.Duration) bool {
	return !now.Add(margin).Before(r.ExpiryTime())
}

// CanRefresh reports whether the record carries a refresh token
func (r *Record) CanRefresh() bool {
	return r.RefreshToken != "" && !r.ReauthRequired
}

// Store is the durable home of the token record
type Store interface {
	// Load returns the saved record. found is false when nothing was ever saved.
	Load(ctx context.Context) (rec *Record, found bool, err error)

	// Save overwrites the stored record.
	Save(ctx context.Context, rec *Record) error

	// Delete removes the stored record. Deleting a missing record is not an error.
	Delete(ctx context.Context) error
}
