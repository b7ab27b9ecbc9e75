package wearable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fuomag9/swasthya-link/internal/config"
	"github.com/fuomag9/swasthya-link/internal/oauth"
	"github.com/fuomag9/swasthya-link/internal/tokenstore"
)

var t0 = time.Unix(1_700_000_000, 0)

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*oauth.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*oauth.Session)}
}

func (m *memSessions) Save(_ context.Context, s *oauth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.State] = s
	return nil
}

func (m *memSessions) Consume(_ context.Context, state string) (*oauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[state]
	if !ok {
		return nil, oauth.ErrInvalidState
	}
	delete(m.sessions, state)
	return s, nil
}

func (m *memSessions) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

// fakeProvider serves the token, revoke and heart-rate endpoints
type fakeProvider struct {
	*httptest.Server

	exchanges atomic.Int32
	refreshes atomic.Int32
	revokes   atomic.Int32
	apiCalls  atomic.Int32

	mu            sync.Mutex
	challenge     string
	refreshStatus int
	refreshBody   string
	validAccess   string
	heartRateBody string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{
		refreshStatus: http.StatusOK,
		refreshBody:   `{"access_token":"A2","refresh_token":"R2","expires_in":3600,"token_type":"Bearer","scope":"heartrate"}`,
		heartRateBody: `{"activities-heart-intraday":{"dataset":[]}}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		p.mu.Lock()
		defer p.mu.Unlock()

		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			p.exchanges.Add(1)
			if oauth.ChallengeFromVerifier(r.PostForm.Get("code_verifier")) != p.challenge || r.PostForm.Get("code") != "C" {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"invalid_grant"}`)
				return
			}
			fmt.Fprint(w, `{"access_token":"A","refresh_token":"R","expires_in":3600,"token_type":"Bearer","scope":"heartrate"}`)
		case "refresh_token":
			p.refreshes.Add(1)
			// give concurrent callers a chance to pile up
			time.Sleep(20 * time.Millisecond)
			w.WriteHeader(p.refreshStatus)
			fmt.Fprint(w, p.refreshBody)
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"unsupported_grant_type"}`)
		}
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		p.revokes.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/hr/", func(w http.ResponseWriter, r *http.Request) {
		p.apiCalls.Add(1)
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.validAccess != "" && r.Header.Get("Authorization") != "Bearer "+p.validAccess {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, p.heartRateBody)
	})

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *fakeProvider) set(fn func(p *fakeProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *fakeProvider) profile() oauth.Profile {
	return oauth.Profile{
		Name:          "fitbit",
		AuthURL:       p.URL + "/authorize",
		TokenURL:      p.URL + "/token",
		RevokeURL:     p.URL + "/revoke",
		AuthStyle:     oauth2.AuthStyleInParams,
		DefaultScopes: []string{"heartrate"},
		HeartRateURL:  p.URL + "/hr/{date}.json",
		HeartRatePath: "activities-heart-intraday.dataset",
	}
}

type harness struct {
	provider *fakeProvider
	store    *tokenstore.FileStore
	sessions *memSessions
	manager  *Manager
	now      atomic.Pointer[time.Time]
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithMargin(t, time.Minute)
}

func newHarnessWithMargin(t *testing.T, margin time.Duration) *harness {
	t.Helper()
	h := &harness{
		provider: newFakeProvider(t),
		sessions: newMemSessions(),
	}
	h.setNow(t0)

	store, err := tokenstore.NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, err)
	h.store = store

	clock := func() time.Time { return *h.now.Load() }
	client := oauth.NewClient(h.provider.profile(), oauth.WithTimeout(5*time.Second), oauth.WithClock(clock))
	cfg := config.WearableConfig{
		Provider:     "fitbit",
		ClientID:     "client-1",
		RedirectURL:  "http://localhost:8080/api/wearable/callback",
		ExpiryMargin: margin,
		SessionTTL:   10 * time.Minute,
	}
	h.manager = NewManager(cfg, client, store, h.sessions, zap.NewNop(), WithManagerClock(clock))
	return h
}

func (h *harness) setNow(t time.Time) {
	h.now.Store(&t)
}

func (h *harness) seed(t *testing.T, rec *tokenstore.Record) {
	t.Helper()
	require.NoError(t, h.store.Save(context.Background(), rec))
}

func (h *harness) stored(t *testing.T) *tokenstore.Record {
	t.Helper()
	rec, found, err := h.store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	return rec
}

func TestManager_LoginRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	attempt, err := h.manager.BeginLogin(ctx)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(10*time.Minute), attempt.ExpiresAt)

	u, err := url.Parse(attempt.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, attempt.State, q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "heartrate", q.Get("scope"))
	h.provider.set(func(p *fakeProvider) { p.challenge = q.Get("code_challenge") })

	st, err := h.manager.CompleteLogin(ctx, attempt.State, "C")
	require.NoError(t, err)
	assert.Equal(t, StateValid, st.State)
	assert.True(t, st.Connected)

	rec := h.stored(t)
	assert.Equal(t, "A", rec.AccessToken)
	assert.Equal(t, "R", rec.RefreshToken)
	assert.Equal(t, t0.Unix()+3600, rec.ExpiresAt)

	_, err = h.manager.CompleteLogin(ctx, attempt.State, "C")
	assert.ErrorIs(t, err, oauth.ErrInvalidState, "state is single use")
	assert.EqualValues(t, 1, h.provider.exchanges.Load())
}

func TestManager_CompleteLoginRejectsUnknownState(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.CompleteLogin(context.Background(), "forged", "C")

	assert.ErrorIs(t, err, oauth.ErrInvalidState)
	assert.Zero(t, h.provider.exchanges.Load())
}

func TestManager_CompleteLoginFailureKeepsPreviousToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	prev := &tokenstore.Record{AccessToken: "old", RefreshToken: "oldR", ExpiresAt: t0.Unix() + 100, TokenType: "Bearer"}
	h.seed(t, prev)

	attempt, err := h.manager.BeginLogin(ctx)
	require.NoError(t, err)

	_, err = h.manager.CompleteLogin(ctx, attempt.State, "wrong-code")
	assert.True(t, oauth.IsKind(err, oauth.KindProvider))
	assert.Equal(t, prev, h.stored(t))
}

func TestManager_Status(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	st, err := h.manager.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateNoToken, st.State)
	assert.False(t, st.Connected)

	h.seed(t, &tokenstore.Record{AccessToken: "A", RefreshToken: "R", ExpiresAt: t0.Unix() + 3600, TokenType: "Bearer", Scope: "heartrate"})
	st, err = h.manager.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateValid, st.State)
	assert.True(t, st.CanRefresh)
	assert.Equal(t, "heartrate", st.Scope)

	h.setNow(t0.Add(3570 * time.Second))
	st, err = h.manager.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateExpired, st.State, "inside the expiry margin")
	assert.Zero(t, h.provider.refreshes.Load(), "status never refreshes")
}

func TestManager_UseValidTokenMakesNoRefresh(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &tokenstore.Record{AccessToken: "A", RefreshToken: "R", ExpiresAt: t0.Unix() + 3600, TokenType: "Bearer"})

	for i := 0; i < 5; i++ {
		err := h.manager.Use(context.Background(), func(_ context.Context, rec *tokenstore.Record) error {
			assert.Equal(t, "A", rec.AccessToken)
			return nil
		})
		require.NoError(t, err)
	}

	assert.Zero(t, h.provider.refreshes.Load())
}

func TestManager_UseRefreshesExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &tokenstore.Record{AccessToken: "A", RefreshToken: "R", ExpiresAt: t0.Unix() + 30, TokenType: "Bearer"})

	var got string
	err := h.manager.Use(context.Background(), func(_ context.Context, rec *tokenstore.Record) error {
		got = rec.AccessToken
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "A2", got)
	assert.EqualValues(t, 1, h.provider.refreshes.Load())
	rec := h.stored(t)
	assert.Equal(t, "A2", rec.AccessToken)
	assert.Equal(t, "R2", rec.RefreshToken)
	assert.Equal(t, t0.Unix()+3600, rec.ExpiresAt)
}

func TestManager_ConcurrentUseRefreshesOnce(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &tokenstore.Record{AccessToken: "A", RefreshToken: "R", ExpiresAt: t0.Unix() - 10, TokenType: "Bearer"})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.manager.Use(context.Background(), func(_ context.Context, rec *tokenstore.Record) error {
				if rec.AccessToken != "A2" {
					return fmt.Errorf("got stale token %q", rec.AccessToken)
				}
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, h.provider.refreshes.Load())
}

func TestManager_UseRetriesOnceWhenProviderRejectsToken(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &tokenstore.Record{AccessToken: "A", RefreshToken: "R", ExpiresAt: t0.Unix() + 3600, TokenType: "Bearer"})

	var seen []string
	err := h.manager.Use(context.Background(), func(_ context.Context, rec *tokenstore.Record) error {
		seen = append(seen, rec.AccessToken)
		if rec.AccessToken == "A" {
			return ErrAccessTokenRejected
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "A2"}, seen)
	assert.EqualValues(t, 1, h.provider.refreshes.Load())
}

func TestManager_RefreshFailures(t *testing.T) {
	prev := &tokenstore.Record{AccessToken: "A", RefreshToken: "R", ExpiresAt: t0.Unix() - 10, TokenType: "Bearer"}

	t.Run("invalid grant requires reauthorization", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, prev)
		h.provider.set(func(p *fakeProvider) {
			p.refreshStatus = http.StatusBadRequest
			p.refreshBody = `{"error":"invalid_grant","error_description":"Refresh token invalid"}`
		})

		called := false
		err := h.manager.Use(context.Background(), func(context.Context, *tokenstore.Record) error {
			called = true
			return nil
		})

		assert.ErrorIs(t, err, ErrReauthorizationRequired)
		assert.True(t, oauth.IsInvalidGrant(err))
		assert.False(t, called)

		rec := h.stored(t)
		assert.True(t, rec.ReauthRequired)
		assert.Empty(t, rec.RefreshToken, "revoked refresh token is dropped")
		assert.Equal(t, prev.AccessToken, rec.AccessToken)

		st, err := h.manager.Status(context.Background())
		require.NoError(t, err)
		assert.True(t, st.ReauthRequired)
	})

	t.Run("server error keeps token and flag", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, prev)
		h.provider.set(func(p *fakeProvider) {
			p.refreshStatus = http.StatusInternalServerError
			p.refreshBody = `{"error":"server_error"}`
		})

		_, err := h.manager.Refresh(context.Background())

		assert.True(t, oauth.IsKind(err, oauth.KindProvider))
		assert.False(t, errors.Is(err, ErrReauthorizationRequired))
		assert.Equal(t, prev, h.stored(t))

		st, err := h.manager.Status(context.Background())
		require.NoError(t, err)
		assert.False(t, st.ReauthRequired)
	})

	t.Run("malformed response keeps token", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, prev)
		h.provider.set(func(p *fakeProvider) { p.refreshBody = `{"token_type":"Bearer"}` })

		_, err := h.manager.Refresh(context.Background())

		assert.True(t, oauth.IsKind(err, oauth.KindMalformedResponse))
		assert.Equal(t, prev, h.stored(t))
	})

	t.Run("no refresh token", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, &tokenstore.Record{AccessToken: "A", ExpiresAt: t0.Unix() - 10, TokenType: "Bearer"})

		err := h.manager.Use(context.Background(), func(context.Context, *tokenstore.Record) error { return nil })

		assert.ErrorIs(t, err, ErrReauthorizationRequired)
		assert.Zero(t, h.provider.refreshes.Load())
	})
}

func TestManager_RevokedGrantIsNotRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, &tokenstore.Record{AccessToken: "A", RefreshToken: "R", ExpiresAt: t0.Unix() - 10, TokenType: "Bearer"})
	h.provider.set(func(p *fakeProvider) {
		p.refreshStatus = http.StatusBadRequest
		p.refreshBody = `{"error":"invalid_grant"}`
	})

	for i := 0; i < 3; i++ {
		err := h.manager.Use(ctx, func(context.Context, *tokenstore.Record) error { return nil })
		assert.ErrorIs(t, err, ErrReauthorizationRequired)
	}
	_, err := h.manager.Refresh(ctx)
	assert.ErrorIs(t, err, ErrReauthorizationRequired)
	assert.EqualValues(t, 1, h.provider.refreshes.Load())

	st, err := h.manager.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateNoToken, st.State)
	assert.False(t, st.Connected)
	assert.False(t, st.CanRefresh)
	assert.True(t, st.ReauthRequired)

	// a second process over the same store sees the same state
	client := oauth.NewClient(h.provider.profile(), oauth.WithTimeout(5*time.Second))
	other := NewManager(config.WearableConfig{ClientID: "client-1", ExpiryMargin: time.Minute}, client, h.store, h.sessions, zap.NewNop(),
		WithManagerClock(func() time.Time { return t0 }))
	st, err = other.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.ReauthRequired)
	err = other.Use(ctx, func(context.Context, *tokenstore.Record) error { return nil })
	assert.ErrorIs(t, err, ErrReauthorizationRequired)
	assert.EqualValues(t, 1, h.provider.refreshes.Load())

	// only a new login clears it
	attempt, err := h.manager.BeginLogin(ctx)
	require.NoError(t, err)
	u, err := url.Parse(attempt.URL)
	require.NoError(t, err)
	h.provider.set(func(p *fakeProvider) { p.challenge = u.Query().Get("code_challenge") })

	st, err = h.manager.CompleteLogin(ctx, attempt.State, "C")
	require.NoError(t, err)
	assert.Equal(t, StateValid, st.State)
	assert.False(t, st.ReauthRequired)
	assert.False(t, h.stored(t).ReauthRequired)
}

func TestManager_ZeroMarginRefreshesOnlyAfterExpiry(t *testing.T) {
	h := newHarnessWithMargin(t, 0)
	h.seed(t, &tokenstore.Record{AccessToken: "A", RefreshToken: "R", ExpiresAt: t0.Unix() + 30, TokenType: "Bearer"})

	use := func() string {
		var got string
		err := h.manager.Use(context.Background(), func(_ context.Context, rec *tokenstore.Record) error {
			got = rec.AccessToken
			return nil
		})
		require.NoError(t, err)
		return got
	}

	assert.Equal(t, "A", use())
	assert.Zero(t, h.provider.refreshes.Load())

	h.setNow(t0.Add(30 * time.Second))
	assert.Equal(t, "A2", use())
	assert.EqualValues(t, 1, h.provider.refreshes.Load())
}

func TestManager_RefreshClearsReauthFlag(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &tokenstore.Record{AccessToken: "A", ExpiresAt: t0.Unix() - 10, TokenType: "Bearer"})
	_, err := h.manager.Refresh(context.Background())
	require.ErrorIs(t, err, ErrReauthorizationRequired)

	h.seed(t, &tokenstore.Record{AccessToken: "A", RefreshToken: "R", ExpiresAt: t0.Unix() - 10, TokenType: "Bearer"})
	st, err := h.manager.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, st.ReauthRequired)
	assert.Equal(t, StateValid, st.State)
}

func TestManager_NotConnected(t *testing.T) {
	h := newHarness(t)

	err := h.manager.Use(context.Background(), func(context.Context, *tokenstore.Record) error { return nil })
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = h.manager.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestManager_Disconnect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, &tokenstore.Record{AccessToken: "A", RefreshToken: "R", ExpiresAt: t0.Unix() + 3600, TokenType: "Bearer"})

	require.NoError(t, h.manager.Disconnect(ctx, true))

	assert.EqualValues(t, 1, h.provider.revokes.Load())
	_, found, err := h.store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	// idempotent without a token
	require.NoError(t, h.manager.Disconnect(ctx, true))
	assert.EqualValues(t, 1, h.provider.revokes.Load())
}

func TestLoginAttemptJSON(t *testing.T) {
	b, err := json.Marshal(LoginAttempt{URL: "https://x", State: "s", ExpiresAt: t0.UTC()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"authorize_url":"https://x","state":"s","expires_at":"2023-11-14T22:13:20Z"}`, string(b))
}
