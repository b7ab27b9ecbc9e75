package oauth

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/fuomag9/swasthya-link/internal/tokenstore"
)

const defaultHTTPTimeout = 20 * time.Second

// Client performs the token endpoint operations for one provider profile
type Client struct {
	profile    Profile
	httpClient *http.Client
	now        func() time.Time
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithTimeout bounds every outbound request
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client. Its timeout is used as is.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClock sets the clock used to compute expiry timestamps
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a token endpoint client for a provider profile
func NewClient(profile Profile, opts ...ClientOption) *Client {
	c := &Client{
		profile:    profile,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Profile returns the provider profile this client talks to
func (c *Client) Profile() Profile {
	return c.profile
}

// HTTPClient returns the bounded HTTP client, for provider API calls made
// with an access token obtained here.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// ExchangeRequest carries the inputs of an authorization code exchange
type ExchangeRequest struct {
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// RefreshRequest carries the inputs of a refresh-token grant
type RefreshRequest struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// ExchangeCode redeems an authorization code and its PKCE verifier for a
// token record. The code is single use, so the request is never retried.
func (c *Client) ExchangeCode(ctx context.Context, req ExchangeRequest) (*tokenstore.Record, error) {
	const op = "exchange"

	if err := requireFields(op,
		"client_id", req.ClientID,
		"code", req.Code,
		"redirect_uri", req.RedirectURI,
		"code_verifier", req.CodeVerifier,
	); err != nil {
		return nil, err
	}

	conf := c.oauth2Config(req.ClientID, req.ClientSecret, req.RedirectURI)
	tok, err := conf.Exchange(c.clientContext(ctx), req.Code,
		oauth2.VerifierOption(req.CodeVerifier),
		oauth2.SetAuthURLParam("client_id", req.ClientID),
	)
	if err != nil {
		return nil, classify(op, err)
	}

	return c.recordFromToken(op, tok)
}

// RefreshToken obtains a new token record using a refresh token. When the
// provider does not rotate the refresh token the current one is kept.
func (c *Client) RefreshToken(ctx context.Context, req RefreshRequest) (*tokenstore.Record, error) {
	const op = "refresh"

	if err := requireFields(op,
		"client_id", req.ClientID,
		"refresh_token", req.RefreshToken,
	); err != nil {
		return nil, err
	}

	conf := c.oauth2Config(req.ClientID, req.ClientSecret, "")
	tok, err := conf.TokenSource(c.clientContext(ctx), &oauth2.Token{RefreshToken: req.RefreshToken}).Token()
	if err != nil {
		return nil, classify(op, err)
	}

	return c.recordFromToken(op, tok)
}

// RevokeToken asks the provider to invalidate a token (RFC 7009). Profiles
// without a revocation endpoint make this a no-op.
func (c *Client) RevokeToken(ctx context.Context, clientID, clientSecret, token string) error {
	const op = "revoke"

	if err := requireFields(op, "client_id", clientID, "token", token); err != nil {
		return err
	}
	if c.profile.RevokeURL == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", token)
	if clientSecret == "" {
		form.Set("client_id", clientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.profile.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if clientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(clientID), url.QueryEscape(clientSecret))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &Error{Kind: KindProvider, Op: op, StatusCode: resp.StatusCode, Detail: string(body)}
	}
	return nil
}

func (c *Client) oauth2Config(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint:     c.profile.endpoint(clientSecret),
	}
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) recordFromToken(op string, tok *oauth2.Token) (*tokenstore.Record, error) {
	if tok.AccessToken == "" {
		return nil, malformed(op, "response missing access_token")
	}

	expiresIn := tok.ExpiresIn
	if expiresIn == 0 {
		expiresIn = extraSeconds(tok.Extra("expires_in"))
	}
	if expiresIn <= 0 {
		return nil, malformed(op, "response missing expires_in")
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	scope, _ := tok.Extra("scope").(string)

	return &tokenstore.Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    c.now().Add(time.Duration(expiresIn) * time.Second).Unix(),
		TokenType:    tokenType,
		Scope:        scope,
	}, nil
}

func extraSeconds(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(math.Round(n))
	case int64:
		return n
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

// requireFields takes name/value pairs and reports the first empty value
func requireFields(op string, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return validationError(op, pairs[i])
		}
	}
	return nil
}
