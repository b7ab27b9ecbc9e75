package oauth

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/oauth2"
)

// ChallengeMethod is the only PKCE transformation this package emits
const ChallengeMethod = "S256"

// PKCEPair is a PKCE code verifier and its derived S256 challenge. The
// verifier lives only as long as the login attempt it belongs to.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

// NewPKCEPair generates a fresh verifier (43 unreserved characters from
// 32 random bytes) and its challenge.
func NewPKCEPair() PKCEPair {
	verifier := oauth2.GenerateVerifier()
	return PKCEPair{
		Verifier:  verifier,
		Challenge: ChallengeFromVerifier(verifier),
	}
}

// ChallengeFromVerifier computes base64url(SHA-256(verifier)) without padding
func ChallengeFromVerifier(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// NewState generates a random anti-forgery state value
func NewState() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
