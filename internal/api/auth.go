package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fuomag9/swasthya-link/internal/config"
)

type contextKey string

const subjectContextKey contextKey = "subject"

const tokenTTL = 2 * time.Hour

// LoginRequest represents login credentials
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleLogin checks the operator credentials and issues a dashboard token
func HandleLogin(cfg *config.Config, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request")
			return
		}

		if cfg.AdminPasswordHash == "" {
			writeError(w, http.StatusServiceUnavailable, "login_disabled", "Login is not configured")
			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(cfg.AdminUsername)) == 1
		passErr := bcrypt.CompareHashAndPassword([]byte(cfg.AdminPasswordHash), []byte(req.Password))
		if !userOK || passErr != nil {
			log.Info("Login failed", zap.String("remote", r.RemoteAddr))
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
			return
		}

		expiresAt := time.Now().Add(tokenTTL)
		token, err := generateJWT(cfg.AdminUsername, cfg.JWTSecret, expiresAt)
		if err != nil {
			log.Error("Failed to sign token", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal", "Failed to generate token")
			return
		}

		log.Info("Login succeeded", zap.String("user", cfg.AdminUsername))
		writeJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt})
	}
}

// AuthMiddleware validates JWT tokens
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Missing authorization header")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid authorization header format")
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
				return []byte(jwtSecret), nil
			}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
			if err != nil || !token.Valid || claims.Subject == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), subjectContextKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// generateJWT generates a dashboard token for the operator
func generateJWT(subject, secret string, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	return token.SignedString([]byte(secret))
}
