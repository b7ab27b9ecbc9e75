package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port              int
	Environment       string
	AppURL            string
	JWTSecret         string
	AdminUsername     string
	AdminPasswordHash string
	CORSOrigins       []string
	Database          DatabaseConfig
	Wearable          WearableConfig
	TokenStore        TokenStoreConfig
	Alerts            AlertConfig
	Jobs              JobConfig
	Log               LogConfig

	// Warnings collected while loading; logged once the logger exists.
	Warnings []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type         string // postgres or sqlite
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// WearableConfig holds the OAuth2 client settings for the wearable-data provider
type WearableConfig struct {
	Enabled       bool
	Provider      string // fitbit or generic
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	Scopes        []string
	AuthURL       string // generic provider only
	TokenURL      string // generic provider only
	RevokeURL     string // generic provider only
	HeartRateURL  string // generic provider only, {date} is substituted
	HeartRatePath string // generic provider only, gjson path to the sample list
	HTTPTimeout   time.Duration
	ExpiryMargin  time.Duration
	SessionTTL    time.Duration
}

// TokenStoreConfig selects where the wearable token record is persisted
type TokenStoreConfig struct {
	Type string // file or database
	Path string
}

// AlertConfig holds gateway and SMS settings for emergency relay
type AlertConfig struct {
	GatewayURL    string
	GatewayToken  string
	SMSAPIURL     string
	SMSAccountSID string
	SMSAuthToken  string
	SMSFrom       string
	FamilyPhone   string
	DoctorPhone   string
}

// JobConfig holds background job settings
type JobConfig struct {
	SyncSchedule        string
	SampleRetentionDays int
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string
	File  string
}

const (
	minHTTPTimeout = 10 * time.Second
	maxHTTPTimeout = 30 * time.Second
)

// Load loads configuration from the environment, reading .env first when present
func Load() (*Config, error) {
	var warnings []string
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		warnings = append(warnings, fmt.Sprintf("failed to load .env file: %v", err))
	}

	env := getEnv("ENVIRONMENT", "production")
	appURL := strings.TrimRight(os.Getenv("APP_URL"), "/")

	jwtSecret, w := loadJWTSecret(env)
	warnings = append(warnings, w...)

	cfg := &Config{
		Port:              getEnvInt("PORT", 8080),
		Environment:       env,
		AppURL:            appURL,
		JWTSecret:         jwtSecret,
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		CORSOrigins:       loadCORSOrigins(env, appURL),
		Database:          loadDatabaseConfig(),
		Wearable:          loadWearableConfig(appURL),
		TokenStore: TokenStoreConfig{
			Type: getEnv("TOKEN_STORE", "file"),
			Path: getEnv("TOKEN_FILE", filepath.Join("data", "wearable_token.json")),
		},
		Alerts: AlertConfig{
			GatewayURL:    os.Getenv("GATEWAY_URL"),
			GatewayToken:  os.Getenv("GATEWAY_TOKEN"),
			SMSAPIURL:     getEnv("SMS_API_URL", "https://api.twilio.com/2010-04-01"),
			SMSAccountSID: os.Getenv("SMS_ACCOUNT_SID"),
			SMSAuthToken:  os.Getenv("SMS_AUTH_TOKEN"),
			SMSFrom:       os.Getenv("SMS_FROM"),
			FamilyPhone:   os.Getenv("FAMILY_PHONE"),
			DoctorPhone:   os.Getenv("DOCTOR_PHONE"),
		},
		Jobs: JobConfig{
			SyncSchedule:        os.Getenv("SYNC_SCHEDULE"),
			SampleRetentionDays: getEnvInt("SAMPLE_RETENTION_DAYS", 90),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
	}

	if cfg.Wearable.Provider != "" && !cfg.Wearable.Enabled {
		warnings = append(warnings, "WEARABLE_CLIENT_ID is missing, wearable connector disabled")
	}
	if cfg.AdminPasswordHash == "" && env != "production" {
		warnings = append(warnings, "ADMIN_PASSWORD_HASH not set, dashboard login disabled")
	}
	if appURL == "" {
		warnings = append(warnings, "APP_URL not set, using default localhost origins")
	}
	cfg.Warnings = warnings

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if c.AdminPasswordHash == "" {
			return fmt.Errorf("ADMIN_PASSWORD_HASH is required in production")
		}
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}

	switch c.Database.Type {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	switch c.TokenStore.Type {
	case "file":
		if c.TokenStore.Path == "" {
			return fmt.Errorf("TOKEN_FILE is required when TOKEN_STORE=file")
		}
	case "database":
	default:
		return fmt.Errorf("unsupported token store: %s", c.TokenStore.Type)
	}

	if c.Wearable.Enabled {
		if c.Wearable.RedirectURL == "" {
			return fmt.Errorf("WEARABLE_REDIRECT_URL or APP_URL is required when the wearable connector is enabled")
		}
		if c.Wearable.Provider == "generic" && (c.Wearable.AuthURL == "" || c.Wearable.TokenURL == "") {
			return fmt.Errorf("WEARABLE_AUTH_URL and WEARABLE_TOKEN_URL are required for the generic provider")
		}
		if c.Wearable.HTTPTimeout < minHTTPTimeout || c.Wearable.HTTPTimeout > maxHTTPTimeout {
			return fmt.Errorf("WEARABLE_HTTP_TIMEOUT must be between %s and %s", minHTTPTimeout, maxHTTPTimeout)
		}
		if c.Wearable.ExpiryMargin < 0 {
			return fmt.Errorf("WEARABLE_EXPIRY_MARGIN must not be negative")
		}
	}

	return nil
}

// SMSEnabled reports whether SMS credentials are configured
func (a AlertConfig) SMSEnabled() bool {
	return a.SMSAccountSID != "" && a.SMSAuthToken != "" && a.SMSFrom != ""
}

// Contacts returns the configured emergency phone numbers
func (a AlertConfig) Contacts() []string {
	var numbers []string
	for _, n := range []string{a.FamilyPhone, a.DoctorPhone} {
		if n = strings.TrimSpace(n); n != "" {
			numbers = append(numbers, n)
		}
	}
	return numbers
}

func loadDatabaseConfig() DatabaseConfig {
	dbType := getEnv("DATABASE_TYPE", "sqlite")
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		if dbType == "postgres" {
			dsn = buildPostgresDSN()
		} else {
			dsn = filepath.Join("data", "swasthya.db")
		}
	}

	return DatabaseConfig{
		Type:         dbType,
		DSN:          dsn,
		MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
	}
}

func buildPostgresDSN() string {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "swasthya")
	password := getEnv("POSTGRES_PASSWORD", "secret")
	dbName := getEnv("POSTGRES_DB", "swasthya")
	sslMode := getEnv("POSTGRES_SSLMODE", "disable")

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%s", host, port),
		Path:   dbName,
	}

	query := u.Query()
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()

	return u.String()
}

func loadWearableConfig(appURL string) WearableConfig {
	provider := os.Getenv("WEARABLE_PROVIDER")
	clientID := os.Getenv("WEARABLE_CLIENT_ID")

	redirectURL := os.Getenv("WEARABLE_REDIRECT_URL")
	if redirectURL == "" && appURL != "" {
		redirectURL = appURL + "/api/wearable/callback"
	}

	var scopes []string
	if scopesEnv := os.Getenv("WEARABLE_SCOPES"); scopesEnv != "" {
		scopes = splitAndTrim(scopesEnv, ",")
	}

	return WearableConfig{
		Enabled:       provider != "" && clientID != "",
		Provider:      provider,
		ClientID:      clientID,
		ClientSecret:  os.Getenv("WEARABLE_CLIENT_SECRET"),
		RedirectURL:   redirectURL,
		Scopes:        scopes,
		AuthURL:       os.Getenv("WEARABLE_AUTH_URL"),
		TokenURL:      os.Getenv("WEARABLE_TOKEN_URL"),
		RevokeURL:     os.Getenv("WEARABLE_REVOKE_URL"),
		HeartRateURL:  os.Getenv("WEARABLE_HEART_RATE_URL"),
		HeartRatePath: os.Getenv("WEARABLE_HEART_RATE_PATH"),
		HTTPTimeout:   getEnvDuration("WEARABLE_HTTP_TIMEOUT", 20*time.Second),
		ExpiryMargin:  getEnvDuration("WEARABLE_EXPIRY_MARGIN", time.Minute),
		SessionTTL:    getEnvDuration("WEARABLE_SESSION_TTL", 10*time.Minute),
	}
}

func loadJWTSecret(env string) (string, []string) {
	secret := os.Getenv("JWT_SECRET")
	if secret != "" || env == "production" {
		// Validate reports the missing production secret
		return secret, nil
	}

	return generateRandomSecret(), []string{
		"JWT_SECRET not set, generated a random secret for development",
		"the generated secret changes on restart, set JWT_SECRET in production",
	}
}

func loadCORSOrigins(env, appURL string) []string {
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		return splitAndTrim(origins, ",")
	}
	if appURL != "" {
		return []string{appURL}
	}
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

func splitAndTrim(s, sep string) []string {
	parts := []string{}
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func generateRandomSecret() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return base64.URLEncoding.EncodeToString(bytes)
}
