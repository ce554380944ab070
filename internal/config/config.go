package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Client-side session tuning.
	APIBaseURL       string
	AutosaveInterval time.Duration
	// GraceWindow is how early before literal expiry the auto-submit
	// trigger fires. Must stay well inside the server's grace period.
	GraceWindow       time.Duration
	SubmitMaxAttempts int
	SubmitBackoffBase time.Duration
	RequestTimeout    time.Duration

	LogLevel  string
	LogFormat string

	// Reference server settings (cmd/demo-server and tests).
	ServerPort  string
	GinMode     string
	JWTSecret   string
	JWTExpiry   time.Duration
	BcryptCost  int
	ServerGrace time.Duration
	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		APIBaseURL:        getEnv("API_BASE_URL", "http://localhost:8080"),
		AutosaveInterval:  time.Duration(getEnvInt("AUTOSAVE_INTERVAL_SECONDS", 60)) * time.Second,
		GraceWindow:       time.Duration(getEnvInt("GRACE_WINDOW_SECONDS", 2)) * time.Second,
		SubmitMaxAttempts: getEnvInt("SUBMIT_MAX_ATTEMPTS", 3),
		SubmitBackoffBase: time.Duration(getEnvInt("SUBMIT_BACKOFF_BASE_MS", 1000)) * time.Millisecond,
		RequestTimeout:    time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "pretty"),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		GinMode:           getEnv("GIN_MODE", "debug"),
		JWTSecret:         getEnv("JWT_SECRET", "change-this-to-a-secure-random-string"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		BcryptCost:        getEnvInt("BCRYPT_COST", 6),
		ServerGrace:       time.Duration(getEnvInt("SERVER_GRACE_SECONDS", 20)) * time.Second,
		AllowedOrigins:    parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
