// Package server provides configuration helpers that define runtime defaults,
// validation, and security parameters for the SecureChat service.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the parameters for per-connection event rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// LoginGuardConfig defines the failed-login lockout parameters.
type LoginGuardConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// Config holds the server configuration settings including security controls
// and storage locations. It carries no behavior of its own; a populated Config
// is handed to New when constructing the server.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	MaxUploadSize  int64
	HistoryLimit   int
	DataDir        string
	RateLimit      RateLimitConfig
	LoginGuard     LoginGuardConfig
}

func defaultConfig() Config {
	return Config{
		Port: ":3001",
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:3001",
		},
		MaxMessageSize: 64 * 1024,
		MaxUploadSize:  10 * 1024 * 1024,
		HistoryLimit:   1000,
		DataDir:        "data",
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		LoginGuard: LoginGuardConfig{
			MaxAttempts:     5,
			LockoutDuration: 15 * time.Minute,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = def.MaxUploadSize
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if cfg.LoginGuard.MaxAttempts <= 0 {
		cfg.LoginGuard.MaxAttempts = def.LoginGuard.MaxAttempts
	}
	if cfg.LoginGuard.LockoutDuration <= 0 {
		cfg.LoginGuard.LockoutDuration = def.LoginGuard.LockoutDuration
	}
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseByteSize(maxSize, cfg.MaxMessageSize)
	}

	if maxUpload := os.Getenv("MAX_UPLOAD_SIZE"); maxUpload != "" {
		cfg.MaxUploadSize = parseByteSize(maxUpload, cfg.MaxUploadSize)
	}

	if limit := os.Getenv("HISTORY_LIMIT"); limit != "" {
		cfg.HistoryLimit = parseIntValue(limit, cfg.HistoryLimit)
	}

	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}

	if attempts := os.Getenv("LOGIN_MAX_ATTEMPTS"); attempts != "" {
		cfg.LoginGuard.MaxAttempts = parseIntValue(attempts, cfg.LoginGuard.MaxAttempts)
	}

	if lockout := os.Getenv("LOGIN_LOCKOUT_MINUTES"); lockout != "" {
		if minutes, err := strconv.Atoi(lockout); err == nil && minutes > 0 {
			cfg.LoginGuard.LockoutDuration = time.Duration(minutes) * time.Minute
		}
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseByteSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
