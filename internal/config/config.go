// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Storage settings.
	Store       string // "sqlite" or "postgres"
	SQLitePath  string
	DatabaseURL string // PgBouncer or direct Postgres URL for queries.
	NotifyURL   string // Direct Postgres URL for LISTEN/NOTIFY.

	// Moderation settings.
	ModerationProvider string // "auto", "hosted", or "noop"
	ModerationURL      string
	ModerationToken    string
	ModerationTimeout  time.Duration

	// Consecutive classifier failures that open the circuit breaker. Zero
	// disables the breaker: every check then calls the classifier.
	ModerationBreakerFailures int
	ModerationBreakerCooldown time.Duration

	// Session settings.
	SessionIdleTimeout time.Duration

	// Auth settings. An empty APIKeyHash disables authentication.
	APIKeyHash        string
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	// Rate limiting.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
	OTELInsecure bool

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64 // Maximum request body size in bytes.
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	str := envStr
	integer := func(key string, def int) int {
		v, err := envInt(key, def)
		errs = append(errs, err)
		return v
	}
	boolean := func(key string, def bool) bool {
		v, err := envBool(key, def)
		errs = append(errs, err)
		return v
	}
	duration := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		errs = append(errs, err)
		return v
	}
	float := func(key string, def float64) float64 {
		v, err := envFloat(key, def)
		errs = append(errs, err)
		return v
	}

	cfg := Config{
		Port:                integer("TSUZURI_PORT", 8080),
		ReadTimeout:         duration("TSUZURI_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        duration("TSUZURI_WRITE_TIMEOUT", 30*time.Second),
		Store:               str("TSUZURI_STORE", "sqlite"),
		SQLitePath:          str("TSUZURI_SQLITE_PATH", "data/tsuzuri.db"),
		DatabaseURL:         str("DATABASE_URL", ""),
		NotifyURL:           str("NOTIFY_URL", ""),
		ModerationProvider:  str("TSUZURI_MODERATION_PROVIDER", "auto"),
		ModerationURL:       str("TSUZURI_MODERATION_URL", ""),
		ModerationToken:     str("TSUZURI_MODERATION_TOKEN", ""),
		ModerationTimeout:   duration("TSUZURI_MODERATION_TIMEOUT", 10*time.Second),

		ModerationBreakerFailures: integer("TSUZURI_MODERATION_BREAKER_FAILURES", 0),
		ModerationBreakerCooldown: duration("TSUZURI_MODERATION_BREAKER_COOLDOWN", 30*time.Second),

		SessionIdleTimeout:  duration("TSUZURI_SESSION_IDLE_TIMEOUT", 30*time.Minute),
		APIKeyHash:          str("TSUZURI_API_KEY_HASH", ""),
		JWTPrivateKeyPath:   str("TSUZURI_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:    str("TSUZURI_JWT_PUBLIC_KEY", ""),
		JWTExpiration:       duration("TSUZURI_JWT_EXPIRATION", 24*time.Hour),
		RateLimitEnabled:    boolean("TSUZURI_RATE_LIMIT_ENABLED", true),
		RateLimitRPS:        float("TSUZURI_RATE_LIMIT_RPS", 10),
		RateLimitBurst:      integer("TSUZURI_RATE_LIMIT_BURST", 30),
		OTELEndpoint:        str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:         str("OTEL_SERVICE_NAME", "tsuzuri"),
		OTELInsecure:        boolean("TSUZURI_OTEL_INSECURE", false),
		LogLevel:            str("TSUZURI_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(integer("TSUZURI_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("TSUZURI_SQLITE_PATH is required for the sqlite store"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("TSUZURI_STORE=%q must be sqlite or postgres", c.Store))
	}
	switch c.ModerationProvider {
	case "auto", "noop":
	case "hosted":
		if c.ModerationToken == "" {
			errs = append(errs, errors.New("TSUZURI_MODERATION_TOKEN is required for the hosted moderation provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("TSUZURI_MODERATION_PROVIDER=%q must be auto, hosted or noop", c.ModerationProvider))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("TSUZURI_PORT=%d is out of range", c.Port))
	}
	if c.ModerationTimeout <= 0 {
		errs = append(errs, errors.New("TSUZURI_MODERATION_TIMEOUT must be positive"))
	}
	if c.ModerationBreakerFailures < 0 {
		errs = append(errs, errors.New("TSUZURI_MODERATION_BREAKER_FAILURES must not be negative"))
	}
	if c.ModerationBreakerFailures > 0 && c.ModerationBreakerCooldown <= 0 {
		errs = append(errs, errors.New("TSUZURI_MODERATION_BREAKER_COOLDOWN must be positive"))
	}
	if c.SessionIdleTimeout <= 0 {
		errs = append(errs, errors.New("TSUZURI_SESSION_IDLE_TIMEOUT must be positive"))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		errs = append(errs, errors.New("TSUZURI_RATE_LIMIT_RPS and TSUZURI_RATE_LIMIT_BURST must be positive"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("TSUZURI_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// AuthEnabled reports whether API key authentication is configured.
func (c Config) AuthEnabled() bool { return c.APIKeyHash != "" }

// ParseLogLevel maps TSUZURI_LOG_LEVEL to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("TSUZURI_LOG_LEVEL=%q is not a valid log level", s)
	}
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
