package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	require.Error(t, err)
	assert.Equal(t, `TEST_INT_BAD="abc" is not a valid integer`, err.Error())
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	require.Error(t, err)
	assert.Equal(t, `TEST_BOOL_BAD="maybe" is not a valid boolean`, err.Error())
}

func TestEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "2.5")
	v, err := envFloat("TEST_FLOAT", 0)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, v, 1e-9)

	t.Setenv("TEST_FLOAT_BAD", "fast")
	_, err = envFloat("TEST_FLOAT_BAD", 0)
	require.Error(t, err)
	assert.Equal(t, `TEST_FLOAT_BAD="fast" is not a valid number`, err.Error())
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, v)

	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err = envDuration("TEST_DUR_BAD", 0)
	require.Error(t, err)
	assert.Equal(t, `TEST_DUR_BAD="five-seconds" is not a valid duration`, err.Error())
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, "data/tsuzuri.db", cfg.SQLitePath)
	assert.Equal(t, "auto", cfg.ModerationProvider)
	assert.Equal(t, 10*time.Second, cfg.ModerationTimeout)
	assert.Zero(t, cfg.ModerationBreakerFailures)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiration)
	assert.True(t, cfg.RateLimitEnabled)
	assert.Equal(t, int64(1<<20), cfg.MaxRequestBodyBytes)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("TSUZURI_PORT", "9090")
	t.Setenv("TSUZURI_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/tsuzuri")
	t.Setenv("TSUZURI_MODERATION_PROVIDER", "hosted")
	t.Setenv("TSUZURI_MODERATION_TOKEN", "hf_test")
	t.Setenv("TSUZURI_MODERATION_TIMEOUT", "2s")
	t.Setenv("TSUZURI_RATE_LIMIT_RPS", "0.5")
	t.Setenv("TSUZURI_API_KEY_HASH", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, "hf_test", cfg.ModerationToken)
	assert.Equal(t, 2*time.Second, cfg.ModerationTimeout)
	assert.InDelta(t, 0.5, cfg.RateLimitRPS, 1e-9)
	assert.True(t, cfg.AuthEnabled())
}

func TestLoadFailsOnInvalidPort(t *testing.T) {
	t.Setenv("TSUZURI_PORT", "abc")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TSUZURI_PORT")
	assert.Contains(t, err.Error(), "abc")
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("TSUZURI_PORT", "abc")
	t.Setenv("TSUZURI_MODERATION_TIMEOUT", "soon")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TSUZURI_PORT")
	assert.Contains(t, err.Error(), "TSUZURI_MODERATION_TIMEOUT")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:                8080,
			Store:               "sqlite",
			SQLitePath:          "notes.db",
			ModerationProvider:  "auto",
			ModerationTimeout:   time.Second,
			SessionIdleTimeout:  time.Minute,
			RateLimitEnabled:    true,
			RateLimitRPS:        1,
			RateLimitBurst:      1,
			LogLevel:            "info",
			MaxRequestBodyBytes: 1024,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown store", func(c *Config) { c.Store = "redis" }, "TSUZURI_STORE"},
		{"postgres without url", func(c *Config) { c.Store = "postgres" }, "DATABASE_URL"},
		{"hosted without token", func(c *Config) { c.ModerationProvider = "hosted" }, "TSUZURI_MODERATION_TOKEN"},
		{"unknown provider", func(c *Config) { c.ModerationProvider = "openai" }, "TSUZURI_MODERATION_PROVIDER"},
		{"port out of range", func(c *Config) { c.Port = 70000 }, "TSUZURI_PORT"},
		{"zero timeout", func(c *Config) { c.ModerationTimeout = 0 }, "TSUZURI_MODERATION_TIMEOUT"},
		{"negative breaker", func(c *Config) { c.ModerationBreakerFailures = -1 }, "TSUZURI_MODERATION_BREAKER_FAILURES"},
		{"breaker without cooldown", func(c *Config) { c.ModerationBreakerFailures = 3 }, "TSUZURI_MODERATION_BREAKER_COOLDOWN"},
		{"zero burst", func(c *Config) { c.RateLimitBurst = 0 }, "TSUZURI_RATE_LIMIT_BURST"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "TSUZURI_LOG_LEVEL"},
		{"zero body size", func(c *Config) { c.MaxRequestBodyBytes = 0 }, "TSUZURI_MAX_REQUEST_BODY_BYTES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}

	c := valid()
	c.RateLimitEnabled = false
	c.RateLimitBurst = 0
	assert.NoError(t, c.Validate(), "limits are ignored when rate limiting is off")
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}
