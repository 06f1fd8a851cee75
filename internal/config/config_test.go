package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 8082, cfg.ServerPort)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 10*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 30*time.Second, cfg.OTPResendInterval)
	assert.Equal(t, 5, cfg.OTPMaxAttempts)
	assert.Contains(t, cfg.DSN(), "dbname=jewelstore_auth")
}

func TestLoad_SQLite(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/auth.db")
	t.Setenv("JWT_EXPIRY", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.JWTExpiry)
	assert.Equal(t, "/tmp/auth.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DSN())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"DB_DRIVER", "mysql"},
		{"DB_PORT", "abc"},
		{"OTP_TTL", "ten minutes"},
		{"OTP_MAX_ATTEMPTS", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadStorefront(t *testing.T) {
	cfg, err := LoadStorefront()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "memory", cfg.SessionBackend)
	assert.Equal(t, 60, cfg.OTPCooldown)
	assert.Equal(t, time.Second, cfg.OTPTick)
	assert.Equal(t, 1500*time.Millisecond, cfg.NavigateDelay)
	assert.False(t, cfg.CookieSecure)

	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("COOKIE_SECURE", "true")
	cfg, err = LoadStorefront()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.SessionBackend)
	assert.True(t, cfg.CookieSecure)

	t.Setenv("SESSION_BACKEND", "files")
	_, err = LoadStorefront()
	assert.Error(t, err)

	t.Setenv("SESSION_BACKEND", "memory")
	t.Setenv("OTP_COOLDOWN", "0")
	_, err = LoadStorefront()
	assert.Error(t, err)
}
