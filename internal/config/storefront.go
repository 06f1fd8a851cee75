package config

import (
	"fmt"
	"time"
)

// StorefrontConfig holds configuration for the storefront gateway.
type StorefrontConfig struct {
	ServerPort     int
	AuthServiceURL string
	// SessionBackend selects where browser-session records live: "memory" or "redis".
	SessionBackend string
	RedisAddr      string
	SessionIdleTTL time.Duration
	CookieSecure   bool
	AllowedOrigins []string

	OTPCooldown    int
	OTPTick        time.Duration
	NavigateDelay  time.Duration
	RequestTimeout time.Duration
}

// LoadStorefront reads the gateway configuration from environment variables.
func LoadStorefront() (*StorefrontConfig, error) {
	port, err := getEnvInt("STOREFRONT_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid STOREFRONT_PORT: %w", err)
	}

	idle, err := getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_IDLE_TTL: %w", err)
	}

	secure, err := getEnvBool("COOKIE_SECURE", false)
	if err != nil {
		return nil, fmt.Errorf("invalid COOKIE_SECURE: %w", err)
	}

	cooldown, err := getEnvInt("OTP_COOLDOWN", 60)
	if err != nil {
		return nil, fmt.Errorf("invalid OTP_COOLDOWN: %w", err)
	}

	navDelay, err := getEnvDuration("NAVIGATE_DELAY", 1500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid NAVIGATE_DELAY: %w", err)
	}

	timeout, err := getEnvDuration("AUTH_REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_REQUEST_TIMEOUT: %w", err)
	}

	cfg := &StorefrontConfig{
		ServerPort:     port,
		AuthServiceURL: getEnv("AUTH_SERVICE_URL", "http://localhost:8082"),
		SessionBackend: getEnv("SESSION_BACKEND", "memory"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		SessionIdleTTL: idle,
		CookieSecure:   secure,
		AllowedOrigins: []string{getEnv("ALLOWED_ORIGIN", "http://localhost:3000")},
		OTPCooldown:    cooldown,
		OTPTick:        time.Second,
		NavigateDelay:  navDelay,
		RequestTimeout: timeout,
	}

	if cfg.SessionBackend != "memory" && cfg.SessionBackend != "redis" {
		return nil, fmt.Errorf("invalid SESSION_BACKEND %q: want memory or redis", cfg.SessionBackend)
	}
	if cfg.OTPCooldown <= 0 {
		return nil, fmt.Errorf("invalid OTP_COOLDOWN: must be positive")
	}

	return cfg, nil
}
