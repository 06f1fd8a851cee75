package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the auth service.
type Config struct {
	DBDriver   string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string
	RedisAddr  string
	NatsURL    string
	JWTSecret  string
	JWTExpiry  time.Duration
	ServerPort int

	OTPTTL            time.Duration
	OTPResendInterval time.Duration
	OTPMaxAttempts    int

	AdminEmail    string
	AdminPassword string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	jwtExpiryMinutes, err := getEnvInt("JWT_EXPIRY", 24*60)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRY: %w", err)
	}

	serverPort, err := getEnvInt("SERVER_PORT", 8082)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	otpTTL, err := getEnvDuration("OTP_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid OTP_TTL: %w", err)
	}

	resendInterval, err := getEnvDuration("OTP_RESEND_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid OTP_RESEND_INTERVAL: %w", err)
	}

	maxAttempts, err := getEnvInt("OTP_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid OTP_MAX_ATTEMPTS: %w", err)
	}

	cfg := &Config{
		DBDriver:          getEnv("DB_DRIVER", "postgres"),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            dbPort,
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "jewelstore_auth"),
		SQLitePath:        getEnv("SQLITE_PATH", "./auth.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		NatsURL:           getEnv("NATS_URL", ""),
		JWTSecret:         getEnv("JWT_SECRET", "change-me-in-production"),
		JWTExpiry:         time.Duration(jwtExpiryMinutes) * time.Minute,
		ServerPort:        serverPort,
		OTPTTL:            otpTTL,
		OTPResendInterval: resendInterval,
		OTPMaxAttempts:    maxAttempts,
		AdminEmail:        getEnv("ADMIN_EMAIL", ""),
		AdminPassword:     getEnv("ADMIN_PASSWORD", ""),
	}

	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite" {
		return nil, fmt.Errorf("invalid DB_DRIVER %q: want postgres or sqlite", cfg.DBDriver)
	}

	return cfg, nil
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	return strconv.Atoi(val)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	return time.ParseDuration(val)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	return strconv.ParseBool(val)
}
