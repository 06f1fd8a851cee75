package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ghassenk/jewelstore/internal/config"
	"github.com/ghassenk/jewelstore/internal/delivery"
	"github.com/ghassenk/jewelstore/internal/handlers"
	"github.com/ghassenk/jewelstore/internal/middleware"
	"github.com/ghassenk/jewelstore/internal/repository"
	"github.com/ghassenk/jewelstore/internal/token"
)

func main() {
	logger := log.New(os.Stderr, "auth-service ", log.LstdFlags|log.Lmsgprefix)

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect to the database and apply migrations.
	repo, err := repository.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}
	defer repo.Close()
	logger.Printf("connected to %s", cfg.DBDriver)

	if err := handlers.SeedAdmin(ctx, repo, cfg.AdminEmail, cfg.AdminPassword, logger); err != nil {
		logger.Fatalf("failed to seed admin: %v", err)
	}

	// Connect to Redis.
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatalf("failed to ping Redis: %v", err)
	}
	defer redisClient.Close()
	logger.Println("connected to Redis")

	// OTP delivery: NATS when configured, the log otherwise.
	var sender delivery.Sender = delivery.LogSender{Logger: logger}
	if cfg.NatsURL != "" {
		nc, err := delivery.Connect(cfg.NatsURL, logger)
		if err != nil {
			logger.Fatalf("failed to connect to NATS: %v", err)
		}
		defer nc.Drain()
		sender = delivery.NewNATSSender(nc)
		logger.Println("connected to NATS")
	} else {
		logger.Println("WARN: NATS_URL not set, OTP codes are written to the log")
	}

	otps := repository.NewOTPStore(redisClient, cfg.OTPTTL, cfg.OTPResendInterval, cfg.OTPMaxAttempts)
	issuer := token.NewIssuer(cfg.JWTSecret, cfg.JWTExpiry)
	authHandler := handlers.NewAuthHandler(repo, otps, sender, issuer, cfg, logger)

	rateLimiter := middleware.NewRateLimiter(60, 1*time.Minute)
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for range t.C {
			rateLimiter.Sweep()
		}
	}()

	handler := middleware.RequestID(middleware.Logging(logger)(authHandler.Routes(rateLimiter)))

	// Create HTTP server.
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine.
	go func() {
		logger.Printf("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}

	logger.Println("stopped")
}
