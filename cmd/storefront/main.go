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

	"github.com/ghassenk/jewelstore/internal/apiclient"
	"github.com/ghassenk/jewelstore/internal/config"
	"github.com/ghassenk/jewelstore/internal/session"
	"github.com/ghassenk/jewelstore/internal/storefront"
)

func main() {
	logger := log.New(os.Stderr, "storefront ", log.LstdFlags|log.Lmsgprefix)

	// Load configuration.
	cfg, err := config.LoadStorefront()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	// Browser-session storage: process memory, or Redis so that records
	// survive restarts and are shared between replicas.
	factory := func(string) session.Storage { return session.NewMemoryStorage() }
	if cfg.SessionBackend == "redis" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatalf("failed to ping Redis: %v", err)
		}
		defer redisClient.Close()
		logger.Println("connected to Redis")

		factory = func(sid string) session.Storage {
			return session.NewRedisStorage(redisClient, sid, cfg.SessionIdleTTL, logger)
		}
	}

	registry := storefront.NewRegistry(factory, cfg.SessionIdleTTL, logger)
	runCtx, stopRegistry := context.WithCancel(context.Background())
	go registry.Run(runCtx, time.Minute)

	client := apiclient.New(cfg.AuthServiceURL, cfg.RequestTimeout, logger)
	e := storefront.New(cfg, client, registry, logger).Echo()

	// Start server in a goroutine.
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	go func() {
		logger.Printf("listening on %s, identity service at %s", addr, cfg.AuthServiceURL)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
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

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Printf("ERROR: server forced to shutdown: %v", err)
	}
	stopRegistry()
	registry.Close()

	logger.Println("stopped")
}
