package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/adapter/httpserver"
	"github.com/pscheid92/chatrelay/internal/adapter/redis"
	"github.com/pscheid92/chatrelay/internal/adapter/websocket"
	"github.com/pscheid92/chatrelay/internal/crypto"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/metrics"
	"github.com/pscheid92/chatrelay/internal/platform/config"
	"github.com/pscheid92/chatrelay/internal/platform/logging"
	"github.com/pscheid92/chatrelay/internal/platform/retry"
	"github.com/pscheid92/chatrelay/internal/platform/version"
	"github.com/pscheid92/chatrelay/internal/relay"
	goredis "github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupSharedKey(cfg *config.Config) crypto.SharedKey {
	if cfg.SharedKey != "" {
		key, err := crypto.ParseSharedKey(cfg.SharedKey)
		if err != nil {
			slog.Error("Invalid shared key", "error", err)
			os.Exit(1)
		}
		slog.Info("Using configured shared key")
		return key
	}

	key, err := crypto.NewSharedKey()
	if err != nil {
		slog.Error("Failed to generate shared key", "error", err)
		os.Exit(1)
	}
	slog.Info("Generated shared key for this process")
	return key
}

func setupRedis(ctx context.Context, cfg *config.Config, clock clockwork.Clock) *goredis.Client {
	var client *goredis.Client
	policy := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Clock:          clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Redis not reachable, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		c, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupStore(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (domain.RetentionStore, func()) {
	if cfg.RetentionBackend != config.BackendRedis {
		slog.Info("Using in-memory retention store")
		return relay.NewMemoryStore(), func() {}
	}

	client := setupRedis(ctx, cfg, clock)
	store := redis.NewRetentionStore(client, "")
	slog.Info("Using Redis retention store")

	return store, func() { _ = client.Close() }
}

func runGracefulShutdown(srv *httpserver.Server, wsHandler *websocket.Handler, stopSweeper context.CancelFunc, sweeperDone <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopSweeper()
		<-sweeperDone

		if err := wsHandler.Shutdown(shutdownCtx); err != nil {
			slog.Error("WebSocket shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, runtime.Version()).Set(1)
	slog.Info("Relay starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version,
		"sweep_interval", cfg.SweepInterval(), "retention", cfg.Retention(), "backend", cfg.RetentionBackend)

	ctx := context.Background()
	key := setupSharedKey(cfg)

	store, closeStore := setupStore(ctx, cfg, clock)
	defer closeStore()

	registry := relay.NewRegistry()
	engine := relay.NewEngine(registry, store, clock)
	sweeper := relay.NewSweeper(store, engine, clock, cfg.SweepInterval(), cfg.Retention())

	sweeperCtx, stopSweeper := context.WithCancel(ctx)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(sweeperCtx)
	}()

	wsHandler, err := websocket.NewHandler(registry, engine, websocket.HandlerConfig{
		SharedKey:       key.Base64(),
		AllowedOrigins:  cfg.Origins(),
		IsDevelopment:   cfg.IsDevelopment(),
		MaxMessageBytes: cfg.MaxMessageBytes,
		Limits: websocket.NewConnectionLimits(clock,
			int64(cfg.MaxConnections), cfg.MaxConnectionsPerIP, cfg.ConnectionRate, cfg.ConnectionBurst),
		Clock: clock,
	})
	if err != nil {
		slog.Error("Failed to create WebSocket handler", "error", err)
		os.Exit(1)
	}

	srv := httpserver.NewServer(cfg.Port, wsHandler, registry, store, clock)

	done := runGracefulShutdown(srv, wsHandler, stopSweeper, sweeperDone)

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Relay stopped")
}
