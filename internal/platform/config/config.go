package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	SweepIntervalMs int `env:"SWEEP_INTERVAL_MS" default:"60000"`
	RetentionMs     int `env:"RETENTION_MS" default:"300000"`

	RetentionBackend string `env:"RETENTION_BACKEND" default:"memory"`
	RedisURL         string `env:"REDIS_URL"`

	SharedKey      string `env:"SHARED_KEY"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	MaxConnections      int     `env:"MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" default:"50"`
	ConnectionRate      float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst     int     `env:"CONNECTION_BURST" default:"20"`
	MaxMessageBytes     int64   `env:"MAX_MESSAGE_BYTES" default:"65536"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SweepInterval is the period of the eviction sweep.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMs) * time.Millisecond
}

// Retention is how long a message record is kept before eviction.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionMs) * time.Millisecond
}

// Origins returns ALLOWED_ORIGINS split on commas with blanks removed.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func validate(cfg *Config) error {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", cfg.Port)
	}

	if cfg.SweepIntervalMs <= 0 {
		return errors.New("SWEEP_INTERVAL_MS must be positive")
	}
	if cfg.RetentionMs <= 0 {
		return errors.New("RETENTION_MS must be positive")
	}

	switch cfg.RetentionBackend {
	case BackendMemory:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required when RETENTION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("RETENTION_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, cfg.RetentionBackend)
	}

	if cfg.SharedKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.SharedKey)
		if err != nil {
			return fmt.Errorf("SHARED_KEY must be valid base64: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("SHARED_KEY must decode to exactly 32 bytes, got %d bytes", len(key))
		}
	}

	if cfg.MaxConnections <= 0 || cfg.MaxConnectionsPerIP <= 0 {
		return errors.New("MAX_CONNECTIONS and MAX_CONNECTIONS_PER_IP must be positive")
	}
	if cfg.ConnectionRate <= 0 || cfg.ConnectionBurst <= 0 {
		return errors.New("CONNECTION_RATE and CONNECTION_BURST must be positive")
	}
	if cfg.MaxMessageBytes <= 0 {
		return errors.New("MAX_MESSAGE_BYTES must be positive")
	}

	return nil
}
