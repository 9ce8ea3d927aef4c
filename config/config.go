// Package config loads client configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Store backend names accepted by AUTHKIT_STORE.
const (
	StoreBolt   = "bolt"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the environment-driven client configuration.
type Config struct {
	// BackendURL is the hosted backend project URL (auth, rest, and storage
	// surfaces all hang off it).
	BackendURL string `env:"AUTHKIT_BACKEND_URL"`
	// AnonKey is the publishable API key sent with every request.
	AnonKey string `env:"AUTHKIT_ANON_KEY"`
	// Store selects the local session store backend.
	Store string `env:"AUTHKIT_STORE" envDefault:"bolt"`
	// StorePath is the bolt database path. Defaults under the user config dir.
	StorePath string `env:"AUTHKIT_STORE_PATH"`
	// RedisAddr is the Redis address for the redis store backend.
	RedisAddr string `env:"AUTHKIT_REDIS_ADDR" envDefault:"localhost:6379"`
	// Platform gates platform-specific sign-in methods (ios, android, web).
	Platform string `env:"AUTHKIT_PLATFORM" envDefault:"web"`
	// LogLevel sets the slog level.
	LogLevel slog.Level `env:"AUTHKIT_LOG_LEVEL" envDefault:"info"`
}

// Load parses and validates configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.BackendURL == "" {
		return Config{}, fmt.Errorf("AUTHKIT_BACKEND_URL is required")
	}
	if cfg.AnonKey == "" {
		return Config{}, fmt.Errorf("AUTHKIT_ANON_KEY is required")
	}
	switch cfg.Store {
	case StoreBolt, StoreMemory, StoreRedis:
	default:
		return Config{}, fmt.Errorf("AUTHKIT_STORE must be one of %s, %s, %s", StoreBolt, StoreMemory, StoreRedis)
	}
	if cfg.Store == StoreBolt && cfg.StorePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolving config dir: %w", err)
		}
		cfg.StorePath = filepath.Join(dir, "authkit", "session.db")
	}
	return cfg, nil
}
