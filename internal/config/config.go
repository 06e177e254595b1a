// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/meikuraledutech/flow/internal/logging"
)

// Config is the full runtime configuration of flowd.
type Config struct {
	Addr string `envconfig:"ADDR" default:":3000"`

	// Exactly one graph backend is used; DATABASE_URL wins when both are set.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH"`

	// RedisURL holds production sessions. When empty they fall back to an
	// in-process cache and do not survive a restart.
	RedisURL   string        `envconfig:"REDIS_URL"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"40m"`

	LockTTL time.Duration `envconfig:"LOCK_TTL" default:"15m"`

	PreviewSessions int           `envconfig:"PREVIEW_SESSIONS" default:"1000"`
	PreviewTTL      time.Duration `envconfig:"PREVIEW_TTL" default:"30m"`

	Log logging.Config
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		return errors.New("config: DATABASE_URL or SQLITE_PATH is required")
	}
	if c.PreviewSessions <= 0 {
		return errors.New("config: PREVIEW_SESSIONS must be positive")
	}
	if c.LockTTL <= 0 || c.SessionTTL <= 0 || c.PreviewTTL <= 0 {
		return errors.New("config: durations must be positive")
	}
	return nil
}
