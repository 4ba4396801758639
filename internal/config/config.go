// Package config loads econsim settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the econsim daemon configuration.
type Config struct {
	// Simulation
	Seed       int64   `env:"ECONSIM_SEED" envDefault:"42"`
	StartYear  int     `env:"ECONSIM_START_YEAR" envDefault:"2000"`
	RunHours   uint64  `env:"ECONSIM_RUN_HOURS" envDefault:"0"` // 0 runs until stopped
	Speed      float64 `env:"ECONSIM_SPEED" envDefault:"1"`
	IntervalMS int     `env:"ECONSIM_INTERVAL_MS" envDefault:"1000"`
	Currency   string  `env:"ECONSIM_CURRENCY" envDefault:"EUR"`

	// Population
	Firms         int     `env:"ECONSIM_FIRMS" envDefault:"9"`
	Households    int     `env:"ECONSIM_HOUSEHOLDS" envDefault:"27"`
	Dealers       int     `env:"ECONSIM_DEALERS" envDefault:"3"`
	StartingMoney float64 `env:"ECONSIM_STARTING_MONEY" envDefault:"500"`

	// Server
	Port     int    `env:"ECONSIM_PORT" envDefault:"8080"`
	AdminKey string `env:"ECONSIM_ADMIN_KEY"`

	// Storage
	DBPath        string `env:"ECONSIM_DB_PATH" envDefault:"data/econsim.db"`
	RedisURL      string `env:"REDIS_URL"` // empty disables the quote cache
	RedisPassword string `env:"REDIS_PASSWORD"`
	QuoteTTLSec   int    `env:"QUOTE_TTL_SEC" envDefault:"300"`

	// Observability
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Interval returns the wall time per simulated hour at speed 1.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// QuoteTTL returns the cache TTL of published quotes.
func (c *Config) QuoteTTL() time.Duration {
	return time.Duration(c.QuoteTTLSec) * time.Second
}

// Level maps LogLevel to a slog level.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.StartYear < 1 {
		return fmt.Errorf("invalid start year: %d", c.StartYear)
	}
	if c.Speed < 0 {
		return fmt.Errorf("speed must not be negative, got %v", c.Speed)
	}
	if c.IntervalMS < 0 {
		return fmt.Errorf("interval must not be negative, got %dms", c.IntervalMS)
	}
	if c.Firms < 0 || c.Households < 0 || c.Dealers < 0 {
		return fmt.Errorf("agent counts must not be negative: firms=%d households=%d dealers=%d",
			c.Firms, c.Households, c.Dealers)
	}
	if c.StartingMoney < 0 {
		return fmt.Errorf("starting money must not be negative, got %v", c.StartingMoney)
	}
	if c.Currency == "" {
		return fmt.Errorf("currency must be set")
	}
	if c.RedisURL != "" && c.QuoteTTLSec < 1 {
		return fmt.Errorf("quote TTL must be at least 1s, got %ds", c.QuoteTTLSec)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	return nil
}
