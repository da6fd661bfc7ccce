// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime setting of the bet engine.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// Storage. An empty DatabaseURL selects the in-memory store.
	DatabaseURL   string        `env:"DATABASE_URL"`
	RedisURL      string        `env:"REDIS_URL"`
	RedisCacheTTL time.Duration `env:"REDIS_CACHE_TTL" envDefault:"30s"`

	// Notification fan-out to the delivery system. Empty brokers disables it.
	KafkaBrokers            []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaNotificationsTopic string   `env:"KAFKA_NOTIFICATIONS_TOPIC" envDefault:"notifications"`

	// Identity. Without a JWT secret the X-User-ID header is trusted as is.
	AuthJWTSecret string `env:"AUTH_JWT_SECRET"`
	CronSecret    string `env:"CRON_SECRET"`

	// Sweep. A zero interval disables the in-process ticker; the cron
	// endpoint stays available for an external scheduler.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	SweepBudget   time.Duration `env:"SWEEP_BUDGET" envDefault:"30s"`
	GracePeriod   time.Duration `env:"GRACE_PERIOD" envDefault:"2h"`

	Timezone      string `env:"APP_TIMEZONE" envDefault:"UTC"`
	CurrencyLabel string `env:"CURRENCY_LABEL" envDefault:"Baht"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Location resolves the configured calendar timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SlogLevel maps LogLevel onto a slog level; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
