// Package config loads the client configuration from the environment,
// optionally seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Sternrassler/mediahub-client/pkg/catalog"
	"github.com/Sternrassler/mediahub-client/pkg/client"
	"github.com/Sternrassler/mediahub-client/pkg/logging"
	"github.com/Sternrassler/mediahub-client/pkg/validate"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Config is the runtime configuration.
type Config struct {
	CatalogURL string `env:"MEDIAHUB_CATALOG_URL" validate:"required,url"`
	AdminURL   string `env:"MEDIAHUB_ADMIN_URL" validate:"omitempty,url"`
	AuthURL    string `env:"MEDIAHUB_AUTH_URL" validate:"omitempty,url"`
	PaywallURL string `env:"MEDIAHUB_PAYWALL_URL" envDefault:"/subscription" validate:"required"`

	PageSize   int           `env:"MEDIAHUB_PAGE_SIZE" envDefault:"12" validate:"min=1,max=100"`
	UserAgent  string        `env:"MEDIAHUB_USER_AGENT" envDefault:"mediahub-client/1.0" validate:"required"`
	Timeout    time.Duration `env:"MEDIAHUB_TIMEOUT" envDefault:"30s"`
	RateLimit  int           `env:"MEDIAHUB_RATE_LIMIT" envDefault:"10" validate:"min=0"`
	MaxRetries int           `env:"MEDIAHUB_MAX_RETRIES" envDefault:"3" validate:"min=1,max=10"`

	RedisAddr string        `env:"MEDIAHUB_REDIS_ADDR"`
	CacheTTL  time.Duration `env:"MEDIAHUB_CACHE_TTL" envDefault:"60s"`

	SessionFile string `env:"MEDIAHUB_SESSION_FILE"`
	MetricsAddr string `env:"MEDIAHUB_METRICS_ADDR"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load reads envFiles (missing files are skipped; variables already set in
// the environment win) and parses the environment.
func Load(envFiles ...string) (*Config, error) {
	for _, path := range envFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid config: MEDIAHUB_TIMEOUT must be positive (got %s)", c.Timeout)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("invalid config: MEDIAHUB_CACHE_TTL must be positive (got %s)", c.CacheTTL)
	}
	return nil
}

// Logging returns the logger setup.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(c.LogLevel),
		Pretty: c.LogPretty,
		App:    "mediahub",
	}
}

// Client returns the HTTP client configuration. rdb may be nil.
func (c *Config) Client(rdb *redis.Client) client.Config {
	cfg := client.DefaultConfig(c.UserAgent)
	cfg.CatalogURL = c.CatalogURL
	cfg.AdminURL = c.AdminURL
	cfg.AuthURL = c.AuthURL
	cfg.Timeout = c.Timeout
	cfg.RateLimit = c.RateLimit
	cfg.Retry.MaxAttempts = c.MaxRetries
	cfg.CacheTTL = c.CacheTTL
	cfg.Redis = rdb
	return cfg
}

// Controller returns the catalog controller configuration.
func (c *Config) Controller() catalog.ControllerConfig {
	cfg := catalog.DefaultControllerConfig()
	cfg.PageSize = c.PageSize
	cfg.PaywallURL = c.PaywallURL
	cfg.FetchTimeout = c.Timeout
	return cfg
}

// Redis returns a client for RedisAddr, or nil when caching is disabled.
func (c *Config) Redis() *redis.Client {
	if c.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: c.RedisAddr})
}
