// Package config loads server configuration.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Idempotency IdempotencyConfig
	Checkout    CheckoutConfig
	Breaker     BreakerConfig
	Log         LogConfig

	// Currency is the ISO 4217 code given to folios opened without one.
	Currency string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds the SQLite ledger location
type DatabaseConfig struct {
	Path string
}

// RedisConfig holds Redis connection settings. An empty Addr selects the
// in-memory idempotency store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// IdempotencyConfig holds replay store settings
type IdempotencyConfig struct {
	TTL time.Duration
}

// CheckoutConfig holds the checkout policy
type CheckoutConfig struct {
	AllowOutstandingBalance bool
	RequireFullDistribution bool
}

// BreakerConfig holds circuit breaker settings for the ledger backend
type BreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string // debug, info, warn, error
}

// Load reads configuration.
// Priority (highest to lowest):
// 1. Environment variables with FOLIODESK_ prefix (e.g., FOLIODESK_DATABASE_PATH)
// 2. foliodesk.toml in the working directory
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("foliodesk")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	return build(v)
}

// LoadFile reads configuration from an explicit file, still honoring
// environment overrides.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	// Enable environment variable override
	v.SetEnvPrefix("FOLIODESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("server.port"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Idempotency: IdempotencyConfig{
			TTL: v.GetDuration("idempotency.ttl"),
		},
		Checkout: CheckoutConfig{
			AllowOutstandingBalance: v.GetBool("checkout.allow_outstanding_balance"),
			RequireFullDistribution: v.GetBool("checkout.require_full_distribution"),
		},
		Breaker: BreakerConfig{
			MaxFailures: v.GetUint32("breaker.max_failures"),
			OpenTimeout: v.GetDuration("breaker.open_timeout"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
		Currency: v.GetString("currency"),
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/foliodesk.db"
	}
	if cfg.Idempotency.TTL == 0 {
		cfg.Idempotency.TTL = 72 * time.Hour
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = 5
	}
	if cfg.Breaker.OpenTimeout == 0 {
		cfg.Breaker.OpenTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	cfg.Currency = strings.ToUpper(cfg.Currency)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("server.port must be a port number, got %q", c.Server.Port)
	}
	if c.Idempotency.TTL < 0 {
		return fmt.Errorf("idempotency.ttl cannot be negative, got %s", c.Idempotency.TTL)
	}
	if c.Breaker.OpenTimeout < 0 {
		return fmt.Errorf("breaker.open_timeout cannot be negative, got %s", c.Breaker.OpenTimeout)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db cannot be negative, got %d", c.Redis.DB)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter ISO 4217 code, got %q", c.Currency)
	}
	return nil
}

// UsesRedis reports whether the Redis idempotency store is configured.
func (c *Config) UsesRedis() bool {
	return c.Redis.Addr != ""
}
