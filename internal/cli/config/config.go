package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/objectserver/internal/logging"
	"github.com/conduit-lang/objectserver/internal/orm/cache"
	"github.com/conduit-lang/objectserver/internal/orm/transaction"
)

// FileName is the configuration file looked up in the working directory
const FileName = "objectserver"

// CacheDisabled as cache.backend turns decision caching off
const CacheDisabled = "none"

// Config represents the objectserver configuration
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Log         LogConfig         `mapstructure:"log"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Transaction TransactionConfig `mapstructure:"transaction"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	URL          string `mapstructure:"url"`
	Isolation    string `mapstructure:"isolation"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// CacheConfig represents the access decision cache configuration
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	Prefix        string        `mapstructure:"prefix"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Textfile is written in the Prometheus text format after each command
	// when set, for node_exporter's textfile collector
	Textfile string `mapstructure:"textfile"`
}

// TransactionConfig represents call transaction configuration
type TransactionConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Load reads the configuration from path, or from objectserver.yaml in the
// working directory when path is empty. A missing default file is not an
// error. OBJECTSERVER_* environment variables override file values, and
// DATABASE_URL overrides database.url.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", "objectserver.db")
	v.SetDefault("database.isolation", "serializable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("cache.backend", cache.BackendMemory)
	v.SetDefault("cache.ttl", 30*time.Second)
	v.SetDefault("cache.prefix", "objectserver:")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("transaction.max_retries", transaction.DefaultMaxRetries)
	v.SetDefault("transaction.base_backoff", transaction.DefaultBaseBackoff)
	v.SetDefault("transaction.timeout", 30*time.Second)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Enable environment variable support
	v.SetEnvPrefix("OBJECTSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.URL = url
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// IsolationLevel returns the parsed database.isolation value
func (c *Config) IsolationLevel() transaction.IsolationLevel {
	level, err := transaction.ParseIsolationLevel(c.Database.Isolation)
	if err != nil {
		return transaction.Serializable
	}
	return level
}

// RetryConfig returns the retry policy, or nil when retries are disabled
func (c *Config) RetryConfig() *transaction.RetryConfig {
	if c.Transaction.MaxRetries <= 0 {
		return nil
	}
	return &transaction.RetryConfig{
		MaxRetries:  c.Transaction.MaxRetries,
		BaseBackoff: c.Transaction.BaseBackoff,
	}
}

// CacheConfig returns the configuration of the decision cache
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		Backend:       c.Cache.Backend,
		DefaultTTL:    c.Cache.TTL,
		Prefix:        c.Cache.Prefix,
		RedisAddr:     c.Cache.RedisAddr,
		RedisPassword: c.Cache.RedisPassword,
		RedisDB:       c.Cache.RedisDB,
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Database.Driver {
	case "sqlite3", "pgx", "postgres":
	default:
		return fmt.Errorf("database.driver must be one of sqlite3, pgx, postgres, got: %s", cfg.Database.Driver)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if _, err := transaction.ParseIsolationLevel(cfg.Database.Isolation); err != nil {
		return fmt.Errorf("database.isolation: %w", err)
	}
	if cfg.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns must not be negative, got: %d", cfg.Database.MaxOpenConns)
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Cache.Backend {
	case cache.BackendMemory, cache.BackendRedis, CacheDisabled:
	default:
		return fmt.Errorf("cache.backend must be one of memory, redis, none, got: %s", cfg.Cache.Backend)
	}
	if cfg.Transaction.Timeout < 0 {
		return fmt.Errorf("transaction.timeout must not be negative, got: %s", cfg.Transaction.Timeout)
	}
	return nil
}

// Error marks a failure to load or validate the configuration
type Error struct {
	Err error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }
