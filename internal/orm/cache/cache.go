// Package cache stores short-lived access decisions. Entries are opaque
// bytes under string keys, held in process memory or in Redis so that
// several object servers share them.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend names
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Cache is implemented by every backend
type Cache interface {
	// Get retrieves a value; a missing or expired key yields ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with a TTL; zero uses the configured default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value
	Delete(ctx context.Context, key string) error

	// Clear removes every value under the configured prefix
	Clear(ctx context.Context) error

	// Close releases the backend
	Close() error
}

// Config holds common configuration for cache backends
type Config struct {
	// Backend is BackendMemory or BackendRedis
	Backend string
	// DefaultTTL is the time-to-live of entries stored without one
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
	// RedisAddr is the Redis server address (host:port)
	RedisAddr string
	// RedisPassword is the Redis password (optional)
	RedisPassword string
	// RedisDB is the Redis database number
	RedisDB int
}

// DefaultConfig returns the configuration of an in-memory cache
func DefaultConfig() Config {
	return Config{
		Backend:    BackendMemory,
		DefaultTTL: 30 * time.Second,
		Prefix:     "objectserver:",
		RedisAddr:  "localhost:6379",
	}
}

// New creates the backend named by config
func New(ctx context.Context, config Config) (Cache, error) {
	switch strings.ToLower(config.Backend) {
	case "", BackendMemory:
		return NewMemoryCache(config), nil
	case BackendRedis:
		return NewRedisCache(ctx, config)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", config.Backend)
	}
}

// ErrCacheMiss is returned when a key is not found in the cache
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func miss(key string) error {
	return fmt.Errorf("%w: %s", ErrCacheMiss, key)
}
