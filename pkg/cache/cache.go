// Package cache provides the ephemeral TTL store used for short-lived facts
// such as session tokens and the cached latest-version lookup. Entries are
// disposable: expiry is indistinguishable from never having been set, and
// no caller may rely on an entry surviving.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Cache is the ephemeral key-value contract. Implementations must treat an
// expired entry exactly like an absent one.
type Cache interface {
	// Get returns the value for key and whether it was present and live.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases engine resources.
	Close() error
}

// Engine names a cache backend.
type Engine string

const (
	// EngineMemory is the in-process map engine.
	EngineMemory Engine = "memory"

	// EngineRedis is the Redis-backed engine.
	EngineRedis Engine = "redis"
)

// Config holds cache configuration for both engines.
type Config struct {
	// Engine selects the backend, memory by default.
	Engine Engine

	// CleanupInterval is how often the memory engine sweeps expired
	// entries. Ignored by the redis engine.
	CleanupInterval time.Duration

	// Redis holds redis engine settings. Ignored by the memory engine.
	Redis RedisConfig
}

// New builds a cache for the configured engine.
func New(cfg Config, logger zerolog.Logger) (Cache, error) {
	switch cfg.Engine {
	case EngineMemory, "":
		return NewMemoryCache(cfg.CleanupInterval, logger), nil
	case EngineRedis:
		return NewRedisCache(cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown cache engine: %s", cfg.Engine)
	}
}
