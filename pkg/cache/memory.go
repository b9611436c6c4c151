package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/IntrovertedFL/runtipi/pkg/telemetry"
)

const defaultCleanupInterval = time.Minute

type memoryItem struct {
	value      string
	expiration int64 // unix nanos, 0 = no expiry
}

func (i memoryItem) expired(now int64) bool {
	return i.expiration > 0 && now > i.expiration
}

// MemoryCache is an in-process cache with per-entry TTLs and a background
// janitor that sweeps expired entries. Reads never return an expired value
// even between sweeps.
type MemoryCache struct {
	items  map[string]memoryItem
	mu     sync.RWMutex
	logger zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMemoryCache creates a memory cache and starts its janitor.
func NewMemoryCache(cleanupInterval time.Duration, logger zerolog.Logger) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &MemoryCache{
		items:  make(map[string]memoryItem),
		logger: logger.With().Str("component", "cache").Str("engine", "memory").Logger(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go c.janitor(ctx, cleanupInterval)
	return c
}

// Get returns the live value for key.
func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || item.expired(time.Now().UnixNano()) {
		telemetry.RecordCacheLookup(ctx, false)
		return "", false, nil
	}
	telemetry.RecordCacheLookup(ctx, true)
	return item.value, true, nil
}

// Set stores value under key with the given ttl.
func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	var expiration int64
	if ttl > 0 {
		expiration = time.Now().Add(ttl).UnixNano()
	}

	c.mu.Lock()
	c.items[key] = memoryItem{value: value, expiration: expiration}
	c.mu.Unlock()
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Close stops the janitor and drops all entries.
func (c *MemoryCache) Close() error {
	c.cancel()
	<-c.done

	c.mu.Lock()
	c.items = make(map[string]memoryItem)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) janitor(ctx context.Context, interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *MemoryCache) sweep() {
	now := time.Now().UnixNano()

	c.mu.Lock()
	removed := 0
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug().Int("removed", removed).Msg("Swept expired cache entries")
	}
}
