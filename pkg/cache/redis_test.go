package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

// setupTestRedis creates a redis cache backed by miniredis
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	c, err := NewRedisCache(RedisConfig{Address: mr.Addr()}, logger)
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return c, mr
}

// TestRedisGetSet tests basic set and get behavior
func TestRedisGetSet(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := c.Set(ctx, "latestVersion", "3.2.0", time.Hour); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	value, ok, err := c.Get(ctx, "latestVersion")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if !ok || value != "3.2.0" {
		t.Errorf("expected 3.2.0 present, got %q present=%v", value, ok)
	}
}

// TestRedisGetMissing tests that absence is not an error
func TestRedisGetMissing(t *testing.T) {
	c, _ := setupTestRedis(t)

	value, ok, err := c.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || value != "" {
		t.Errorf("expected absent key, got %q present=%v", value, ok)
	}
}

// TestRedisTTLExpiry tests server-side expiry using miniredis time travel
func TestRedisTTLExpiry(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := c.Set(ctx, "token", "user-1", time.Minute); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	if _, ok, _ := c.Get(ctx, "token"); !ok {
		t.Fatal("expected key to be present before expiry")
	}

	mr.FastForward(2 * time.Minute)

	if _, ok, _ := c.Get(ctx, "token"); ok {
		t.Error("expected key to be absent after expiry")
	}
}

// TestRedisZeroTTL tests that ttl zero stores without expiry
func TestRedisZeroTTL(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := c.Set(ctx, "pinned", "value", 0); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	mr.FastForward(24 * time.Hour)

	if _, ok, _ := c.Get(ctx, "pinned"); !ok {
		t.Error("expected zero-ttl key to survive")
	}
}

// TestRedisDelete tests removal semantics
func TestRedisDelete(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("expected deleted key to be absent")
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("unexpected error deleting absent key: %v", err)
	}
}

// TestNewRejectsUnknownEngine tests the factory's engine selection
func TestNewRejectsUnknownEngine(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	if _, err := New(Config{Engine: "memcached"}, logger); err == nil {
		t.Error("expected unknown engine to fail")
	}

	c, err := New(Config{}, logger)
	if err != nil {
		t.Fatalf("expected default engine to work: %v", err)
	}
	defer c.Close()
	if _, ok := c.(*MemoryCache); !ok {
		t.Errorf("expected default engine to be memory, got %T", c)
	}
}
