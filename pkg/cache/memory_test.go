package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func setupMemoryCache(t *testing.T) *MemoryCache {
	t.Helper()

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	c := NewMemoryCache(10*time.Millisecond, logger)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// TestMemoryGetSet tests basic set and get behavior
func TestMemoryGetSet(t *testing.T) {
	c := setupMemoryCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "latestVersion", "3.2.0", time.Hour); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	value, ok, err := c.Get(ctx, "latestVersion")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if !ok {
		t.Fatal("expected key to be present")
	}
	if value != "3.2.0" {
		t.Errorf("expected 3.2.0, got %s", value)
	}
}

// TestMemoryGetMissing tests that an unset key reads as absent without error
func TestMemoryGetMissing(t *testing.T) {
	c := setupMemoryCache(t)

	value, ok, err := c.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || value != "" {
		t.Errorf("expected absent key, got %q present=%v", value, ok)
	}
}

// TestMemoryExpiry tests that expired entries read as absent even before
// the janitor sweeps them
func TestMemoryExpiry(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	// Long cleanup interval so expiry is enforced by reads, not the sweep.
	c := NewMemoryCache(time.Hour, logger)
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "token", "user-1", 20*time.Millisecond); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	if _, ok, _ := c.Get(ctx, "token"); !ok {
		t.Fatal("expected key to be present before expiry")
	}

	time.Sleep(40 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, "token"); ok {
		t.Error("expected key to be absent after expiry")
	}
}

// TestMemoryZeroTTLNeverExpires tests that ttl zero means no expiry
func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	c := setupMemoryCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "pinned", "value", 0); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	time.Sleep(30 * time.Millisecond) // several janitor cycles

	if _, ok, _ := c.Get(ctx, "pinned"); !ok {
		t.Error("expected zero-ttl key to survive")
	}
}

// TestMemoryOverwriteResetsTTL tests that a fresh Set rearms the entry
func TestMemoryOverwriteResetsTTL(t *testing.T) {
	c := setupMemoryCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v1", 20*time.Millisecond); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if err := c.Set(ctx, "k", "v2", time.Hour); err != nil {
		t.Fatalf("failed to overwrite: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	value, ok, _ := c.Get(ctx, "k")
	if !ok {
		t.Fatal("expected rearmed key to survive")
	}
	if value != "v2" {
		t.Errorf("expected v2, got %s", value)
	}
}

// TestMemoryDelete tests explicit removal
func TestMemoryDelete(t *testing.T) {
	c := setupMemoryCache(t)
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

	// Deleting an absent key is not an error.
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("unexpected error deleting absent key: %v", err)
	}
}

// TestMemoryJanitorSweeps tests that the background sweep removes expired
// entries from the map
func TestMemoryJanitorSweeps(t *testing.T) {
	c := setupMemoryCache(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := c.Set(ctx, key, "v", 5*time.Millisecond); err != nil {
			t.Fatalf("failed to set %s: %v", key, err)
		}
	}

	time.Sleep(50 * time.Millisecond)

	c.mu.RLock()
	remaining := len(c.items)
	c.mu.RUnlock()
	if remaining != 0 {
		t.Errorf("expected janitor to sweep all entries, %d remain", remaining)
	}
}

// TestMemoryConcurrentAccess tests for data races under parallel use
func TestMemoryConcurrentAccess(t *testing.T) {
	c := setupMemoryCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n))
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, key, "v", time.Millisecond)
				_, _, _ = c.Get(ctx, key)
				_ = c.Delete(ctx, key)
			}
		}(i)
	}
	wg.Wait()
}
