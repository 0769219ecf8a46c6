package invoke

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_StoreAndLookup(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	c.Store(ctx, "fp1", "result", time.Minute)
	got, hit := c.Lookup(ctx, "fp1")
	if !hit || got != "result" {
		t.Fatalf("expected hit with 'result', got (%q, %v)", got, hit)
	}

	if _, hit := c.Lookup(ctx, "missing"); hit {
		t.Fatal("expected miss for unknown fingerprint")
	}
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Store(ctx, "fp", "result", time.Minute)
	if _, hit := c.Lookup(ctx, "fp"); !hit {
		t.Fatal("entry should be live before its TTL")
	}

	now = now.Add(61 * time.Second)
	if _, hit := c.Lookup(ctx, "fp"); hit {
		t.Fatal("entry should be invisible after its TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be evicted on lookup, have %d entries", c.Len())
	}
}

func TestMemoryCache_ZeroTTLNeverStores(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	c.Store(ctx, "fp", "result", 0)
	c.Store(ctx, "fp2", "result", -time.Second)
	if c.Len() != 0 {
		t.Fatalf("zero or negative TTL must not store, have %d entries", c.Len())
	}
}

func TestMemoryCache_Invalidate(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	c.Store(ctx, "fp", "result", time.Minute)
	c.Invalidate(ctx, "fp")
	if _, hit := c.Lookup(ctx, "fp"); hit {
		t.Fatal("invalidated entry must miss")
	}
}

func TestMemoryCache_LastWriteWins(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	c.Store(ctx, "fp", "first", time.Minute)
	c.Store(ctx, "fp", "second", time.Minute)
	got, _ := c.Lookup(ctx, "fp")
	if got != "second" {
		t.Fatalf("expected last write to win, got %q", got)
	}
}
