package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(10, 0)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("Get() on empty cache reported a hit")
	}

	c.Set(ctx, "k", "v")
	got, ok := c.Get(ctx, "k")
	if !ok || got != "v" {
		t.Errorf("Get() = %q, %v, want v, true", got, ok)
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "k", "v")
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("entry expired immediately")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("entry survived past its TTL")
	}
}

func TestMemoryCacheEvictsOldest(t *testing.T) {
	c := NewMemoryCache(2, 0)
	ctx := context.Background()

	c.Set(ctx, "a", "1")
	c.Set(ctx, "b", "2")
	c.Set(ctx, "c", "3")

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("oldest entry a not evicted")
	}
	if _, ok := c.Get(ctx, "c"); !ok {
		t.Error("newest entry c missing")
	}
}
