// Package tiered puts an in-process cache in front of a shared one.
package tiered

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Strob0t/TrackForge/internal/port/cache"
)

// Cache reads through l1 to l2 and backfills l1 on an l2 hit. The shared l2
// is the level of record: writes reach it first, and deletes clear it before
// l1 so a concurrent read cannot backfill l1 with the deleted value.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New creates a tiered cache. l1Expire caps how long an entry may live in
// l1, which bounds staleness when another instance's invalidation is missed.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get returns the l1 value, else the l2 value. Failures of either level
// degrade to a miss.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	if val, found, err := c.l1.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "l1 cache get failed", "key", key, "error", err)
	} else if found {
		return val, true, nil
	}

	val, found, err := c.l2.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "l2 cache get failed", "key", key, "error", err)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	_ = c.l1.Set(ctx, key, val, c.l1Expire)
	return val, true, nil
}

// Set writes l2 and then l1. If l2 rejects the value l1 is left untouched.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.l1.Set(ctx, key, value, c.l1TTL(ttl))
}

// Delete clears l2 and then l1. l1 is cleared even when l2 fails; both
// errors are returned.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err2 := c.l2.Delete(ctx, key)
	err1 := c.l1.Delete(ctx, key)
	return errors.Join(err2, err1)
}

func (c *Cache) l1TTL(ttl time.Duration) time.Duration {
	if c.l1Expire > 0 && (ttl <= 0 || ttl > c.l1Expire) {
		return c.l1Expire
	}
	return ttl
}
