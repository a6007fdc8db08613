// Package ristretto is the in-process L1 level of the detail cache.
package ristretto

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// avgEntryBytes approximates one cached task detail or upload outcome and
// sizes the admission counters.
const avgEntryBytes = 2 << 10

// Cache holds byte values bounded by their total size. Values are copied in
// and out so callers never share a buffer with the cache.
type Cache struct {
	store *ristretto.Cache[string, []byte]
}

// New creates a cache holding at most budget bytes of keys and values.
func New(budget int64) (*Cache, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("ristretto: budget must be positive, got %d", budget)
	}
	store, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(budget/avgEntryBytes*10, 1000),
		MaxCost:     budget,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Cache{store: store}, nil
}

func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set waits for the write to be applied so a following Get observes it. A
// ttl <= 0 keeps the entry until it is evicted.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cost := int64(len(key) + len(value))
	v := append([]byte(nil), value...)
	if ttl > 0 {
		c.store.SetWithTTL(key, v, cost, ttl)
	} else {
		c.store.Set(key, v, cost)
	}
	c.store.Wait()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.store.Del(key)
	return nil
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() { c.store.Close() }
