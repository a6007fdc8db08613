// Package natskv is the shared L2 level of the detail cache, kept in a
// JetStream key-value bucket that every instance reads.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache stores values in one KV bucket. Expiry is the bucket's TTL; the
// per-call ttl is ignored.
type Cache struct {
	bucket jetstream.KeyValue
}

func New(bucket jetstream.KeyValue) *Cache {
	return &Cache{bucket: bucket}
}

func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.bucket.Get(ctx, encodeKey(key))
	switch {
	case errors.Is(err, jetstream.ErrKeyNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := c.bucket.Put(ctx, encodeKey(key), value); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Delete leaves a delete marker so watchers see the removal. Deleting an
// absent key succeeds.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.bucket.Delete(ctx, encodeKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// encodeKey replaces every byte outside the KV key alphabet
// [-/_=.a-zA-Z0-9] with '_'. Tenant and task ids are uuids or slugs, so
// collisions do not occur in practice.
func encodeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := range len(key) {
		ch := key[i]
		if validKeyByte(ch) {
			b.WriteByte(ch)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func validKeyByte(ch byte) bool {
	switch {
	case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9':
		return true
	}
	return strings.IndexByte("-/_=.", ch) >= 0
}
