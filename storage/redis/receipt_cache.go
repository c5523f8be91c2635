package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReceiptCache stores accepted notification fingerprints in Redis so that
// every replica behind the webhook endpoint shares one view of redeliveries.
type ReceiptCache struct {
	rdb   redis.UniversalClient
	keyNS string
	ttl   time.Duration
}

// NewReceiptCache creates a Redis-backed receipt cache.
func NewReceiptCache(rdb redis.UniversalClient, keyPrefix string, ttl time.Duration) *ReceiptCache {
	if keyPrefix == "" {
		keyPrefix = "tpay:receipt:"
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &ReceiptCache{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (c *ReceiptCache) key(fingerprint string) string { return c.keyNS + fingerprint }

// Claim atomically records fingerprint and reports whether it was new.
func (c *ReceiptCache) Claim(ctx context.Context, fingerprint string) (bool, error) {
	return c.rdb.SetNX(ctx, c.key(fingerprint), time.Now().Unix(), c.ttl).Result()
}

// Release removes fingerprint.
func (c *ReceiptCache) Release(ctx context.Context, fingerprint string) error {
	return c.rdb.Del(ctx, c.key(fingerprint)).Err()
}
