package memorystore

import (
	"context"
	"sync"
	"time"
)

// ReceiptCache is an in-memory record of notification fingerprints already
// accepted, with TTL. It serves a single process only.
type ReceiptCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	data   map[string]time.Time
	closed chan struct{}
	once   sync.Once
}

// NewReceiptCache creates a new in-memory receipt cache with the given TTL.
// If ttl <= 0, a default of 72 hours is used.
// Starts a background goroutine to clean up expired entries every minute.
func NewReceiptCache(ttl time.Duration) *ReceiptCache {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	c := &ReceiptCache{ttl: ttl, data: make(map[string]time.Time), closed: make(chan struct{})}
	go c.cleanupLoop()
	return c
}

// Claim records fingerprint and reports whether it had not been seen within the TTL.
func (c *ReceiptCache) Claim(ctx context.Context, fingerprint string) (bool, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if exp, ok := c.data[fingerprint]; ok && now.Before(exp) {
		return false, nil
	}
	c.data[fingerprint] = now.Add(c.ttl)
	return true, nil
}

// Release forgets fingerprint so a redelivery is processed again.
func (c *ReceiptCache) Release(ctx context.Context, fingerprint string) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, fingerprint)
	return nil
}

// Len returns the number of live entries.
func (c *ReceiptCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *ReceiptCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.closed:
			return
		}
	}
}

func (c *ReceiptCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, exp := range c.data {
		if now.After(exp) {
			delete(c.data, k)
		}
	}
}

// Close stops the background cleanup goroutine.
func (c *ReceiptCache) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
