package certkit

import (
	"context"
	"crypto/x509"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// LoadFunc produces the trusted root certificate on a cache miss.
type LoadFunc func(ctx context.Context) (*x509.Certificate, error)

// RootCache holds the trusted root certificate for the life of the process.
// Concurrent misses share a single load; failed loads are not cached.
type RootCache struct {
	load  LoadFunc
	cert  atomic.Pointer[x509.Certificate]
	group singleflight.Group
}

// NewRootCache returns an empty cache that fills itself with load.
func NewRootCache(load LoadFunc) *RootCache {
	return &RootCache{load: load}
}

// Get returns the cached root, loading it on first use.
func (c *RootCache) Get(ctx context.Context) (*x509.Certificate, error) {
	if cert := c.cert.Load(); cert != nil {
		return cert, nil
	}
	if c.load == nil {
		return nil, fmt.Errorf("%w: root cache has no loader", ErrFetch)
	}
	// The shared load must not die with whichever caller happened to start it.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("root", func() (any, error) {
		if cert := c.cert.Load(); cert != nil {
			return cert, nil
		}
		cert, err := c.load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.cert.Store(cert)
		return cert, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrFetch, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*x509.Certificate), nil
	}
}

// Set replaces the cached root.
func (c *RootCache) Set(cert *x509.Certificate) { c.cert.Store(cert) }

// Reset drops the cached root so the next Get loads it again.
func (c *RootCache) Reset() { c.cert.Store(nil) }

// Cached reports the current root without loading.
func (c *RootCache) Cached() (*x509.Certificate, bool) {
	cert := c.cert.Load()
	return cert, cert != nil
}
