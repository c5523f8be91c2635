// Package certkit resolves the provider's signing certificate from its published
// URL and decides whether it is trusted.
//
// Trust is deliberately narrow: a leaf is accepted only when it was fetched from
// the single allow-listed signature certificate URL and was issued by the root
// certificate published at the configured root URL. The root is fetched once and
// reused until the process exits.
package certkit

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Resolver implements the certificate trust decision for JWS x5u headers.
type Resolver struct {
	rootURL string
	leafURL string
	fetcher Fetcher
	roots   *RootCache
	now     func() time.Time
	log     logrus.FieldLogger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFetcher overrides the HTTP fetcher.
func WithFetcher(f Fetcher) Option {
	return func(r *Resolver) {
		if f != nil {
			r.fetcher = f
		}
	}
}

// WithRootCache substitutes the root certificate cache.
func WithRootCache(c *RootCache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.roots = c
		}
	}
}

// WithClock sets the time source used for validity checks.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger used for trust diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// NewResolver builds a resolver for the given root and allow-listed signature certificate URLs.
func NewResolver(rootURL, signatureURL string, opts ...Option) (*Resolver, error) {
	if rootURL == "" {
		return nil, errors.New("certs: root certificate url is empty")
	}
	if signatureURL == "" {
		return nil, errors.New("certs: signature certificate url is empty")
	}
	r := &Resolver{
		rootURL: rootURL,
		leafURL: signatureURL,
		fetcher: NewHTTPFetcher(DefaultFetchTimeout),
		now:     time.Now,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.roots == nil {
		r.roots = NewRootCache(r.loadRoot)
	}
	return r, nil
}

// Roots exposes the root cache so callers can reset or prime it.
func (r *Resolver) Roots() *RootCache { return r.roots }

// SignatureURL returns the single allow-listed leaf certificate URL.
func (r *Resolver) SignatureURL() string { return r.leafURL }

// TrustedRoot returns the cached root certificate, fetching it on first use.
func (r *Resolver) TrustedRoot(ctx context.Context) (*x509.Certificate, error) {
	return r.roots.Get(ctx)
}

// VerifiedLeaf returns the certificate at url when url is the allow-listed
// signature certificate and it was issued by the trusted root.
//
// A url outside the allow-list yields (nil, nil) and triggers no network access.
// Fetch, parse, and chain failures yield (nil, err).
func (r *Resolver) VerifiedLeaf(ctx context.Context, url string) (*x509.Certificate, error) {
	if url != r.leafURL {
		r.log.WithField("x5u", url).Warn("certs: x5u is not the allow-listed signature certificate")
		return nil, nil
	}
	pemBytes, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, wrapKind(ErrFetch, err)
	}
	leaf, err := ParseCertificatePEM(pemBytes)
	if err != nil {
		return nil, err
	}
	root, err := r.TrustedRoot(ctx)
	if err != nil {
		return nil, err
	}
	if err := VerifyIssuedBy(root, leaf, r.now()); err != nil {
		r.log.WithError(err).WithField("subject", leaf.Subject.String()).Warn("certs: signature certificate rejected")
		return nil, err
	}
	return leaf, nil
}

func (r *Resolver) loadRoot(ctx context.Context) (*x509.Certificate, error) {
	pemBytes, err := r.fetcher.Fetch(ctx, r.rootURL)
	if err != nil {
		return nil, wrapKind(ErrFetch, err)
	}
	root, err := ParseCertificatePEM(pemBytes)
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{
		"subject":   root.Subject.String(),
		"not_after": root.NotAfter,
	}).Info("certs: trusted root certificate loaded")
	return root, nil
}

// wrapKind tags err with kind unless it already carries it.
func wrapKind(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
