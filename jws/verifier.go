// Package jwskit verifies payment notifications signed as compact JWS with an
// x5u header. The payload segment of the token is ignored: the signature is
// checked over the protected header and the raw request body, so a token cannot
// vouch for a body other than the one it arrived with.
package jwskit

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	certkit "github.com/PaulFidika/tpayhook/certs"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/sirupsen/logrus"
)

// Algorithm is the only signature algorithm accepted.
const Algorithm = jwa.RS256

// LeafResolver returns the trusted signing certificate for an x5u URL.
// A nil certificate with a nil error means the URL is not trusted.
type LeafResolver interface {
	VerifiedLeaf(ctx context.Context, url string) (*x509.Certificate, error)
}

// Verifier checks notification signatures against certificates from a LeafResolver.
type Verifier struct {
	leaves LeafResolver
	sig    jws.Verifier
	log    logrus.FieldLogger
}

// VerifierOpt configures a Verifier.
type VerifierOpt func(*Verifier)

// WithLogger sets the logger that receives one entry per failed verification.
func WithLogger(l logrus.FieldLogger) VerifierOpt {
	return func(v *Verifier) {
		if l != nil {
			v.log = l
		}
	}
}

// NewVerifier builds a verifier backed by leaves.
func NewVerifier(leaves LeafResolver, opts ...VerifierOpt) *Verifier {
	sig, err := jws.NewVerifier(Algorithm)
	if err != nil {
		// RS256 is always registered in jwx.
		panic(fmt.Sprintf("jws: %s verifier unavailable: %v", Algorithm, err))
	}
	v := &Verifier{leaves: leaves, sig: sig, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify reports whether compact is a valid signature over body. It never
// panics and never returns an error; every failure is logged with its code.
func (v *Verifier) Verify(ctx context.Context, compact string, body []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.log.WithField("panic", r).Error("jws: verification aborted")
			ok = false
		}
	}()
	if err := v.Check(ctx, compact, body); err != nil {
		v.log.WithField("code", Code(err)).WithError(err).Warn("jws: notification signature rejected")
		return false
	}
	return true
}

// Check verifies compact over body and returns a *VerificationError on failure.
func (v *Verifier) Check(ctx context.Context, compact string, body []byte) error {
	headerSeg, sigSeg, err := SplitCompact(compact)
	if err != nil {
		return fail(CodeMissingSegments, err)
	}
	// The payload segment is dropped before parsing: the body stands in for it.
	msg, err := jws.ParseString(headerSeg + ".." + sigSeg)
	if err != nil {
		if _, herr := ParseHeader(headerSeg); herr != nil {
			return fail(CodeInvalidHeader, herr)
		}
		return fail(CodeInvalidSignatureEncoding, fmt.Errorf("%w: %w", ErrMalformedToken, err))
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return fail(CodeMissingSegments, fmt.Errorf("%w: expected one signature, got %d", ErrMalformedToken, len(sigs)))
	}
	hdr := sigs[0].ProtectedHeaders()
	if alg := hdr.Algorithm(); alg != "" && alg != Algorithm {
		return fail(CodeInvalidHeader, fmt.Errorf("%w: unsupported alg %q", ErrMalformedToken, alg))
	}
	x5u := hdr.X509URL()
	if x5u == "" {
		return fail(CodeMissingX5U, fmt.Errorf("%w: header has no x5u", ErrMalformedToken))
	}

	leaf, err := v.leaves.VerifiedLeaf(ctx, x5u)
	switch {
	case errors.Is(err, certkit.ErrUntrustedCertificate):
		return fail(CodeUntrustedCertificate, err)
	case err != nil:
		return fail(CodeCertificateUnavailable, err)
	case leaf == nil:
		return fail(CodeUntrustedCertificate, certkit.ErrCertificateNotAllowed)
	}

	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fail(CodeSignatureMismatch, fmt.Errorf("%w: certificate key is %T, want RSA", ErrSignatureMismatch, leaf.PublicKey))
	}
	if err := v.sig.Verify(SigningInput(headerSeg, body), sigs[0].Signature(), pub); err != nil {
		return fail(CodeSignatureMismatch, fmt.Errorf("%w: %w", ErrSignatureMismatch, err))
	}
	return nil
}

// SplitCompact returns the header and signature segments of a compact JWS.
// The payload segment, if any, is discarded.
func SplitCompact(compact string) (header, signature string, err error) {
	h, _, sig, err := jws.SplitCompactString(strings.TrimSpace(compact))
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if len(h) == 0 {
		return "", "", fmt.Errorf("%w: empty header segment", ErrMalformedToken)
	}
	if len(sig) == 0 {
		return "", "", fmt.Errorf("%w: empty signature segment", ErrMalformedToken)
	}
	return string(h), string(sig), nil
}

// ParseHeader decodes a protected header segment.
func ParseHeader(segment string) (jws.Headers, error) {
	msg, err := jws.ParseString(segment + "..")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	return msg.Signatures()[0].ProtectedHeaders(), nil
}
