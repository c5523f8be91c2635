package certkit

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"
)

// ParseCertificatePEM decodes the first CERTIFICATE block in pemBytes.
// Leading non-PEM text and other block types are skipped.
func ParseCertificatePEM(pemBytes []byte) (*x509.Certificate, error) {
	if len(bytes.TrimSpace(pemBytes)) == 0 {
		return nil, fmt.Errorf("%w: empty certificate pem", ErrParse)
	}
	rest := pemBytes
	for {
		var blk *pem.Block
		blk, rest = pem.Decode(rest)
		if blk == nil {
			return nil, fmt.Errorf("%w: no CERTIFICATE block found", ErrParse)
		}
		if blk.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(blk.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		return cert, nil
	}
}

// VerifyIssuedBy reports whether leaf was issued by root: the issuer name must
// match the root's subject, the signature must verify under the root's key, and
// now must fall inside the leaf's validity window.
func VerifyIssuedBy(root, leaf *x509.Certificate, now time.Time) error {
	if root == nil || leaf == nil {
		return fmt.Errorf("%w: missing certificate", ErrUntrustedCertificate)
	}
	if !bytes.Equal(leaf.RawIssuer, root.RawSubject) {
		return fmt.Errorf("%w: issuer %q does not match root %q", ErrUntrustedCertificate, leaf.Issuer.String(), root.Subject.String())
	}
	if err := leaf.CheckSignatureFrom(root); err != nil {
		return fmt.Errorf("%w: %w", ErrUntrustedCertificate, err)
	}
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return fmt.Errorf("%w: certificate not valid at %s", ErrUntrustedCertificate, now.UTC().Format(time.RFC3339))
	}
	return nil
}
