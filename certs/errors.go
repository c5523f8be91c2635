package certkit

import "errors"

var (
	// ErrFetch reports a network or HTTP failure while retrieving a certificate.
	ErrFetch = errors.New("certs: fetch failed")
	// ErrParse reports PEM or DER content that is not a usable certificate.
	ErrParse = errors.New("certs: parse failed")
	// ErrUntrustedCertificate reports a leaf that does not chain to the trusted root.
	ErrUntrustedCertificate = errors.New("certs: untrusted certificate")
	// ErrCertificateNotAllowed reports a certificate URL outside the allow-list.
	ErrCertificateNotAllowed = errors.New("certs: certificate url not allowed")
)
