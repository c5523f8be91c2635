package jwskit

import "errors"

var (
	// ErrMalformedToken reports a compact JWS missing segments or header fields.
	ErrMalformedToken = errors.New("jws: malformed token")
	// ErrSignatureMismatch reports a signature that does not verify under the certificate key.
	ErrSignatureMismatch = errors.New("jws: signature mismatch")
)

// Diagnostic codes attached to every verification failure.
const (
	CodeMissingSegments          = "missing_segments"
	CodeInvalidHeader            = "invalid_header"
	CodeMissingX5U               = "missing_x5u"
	CodeUntrustedCertificate     = "untrusted_certificate"
	CodeCertificateUnavailable   = "certificate_unavailable"
	CodeInvalidSignatureEncoding = "invalid_signature_encoding"
	CodeSignatureMismatch        = "signature_mismatch"
)

// VerificationError identifies the stage at which verification failed.
type VerificationError struct {
	Code string
	Err  error
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return "jws: " + e.Code
	}
	return "jws: " + e.Code + ": " + e.Err.Error()
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Code extracts the diagnostic code from err, or "" if err is not a VerificationError.
func Code(err error) string {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

func fail(code string, err error) error {
	return &VerificationError{Code: code, Err: err}
}
