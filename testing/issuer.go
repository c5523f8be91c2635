// Package testing provides utilities for testing applications that receive
// signed payment notifications. It runs a mock certificate host that publishes a
// root CA and a signing certificate issued by it, and signs notification bodies
// the way the payment provider does, enabling integration tests without the
// provider's infrastructure.
//
// Example usage:
//
//	ca := testing.NewTestCA()
//	defer ca.Close()
//
//	resolver, _ := certkit.NewResolver(ca.RootURL(), ca.LeafURL())
//	verifier := jwskit.NewVerifier(resolver)
//
//	body := []byte("id=1&tr_id=TR-1&tr_status=TRUE")
//	ok := verifier.Verify(ctx, ca.Sign(body), body)
package testing

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Paths served by the mock certificate host.
const (
	RootPath  = "/root.pem"
	LeafPath  = "/leaf.pem"
	RoguePath = "/rogue.pem"
)

// TestCA provides a complete mock certificate setup for testing.
// It runs an HTTP server that serves the root certificate at /root.pem, the
// signing certificate at /leaf.pem, and a self-issued certificate that does not
// chain to the root at /rogue.pem.
type TestCA struct {
	server *httptest.Server

	rootKey  *rsa.PrivateKey
	root     *x509.Certificate
	rootPEM  []byte
	leafKey  *rsa.PrivateKey
	leaf     *x509.Certificate
	leafPEM  []byte
	rogueKey *rsa.PrivateKey
	roguePEM []byte

	mu   sync.Mutex
	hits map[string]int
	// delay is applied before every response; used to widen race windows.
	delay time.Duration
}

// NewTestCA creates a root CA, a signing certificate issued by it, and an HTTP
// server publishing both. Call Close() when done to shut down the server.
func NewTestCA() *TestCA {
	ca := &TestCA{hits: make(map[string]int)}

	ca.rootKey = mustKey()
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root CA", Organization: []string{"tpayhook"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	ca.root, ca.rootPEM = mustIssue(rootTmpl, rootTmpl, &ca.rootKey.PublicKey, ca.rootKey)

	ca.leafKey = mustKey()
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Test Notification Signer", Organization: []string{"tpayhook"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(12 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	ca.leaf, ca.leafPEM = mustIssue(leafTmpl, ca.root, &ca.leafKey.PublicKey, ca.rootKey)

	// Same subject as the real signer, but self-issued.
	ca.rogueKey = mustKey()
	rogueTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(3),
		Subject:               pkix.Name{CommonName: "Test Root CA", Organization: []string{"tpayhook"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(12 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	_, ca.roguePEM = mustIssue(rogueTmpl, rogueTmpl, &ca.rogueKey.PublicKey, ca.rogueKey)

	mux := http.NewServeMux()
	mux.HandleFunc(RootPath, ca.servePEM(RootPath, ca.rootPEM))
	mux.HandleFunc(LeafPath, ca.servePEM(LeafPath, ca.leafPEM))
	mux.HandleFunc(RoguePath, ca.servePEM(RoguePath, ca.roguePEM))

	ca.server = httptest.NewServer(mux)
	return ca
}

// URL returns the base URL of the certificate host.
func (ca *TestCA) URL() string { return ca.server.URL }

// RootURL returns the URL of the root certificate.
func (ca *TestCA) RootURL() string { return ca.server.URL + RootPath }

// LeafURL returns the URL of the signing certificate.
func (ca *TestCA) LeafURL() string { return ca.server.URL + LeafPath }

// RogueURL returns the URL of a certificate that does not chain to the root.
func (ca *TestCA) RogueURL() string { return ca.server.URL + RoguePath }

// Root returns the parsed root certificate.
func (ca *TestCA) Root() *x509.Certificate { return ca.root }

// Leaf returns the parsed signing certificate.
func (ca *TestCA) Leaf() *x509.Certificate { return ca.leaf }

// RootPEM returns the PEM encoded root certificate.
func (ca *TestCA) RootPEM() []byte { return ca.rootPEM }

// LeafPEM returns the PEM encoded signing certificate.
func (ca *TestCA) LeafPEM() []byte { return ca.leafPEM }

// LeafKey returns the signing certificate's private key.
func (ca *TestCA) LeafKey() *rsa.PrivateKey { return ca.leafKey }

// Hits returns how many times path was requested.
func (ca *TestCA) Hits(path string) int {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	return ca.hits[path]
}

// SetDelay makes every response wait d before being written.
func (ca *TestCA) SetDelay(d time.Duration) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	ca.delay = d
}

// Close shuts down the certificate host.
func (ca *TestCA) Close() {
	if ca.server != nil {
		ca.server.Close()
	}
}

func (ca *TestCA) servePEM(path string, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ca.mu.Lock()
		ca.hits[path]++
		delay := ca.delay
		ca.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		w.Header().Set("Content-Type", "application/x-pem-file")
		_, _ = w.Write(body)
	}
}

// Sign returns a compact JWS for body whose x5u points at the signing certificate.
// The payload segment is left empty; the signature covers header + "." + base64url(body).
func (ca *TestCA) Sign(body []byte) string {
	return ca.SignWithHeader(map[string]any{"alg": "RS256", "x5u": ca.LeafURL()}, body)
}

// SignWithHeader signs body with the signing certificate's key using a custom protected header.
func (ca *TestCA) SignWithHeader(header map[string]any, body []byte) string {
	return SignCompact(ca.leafKey, header, body)
}

// SignWithRogueKey signs body with the rogue certificate's key, pointing x5u at x5u.
func (ca *TestCA) SignWithRogueKey(x5u string, body []byte) string {
	return SignCompact(ca.rogueKey, map[string]any{"alg": "RS256", "x5u": x5u}, body)
}

// SignCompact produces header..signature with RS256 over header + "." + base64url(body).
func SignCompact(key *rsa.PrivateKey, header map[string]any, body []byte) string {
	hb, err := json.Marshal(header)
	if err != nil {
		panic("failed to marshal jws header: " + err.Error())
	}
	h := base64.RawURLEncoding.EncodeToString(hb)
	input := h + "." + base64.RawURLEncoding.EncodeToString(body)
	sig, err := jwt.SigningMethodRS256.Sign(input, key)
	if err != nil {
		panic("failed to sign notification: " + err.Error())
	}
	return h + ".." + base64.RawURLEncoding.EncodeToString(sig)
}

func mustKey() *rsa.PrivateKey {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic("failed to generate RSA key: " + err.Error())
	}
	return k
}

func mustIssue(tmpl, parent *x509.Certificate, pub *rsa.PublicKey, signer *rsa.PrivateKey) (*x509.Certificate, []byte) {
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, pub, signer)
	if err != nil {
		panic("failed to create certificate: " + err.Error())
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		panic("failed to parse certificate: " + err.Error())
	}
	return cert, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}
