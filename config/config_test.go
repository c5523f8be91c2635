package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PaulFidika/tpayhook/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("TPAY_CA_ROOT_CERTIFICATE", "https://secure.tpay.com/x509/tpay-jws-root.pem")
	t.Setenv("TPAY_SIGNATURE_CERTIFICATE", "https://secure.tpay.com/x509/notifications-jws.pem")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 120, cfg.RateLimit)
	assert.Equal(t, time.Minute, cfg.RateWindow)
	assert.Equal(t, 72*time.Hour, cfg.ReceiptTTL)
	assert.Equal(t, "@daily", cfg.RetentionSchedule)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.HasAPICredentials())
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TPAY_HTTP_ADDR", ":9090")
	t.Setenv("TPAY_FETCH_TIMEOUT", "3s")
	t.Setenv("TPAY_API_DOMAIN", "openapi.sandbox.tpay.com")
	t.Setenv("TPAY_CLIENT_ID", "client")
	t.Setenv("TPAY_SECRET", "secret")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "https://secure.tpay.com/x509/notifications-jws.pem", cfg.SignatureCertificate)
	assert.True(t, cfg.HasAPICredentials())
}

func TestLoad_File(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "tpayhook.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: \":7070\"\nlog_format: text\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_MissingCertificateURLs(t *testing.T) {
	t.Setenv("TPAY_CA_ROOT_CERTIFICATE", "")
	t.Setenv("TPAY_SIGNATURE_CERTIFICATE", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TPAY_CA_ROOT_CERTIFICATE")
	assert.Contains(t, err.Error(), "TPAY_SIGNATURE_CERTIFICATE")
}

func TestLoad_RequiresHTTPSUnlessAllowed(t *testing.T) {
	t.Setenv("TPAY_CA_ROOT_CERTIFICATE", "http://127.0.0.1:8081/root.pem")
	t.Setenv("TPAY_SIGNATURE_CERTIFICATE", "http://127.0.0.1:8081/leaf.pem")

	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("TPAY_ALLOW_INSECURE_FETCH", "true")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.AllowInsecureFetch)
}
