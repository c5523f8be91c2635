// Package config loads service configuration from defaults, an optional YAML
// file, and TPAY_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable, e.g. TPAY_CA_ROOT_CERTIFICATE -> ca_root_certificate.
const EnvPrefix = "TPAY_"

type Config struct {
	// Certificate trust
	CARootCertificate    string        `koanf:"ca_root_certificate"`
	SignatureCertificate string        `koanf:"signature_certificate"`
	FetchTimeout         time.Duration `koanf:"fetch_timeout"`
	AllowInsecureFetch   bool          `koanf:"allow_insecure_fetch"`
	SecurityCode         string        `koanf:"security_code"`

	// API credentials
	APIDomain string `koanf:"api_domain"`
	ClientID  string `koanf:"client_id"`
	Secret    string `koanf:"secret"`

	// HTTP
	HTTPAddr   string        `koanf:"http_addr"`
	RateLimit  int           `koanf:"rate_limit"`
	RateWindow time.Duration `koanf:"rate_window"`

	// Storage
	RedisURL    string        `koanf:"redis_url"`
	DatabaseURL string        `koanf:"database_url"`
	ReceiptTTL  time.Duration `koanf:"receipt_ttl"`
	Retention   time.Duration `koanf:"retention"`
	// RetentionSchedule is a cron spec for the retention sweep.
	RetentionSchedule string `koanf:"retention_schedule"`
	Workers           int    `koanf:"workers"`

	// Logging
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// Load reads configuration and validates it. Missing certificate URLs are a
// startup error.
func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	_ = k.Load(confmap.Provider(map[string]any{
		"fetch_timeout":      "10s",
		"http_addr":          ":8080",
		"rate_limit":         120,
		"rate_window":        "1m",
		"receipt_ttl":        "72h",
		"retention":          "2160h",
		"retention_schedule": "@daily",
		"workers":            10,
		"log_level":          "info",
		"log_format":         "json",
	}, "."), nil)

	for _, path := range configPaths {
		if path == "" {
			continue
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	// TPAY_CA_ROOT_CERTIFICATE -> ca_root_certificate
	_ = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if err := c.checkCertURL("ca_root_certificate", c.CARootCertificate); err != nil {
		errs = append(errs, err)
	}
	if err := c.checkCertURL("signature_certificate", c.SignatureCertificate); err != nil {
		errs = append(errs, err)
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("config: fetch_timeout must be positive"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("config: rate_limit must not be negative"))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func (c *Config) checkCertURL(key, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("config: %s%s is required", EnvPrefix, strings.ToUpper(key))
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("config: %s is not an absolute url", key)
	}
	if u.Scheme == "https" || (u.Scheme == "http" && c.AllowInsecureFetch) {
		return nil
	}
	return fmt.Errorf("config: %s must use https", key)
}

// HasAPICredentials reports whether the OAuth API client can be built.
func (c *Config) HasAPICredentials() bool {
	return c.APIDomain != "" && c.ClientID != "" && c.Secret != ""
}
