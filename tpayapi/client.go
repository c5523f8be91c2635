// Package tpayapi is a minimal client for the payment provider's REST API,
// authenticated with OAuth client credentials.
package tpayapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultScopes are requested when Config.Scopes is empty.
var DefaultScopes = []string{"read", "write"}

// Config describes API credentials.
type Config struct {
	// Domain is the API host, e.g. "openapi.sandbox.tpay.com". A full base URL is also accepted.
	Domain       string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// HTTPClient is used for all requests; defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

func (c Config) baseURL() string {
	d := strings.TrimRight(strings.TrimSpace(c.Domain), "/")
	if strings.HasPrefix(d, "https://") || strings.HasPrefix(d, "http://") {
		return d
	}
	return "https://" + d
}

func (c Config) scopes() []string {
	if len(c.Scopes) == 0 {
		return DefaultScopes
	}
	return c.Scopes
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Client calls authenticated API endpoints.
type Client struct {
	base   string
	tokens oauth2.TokenSource
	http   *http.Client
}

// NewClient validates cfg and returns a client whose requests carry a bearer token.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Domain) == "" {
		return nil, errors.New("tpayapi: domain is empty")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("tpayapi: client credentials are required")
	}
	ts := NewTokenSource(ctx, cfg)
	base := cfg.httpClient()
	hc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
	hc.Timeout = base.Timeout
	return &Client{base: cfg.baseURL(), tokens: ts, http: hc}, nil
}

// Token returns the current access token, fetching a new one if needed.
func (c *Client) Token() (*oauth2.Token, error) { return c.tokens.Token() }

// TokenInfo returns the provider's description of the current access token.
func (c *Client) TokenInfo(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/oauth/tokeninfo", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tpayapi: tokeninfo failed: %s", resp.Status)
	}
	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("tpayapi: decode tokeninfo: %w", err)
	}
	return info, nil
}
