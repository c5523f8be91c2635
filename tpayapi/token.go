package tpayapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// AuthResponse is the body returned by /oauth/auth.
type AuthResponse struct {
	IssuedAt    int64  `json:"issued_at"`
	Scope       string `json:"scope"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	ClientID    string `json:"client_id"`
	AccessToken string `json:"access_token"`
}

// validate fails closed on any shape the API is not documented to return.
func (a AuthResponse) validate() error {
	switch {
	case a.TokenType != "Bearer":
		return fmt.Errorf("tpayapi: unexpected token_type %q", a.TokenType)
	case strings.TrimSpace(a.AccessToken) == "":
		return errors.New("tpayapi: missing access_token")
	case a.ExpiresIn <= 0:
		return fmt.Errorf("tpayapi: invalid expires_in %d", a.ExpiresIn)
	case a.IssuedAt <= 0:
		return fmt.Errorf("tpayapi: invalid issued_at %d", a.IssuedAt)
	case a.ClientID == "":
		return errors.New("tpayapi: missing client_id")
	}
	return nil
}

type authRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Scope        string `json:"scope"`
}

// tokenSource mints access tokens with client credentials posted as JSON.
type tokenSource struct {
	ctx  context.Context
	cfg  Config
	http *http.Client
}

// NewTokenSource returns a caching token source for cfg.
func NewTokenSource(ctx context.Context, cfg Config) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &tokenSource{ctx: ctx, cfg: cfg, http: cfg.httpClient()})
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	payload, err := json.Marshal(authRequest{
		ClientID:     ts.cfg.ClientID,
		ClientSecret: ts.cfg.ClientSecret,
		Scope:        strings.Join(ts.cfg.scopes(), " "),
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ts.ctx, http.MethodPost, ts.cfg.baseURL()+"/oauth/auth", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := ts.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tpayapi: auth request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("tpayapi: auth failed: %s", resp.Status)
	}
	var ar AuthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&ar); err != nil {
		return nil, fmt.Errorf("tpayapi: decode auth response: %w", err)
	}
	if err := ar.validate(); err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: ar.AccessToken,
		TokenType:   ar.TokenType,
		Expiry:      time.Unix(ar.IssuedAt, 0).Add(time.Duration(ar.ExpiresIn) * time.Second),
	}, nil
}
