// Package azure acquires Azure AD access tokens with the client-credentials
// grant. Tokens are cached per scope until shortly before they expire, and
// concurrent requests for the same scope share one round trip.
package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/navikt/aap-inntekt/pkg/config"
	apperrors "github.com/navikt/aap-inntekt/pkg/errors"
	"golang.org/x/sync/singleflight"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenProvider fetches and caches client-credentials tokens.
type TokenProvider struct {
	cfg    config.AzureConfig
	client *http.Client
	cache  Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewTokenProvider creates a TokenProvider. A nil cache means an in-memory
// cache private to this process.
func NewTokenProvider(cfg config.AzureConfig, client *http.Client, cache Cache) *TokenProvider {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenProvider{
		cfg:    cfg,
		client: client,
		cache:  cache,
		logger: slog.Default().With("component", "azure-token"),
	}
}

// Token returns a bearer token for scope. Every failure wraps
// ErrTokenUnavailable.
func (p *TokenProvider) Token(ctx context.Context, scope string) (string, error) {
	key := p.cacheKey(scope)
	if token, ok := p.cache.Get(ctx, key); ok {
		return token, nil
	}
	v, err, shared := p.group.Do(key, func() (any, error) {
		if token, ok := p.cache.Get(ctx, key); ok {
			return token, nil
		}
		resp, err := p.fetch(ctx, scope)
		if err != nil {
			return "", err
		}
		if ttl := time.Duration(resp.ExpiresIn)*time.Second - p.cfg.TokenCacheTTLSkew; ttl > 0 {
			p.cache.Set(ctx, key, resp.AccessToken, ttl)
		}
		p.logger.Debug("token acquired", "scope", scope, "expires_in", resp.ExpiresIn)
		return resp.AccessToken, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: scope %s: %w", apperrors.ErrTokenUnavailable, scope, err)
	}
	if shared {
		p.logger.Debug("token request shared", "scope", scope)
	}
	return v.(string), nil
}

func (p *TokenProvider) cacheKey(scope string) string {
	return "azure-token:" + p.cfg.ClientID + ":" + scope
}

func (p *TokenProvider) fetch(ctx context.Context, scope string) (*tokenResponse, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"scope":         {scope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response without access_token")
	}
	return &tr, nil
}
