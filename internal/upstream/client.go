// Package upstream is the HTTP transport shared by the income clients. One
// PostJSON call is one logical request: it waits for the rate limiter, then
// retries transient failures with backoff until attempts run out, and records
// a single latency observation for the whole call.
//
// Callers see either a decoded response or an *errors.UpstreamError that
// matches errors.ErrUpstreamUnavailable. Network errors, non-2xx statuses,
// token failures and undecodable bodies all take that shape.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/navikt/aap-inntekt/pkg/config"
	apperrors "github.com/navikt/aap-inntekt/pkg/errors"
	"github.com/navikt/aap-inntekt/pkg/logger"
	"github.com/navikt/aap-inntekt/pkg/metrics"
	"github.com/navikt/aap-inntekt/pkg/resilience"
	"golang.org/x/time/rate"
)

// CallIDHeader carries the correlation id to the upstream.
const CallIDHeader = "Nav-Call-Id"

const maxBodyBytes = 10 << 20

// TokenSource returns a bearer token for a scope.
type TokenSource interface {
	Token(ctx context.Context, scope string) (string, error)
}

// Options configures one upstream.
type Options struct {
	Name         string
	BaseURL      string
	Scope        string
	RateLimitRPS float64
	HTTP         config.HTTPClientConfig
}

// Client posts JSON to one upstream service.
type Client struct {
	name    string
	baseURL string
	scope   string
	http    *http.Client
	tokens  TokenSource
	retry   resilience.RetryConfig
	limiter *rate.Limiter
	metrics *metrics.Metrics
	secure  *slog.Logger
	logger  *slog.Logger
}

// New builds a Client with connect, socket and request timeouts applied at
// the transport. secure receives raw response bodies.
func New(opts Options, tokens TokenSource, m *metrics.Metrics, secure *slog.Logger) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.HTTP.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   opts.HTTP.ConnectTimeout,
		ResponseHeaderTimeout: opts.HTTP.SocketTimeout,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}
	if secure == nil {
		secure = slog.New(slog.DiscardHandler)
	}
	return &Client{
		name:    opts.Name,
		baseURL: opts.BaseURL,
		scope:   opts.Scope,
		http: &http.Client{
			Transport: transport,
			Timeout:   opts.HTTP.RequestTimeout,
		},
		tokens: tokens,
		retry: resilience.RetryConfig{
			MaxAttempts:  opts.HTTP.Retry.MaxAttempts,
			InitialDelay: opts.HTTP.Retry.InitialDelay,
			MaxDelay:     opts.HTTP.Retry.MaxDelay,
		},
		limiter: limiter,
		metrics: m,
		secure:  secure.With("upstream", opts.Name),
		logger:  slog.Default().With("component", "upstream-client", "upstream", opts.Name),
	}
}

// PostJSON sends body to path and decodes the response into out. It blocks
// for the whole call, retries included.
func (c *Client) PostJSON(ctx context.Context, path, callID string, body, out any) error {
	start := time.Now()
	defer func() {
		c.metrics.UpstreamLatency.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.Upstream(c.name, 0, fmt.Errorf("encoding request: %w", err))
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return apperrors.Upstream(c.name, 0, fmt.Errorf("waiting for rate limiter: %w", err))
		}
	}

	var status int
	err = resilience.Retry(ctx, c.name, c.retry, func() error {
		var attemptErr error
		status, attemptErr = c.attempt(ctx, path, callID, payload, out)
		return attemptErr
	})
	if err != nil {
		return apperrors.Upstream(c.name, status, err)
	}
	logger.Scoped(ctx, c.logger).Debug("upstream call succeeded",
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (c *Client) attempt(ctx context.Context, path, callID string, payload []byte, out any) (int, error) {
	token, err := c.tokens.Token(ctx, c.scope)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, resilience.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(CallIDHeader, callID)

	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
		}
		return 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response body: %w", err)
	}
	c.secure.Debug("response from upstream",
		"call_id", callID,
		"status", resp.StatusCode,
		"body", string(raw),
	)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	default:
		return resp.StatusCode, resilience.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, resilience.Permanent(fmt.Errorf("%w: %w", apperrors.ErrMalformedResponse, err))
	}
	return resp.StatusCode, nil
}

// Close releases idle connections. In-flight calls finish on their own
// timeouts.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
