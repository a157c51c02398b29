// Package gateway calls the remote scoring service with bounded retries.
//
// A Gateway is stateless apart from its configuration and is safe to share
// across concurrent callers.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aretw0/advisor/pkg/clock"
	"github.com/aretw0/advisor/pkg/domain"
)

const maxErrorBody = 512

// Caller is the contract the orchestrator depends on.
type Caller interface {
	Call(ctx context.Context, endpoint string, payload any, opts ...CallOption) (any, error)
}

// Gateway posts JSON payloads to the scoring service.
type Gateway struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	policy  Policy
	clock   clock.Clock
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default client. Its Timeout should be zero or
// larger than the per-attempt timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.client = c
	}
}

// WithTokenSource sets the bearer token provider.
func WithTokenSource(ts TokenSource) Option {
	return func(g *Gateway) {
		g.tokens = ts
	}
}

// WithPolicy overrides the default retry policy.
func WithPolicy(p Policy) Option {
	return func(g *Gateway) {
		g.policy = p
	}
}

// WithClock sets the clock used for backoff waits.
func WithClock(c clock.Clock) Option {
	return func(g *Gateway) {
		g.clock = c
	}
}

// WithLifecycleHooks registers the OnAttempt hook.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(g *Gateway) {
		g.hooks = h
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// New creates a Gateway for the service rooted at baseURL.
func New(baseURL string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		tokens:  StaticToken(""),
		policy:  DefaultPolicy(),
		clock:   clock.Real{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return g
}

// Policy returns the configured default policy.
func (g *Gateway) Policy() Policy {
	return g.policy
}

// CallOption adjusts the policy of a single call.
type CallOption func(*Policy)

// WithMaxRetries caps the number of attempts for one call.
func WithMaxRetries(n int) CallOption {
	return func(p *Policy) {
		p.MaxRetries = n
	}
}

// WithAttemptTimeout bounds every attempt of one call.
func WithAttemptTimeout(d time.Duration) CallOption {
	return func(p *Policy) {
		p.PerAttemptTimeout = d
	}
}

// Call posts payload to endpoint and decodes the JSON answer into a generic
// value. Timeouts, transport failures and non-2xx answers are retried
// uniformly; the last error is returned once attempts run out.
func (g *Gateway) Call(ctx context.Context, endpoint string, payload any, opts ...CallOption) (any, error) {
	p := g.policy
	for _, opt := range opts {
		opt(&p)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", endpoint, err)
	}

	return Retry(ctx, p, g.clock, func(ctx context.Context, attempt int) (any, error) {
		start := time.Now()
		v, err := g.attempt(ctx, p.PerAttemptTimeout, http.MethodPost, endpoint, body)
		g.observe(ctx, endpoint, attempt, time.Since(start), err)
		return v, err
	})
}

// Health probes the service once.
func (g *Gateway) Health(ctx context.Context) error {
	_, err := g.attempt(ctx, g.policy.PerAttemptTimeout, http.MethodGet, EndpointHealth, nil)
	return err
}

// MarketStatus fetches the market board with the default policy.
func (g *Gateway) MarketStatus(ctx context.Context) (*MarketStatus, error) {
	raw, err := Retry(ctx, g.policy, g.clock, func(ctx context.Context, attempt int) ([]byte, error) {
		start := time.Now()
		b, err := g.do(ctx, g.policy.PerAttemptTimeout, http.MethodGet, EndpointMarketStatus, nil)
		g.observe(ctx, EndpointMarketStatus, attempt, time.Since(start), err)
		return b, err
	})
	if err != nil {
		return nil, err
	}
	var ms MarketStatus
	if err := json.Unmarshal(raw, &ms); err != nil {
		return nil, fmt.Errorf("decode market status: %w", err)
	}
	return &ms, nil
}

func (g *Gateway) attempt(ctx context.Context, timeout time.Duration, method, endpoint string, body []byte) (any, error) {
	raw, err := g.do(ctx, timeout, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		// An unparsable 2xx body is a shape problem, not a transport one.
		g.logger.Warn("Undecodable response body", "endpoint", endpoint, "err", err)
		return nil, nil
	}
	return v, nil
}

func (g *Gateway) do(ctx context.Context, timeout time.Duration, method, endpoint string, body []byte) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.url(endpoint), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &domain.TransientError{Endpoint: endpoint, Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransientError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.TransientError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       Truncate(strings.TrimSpace(string(data)), maxErrorBody),
		}
	}
	return data, nil
}

func (g *Gateway) url(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return g.baseURL + endpoint
}

func (g *Gateway) observe(ctx context.Context, endpoint string, attempt int, d time.Duration, err error) {
	if err != nil {
		g.logger.Debug("Attempt failed", "endpoint", endpoint, "attempt", attempt+1, "duration", d, "err", err)
	}
	if g.hooks.OnAttempt != nil {
		g.hooks.OnAttempt(ctx, &domain.AttemptEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventAttempt},
			Endpoint:  endpoint,
			Attempt:   attempt + 1,
			Duration:  d,
			Err:       err,
		})
	}
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}

// Truncate cuts s to at most n bytes on a rune boundary and marks the cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
