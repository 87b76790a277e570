// Package provider is the client for the POS provider's REST API: OAuth
// token handling, request execution with retries and failure classification.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/raqmix/kippis-possync/pkg/httpclient"
	"github.com/raqmix/kippis-possync/pkg/logger"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

const (
	tracerName   = "github.com/raqmix/kippis-possync/services/integration/provider"
	maxBodyBytes = 10 << 20
	// defaultTokenTTL applies when the token response carries no expires_in.
	defaultTokenTTL = time.Hour
)

// CredentialStore keeps the current token per mode.
type CredentialStore interface {
	Valid(ctx context.Context, mode domain.Mode) (*domain.Credential, bool, error)
	Save(ctx context.Context, cred *domain.Credential) error
	Invalidate(ctx context.Context, mode domain.Mode) error
}

// Doer sends one HTTP request. *httpclient.CircuitBreakerClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client executes requests against the provider for the configured mode.
type Client struct {
	cfg     Config
	active  ModeConfig
	http    Doer
	limiter *rate.Limiter
	creds   CredentialStore
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	tokens  singleflight.Group
}

// Option customizes a Client.
type Option func(*Client)

// WithDoer replaces the default circuit-breaking HTTP transport.
func WithDoer(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient validates cfg and builds a client. Unless WithDoer is given,
// requests go through a circuit breaker named after the mode.
func NewClient(cfg Config, creds CredentialStore, log *slog.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("provider config: %w", err)
	}
	if creds == nil {
		return nil, errors.New("provider client needs a credential store")
	}

	c := &Client{
		cfg:     cfg,
		active:  cfg.Active(),
		limiter: cfg.Limiter(),
		creds:   creds,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
		sleep:   httpclient.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		base := httpclient.New(httpclient.Config{Timeout: cfg.Timeout(), MaxConnsPerHost: 10})
		c.http = httpclient.NewCircuitBreakerClient(base,
			httpclient.DefaultCircuitBreakerConfig("provider-"+string(cfg.Mode)), log)
	}
	return c, nil
}

// breakerStater is satisfied by *httpclient.CircuitBreakerClient.
type breakerStater interface {
	State() gobreaker.State
}

// CheckCircuit fails while the transport's circuit breaker is open. A
// transport without a breaker always passes.
func (c *Client) CheckCircuit(context.Context) error {
	b, ok := c.http.(breakerStater)
	if !ok {
		return nil
	}
	if state := b.State(); state == gobreaker.StateOpen {
		return fmt.Errorf("provider circuit breaker is %s", state)
	}
	return nil
}

// Mode returns the mode the client talks to.
func (c *Client) Mode() domain.Mode {
	return c.cfg.Mode
}

// Execute sends method path with q's parameters and returns the normalized
// envelope. Retryable failures are retried up to the configured number of
// attempts; the caller's context ends retrying early. Execute never returns
// nil and never panics on upstream failures.
func (c *Client) Execute(ctx context.Context, method, path string, q Query) *Envelope {
	mode := c.cfg.Mode
	ctx = logger.WithMode(ctx, string(mode))
	log := logger.WithContext(ctx, c.logger)

	ctx, span := c.tracer.Start(ctx, "provider "+method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider.mode", string(mode)),
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	start := c.now()
	attempts := c.cfg.Attempts()

	var env *Envelope
	for attempt := 1; ; attempt++ {
		env = c.attempt(ctx, mode, method, path, q)
		requestsTotal.WithLabelValues(string(mode), method, outcome(env.Error)).Inc()

		if env.Success || !env.Error.Retryable() || attempt >= attempts || ctx.Err() != nil {
			break
		}

		wait := httpclient.AddJitter(c.cfg.RetryDelay())
		if env.Error.RetryAfter > wait {
			wait = env.Error.RetryAfter
		}
		log.WarnContext(ctx, "provider request failed, retrying",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("code", env.Error.Code),
			slog.Int("status", env.Error.StatusCode),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("backoff", wait),
		)
		retriesTotal.WithLabelValues(string(mode), env.Error.Code).Inc()
		if err := c.sleep(ctx, wait); err != nil {
			break
		}
	}

	requestDuration.WithLabelValues(string(mode), method).Observe(c.now().Sub(start).Seconds())
	span.SetAttributes(attribute.Int("http.response.status_code", env.StatusCode))
	if !env.Success {
		span.SetStatus(codes.Error, env.Error.Code)
		log.ErrorContext(ctx, "provider request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("code", env.Error.Code),
			slog.String("upstream_code", env.Error.UpstreamCode),
			slog.Int("status", env.Error.StatusCode),
			slog.String("error", env.Error.Message),
		)
	}
	return env
}

// attempt performs exactly one request, acquiring a token first if needed.
func (c *Client) attempt(ctx context.Context, mode domain.Mode, method, path string, q Query) *Envelope {
	cred, perr := c.credential(ctx, mode)
	if perr != nil {
		return Failure(perr)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), http.NoBody)
	if err != nil {
		return Failure(ClassifyTransport(err))
	}
	req.URL.RawQuery = q.Values().Encode()
	req.Header.Set("Authorization", cred.AuthorizationHeader())
	req.Header.Set("Accept", "application/json")

	status, body, perr := c.send(ctx, req)
	if perr != nil {
		if perr.Kind == KindUnauthorized {
			c.invalidate(ctx, mode)
		}
		return Failure(perr)
	}
	return decodeSuccess(status, body)
}

// send performs req with the per-attempt timeout and reads the body. A
// non-2xx response is returned as a classified failure.
func (c *Client) send(ctx context.Context, req *http.Request) (int, []byte, *Error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			// Wait fails early when the deadline is too close for a token.
			if ctx.Err() != nil {
				return 0, nil, ClassifyTransport(ctx.Err())
			}
			return 0, nil, ClassifyTransport(context.DeadlineExceeded)
		}
	}

	actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	resp, err := c.http.Do(actx, req)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			return se.StatusCode, se.Body, c.classify(se.StatusCode, se.Header, se.Body)
		}
		return 0, nil, ClassifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, ClassifyTransport(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, body, c.classify(resp.StatusCode, resp.Header, body)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) classify(status int, header http.Header, body []byte) *Error {
	perr := Classify(status, body)
	if perr.Kind == KindRateLimited || perr.Kind == KindMaintenance {
		if d, ok := httpclient.RetryAfter(header, c.now()); ok {
			perr.RetryAfter = d
		}
	}
	return perr
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.active.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// credential returns a valid token for mode, acquiring one when the store
// has none. Concurrent acquisitions for the same mode share one request.
func (c *Client) credential(ctx context.Context, mode domain.Mode) (*domain.Credential, *Error) {
	cred, ok, err := c.creds.Valid(ctx, mode)
	if err != nil {
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "credential store read failed, acquiring new token",
			slog.String("error", err.Error()),
		)
	}
	if ok {
		return cred, nil
	}

	// The shared acquisition outlives any single caller: one caller giving up
	// must not fail the others waiting on the same flight.
	flight := c.tokens.DoChan(string(mode), func() (any, error) {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout())
		defer cancel()
		return c.acquire(actx, mode)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ClassifyTransport(ctx.Err())
	case res = <-flight:
	}
	if res.Err != nil {
		var perr *Error
		if errors.As(res.Err, &perr) {
			return nil, perr
		}
		return nil, ClassifyTransport(res.Err)
	}
	return res.Val.(*domain.Credential), nil
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// acquire requests a new token from the token endpoint and stores it. A
// failed store write is logged; the token is still used.
func (c *Client) acquire(ctx context.Context, mode domain.Mode) (*domain.Credential, error) {
	log := logger.WithContext(ctx, c.logger)

	payload, err := json.Marshal(tokenRequest{
		GrantType:    c.cfg.GrantType,
		ClientID:     c.active.ClientID,
		ClientSecret: c.active.ClientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.cfg.TokenPath), bytes.NewReader(payload))
	if err != nil {
		return nil, ClassifyTransport(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	issuedAt := c.now()
	status, body, perr := c.send(ctx, req)
	if perr != nil {
		tokenAcquisitionsTotal.WithLabelValues(string(mode), perr.Code).Inc()
		return nil, perr
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		if err == nil {
			err = errors.New("token response has no access_token")
		}
		perr := malformedResponse(status, err)
		tokenAcquisitionsTotal.WithLabelValues(string(mode), perr.Code).Inc()
		return nil, perr
	}

	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	cred := &domain.Credential{
		ID:          uuid.NewString(),
		Mode:        mode,
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		IssuedAt:    issuedAt,
		ExpiresAt:   issuedAt.Add(ttl),
	}
	if tok.RefreshToken != "" {
		cred.RefreshToken = &tok.RefreshToken
	}

	if err := c.creds.Save(ctx, cred); err != nil {
		log.WarnContext(ctx, "failed to store provider credential", slog.String("error", err.Error()))
	}
	tokenAcquisitionsTotal.WithLabelValues(string(mode), "ok").Inc()
	log.InfoContext(ctx, "provider token acquired", slog.Time("expires_at", cred.ExpiresAt))
	return cred, nil
}

func (c *Client) invalidate(ctx context.Context, mode domain.Mode) {
	if err := c.creds.Invalidate(ctx, mode); err != nil {
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "failed to invalidate provider credential",
			slog.String("error", err.Error()),
		)
	}
}
