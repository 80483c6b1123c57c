package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pricedash/pricedash/internal/config"
)

// maxBackoff caps the sleep between retry attempts
const maxBackoff = time.Minute

// Client represents an HTTP client for the pricing backend API
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenState
	logger     zerolog.Logger

	timeout time.Duration
	retries int
	backoff time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a new API client bound to the given session context. A nil
// TokenState gets a fresh one seeded from cfg.Token.
func New(cfg config.APIConfig, tokens *TokenState, logger zerolog.Logger) *Client {
	if tokens == nil {
		tokens = NewTokenState(cfg.Token)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{},
		tokens:     tokens,
		logger:     logger.With().Str("component", "apiclient").Logger(),
		timeout:    cfg.Timeout,
		retries:    cfg.Retries,
		backoff:    cfg.Backoff,
		sleep:      sleepContext,
	}
}

// SetHTTPClient sets a custom HTTP client
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// ForSession returns a copy of the client sharing transport and defaults but
// bound to another session context.
func (c *Client) ForSession(tokens *TokenState) *Client {
	cp := *c
	cp.tokens = tokens
	return &cp
}

// BaseURL returns the backend base URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Tokens returns the session context this client reads its bearer token from
func (c *Client) Tokens() *TokenState {
	return c.tokens
}

// SetToken sets the in-memory bearer token. "" clears it.
func (c *Client) SetToken(token string) {
	c.tokens.SetToken(token)
}

// Token returns the in-memory bearer token
func (c *Client) Token() string {
	return c.tokens.Token()
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body as a string
func (r *Response) Text() string {
	return string(r.Body)
}

// JSON decodes the body into v
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Err returns a StatusError for non-2xx responses
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{StatusCode: r.StatusCode, Body: strings.TrimSpace(r.Text())}
}

type requestOptions struct {
	params    url.Values
	body      any
	timeout   time.Duration
	retries   int
	backoff   time.Duration
	anonymous bool
}

// RequestOption tunes a single request
type RequestOption func(*requestOptions)

// WithParams sets the query string
func WithParams(params url.Values) RequestOption {
	return func(o *requestOptions) { o.params = params }
}

// WithJSON sets a JSON request body
func WithJSON(body any) RequestOption {
	return func(o *requestOptions) { o.body = body }
}

// WithTimeout overrides the per-attempt timeout
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}

// WithRetries overrides how many extra attempts follow a transport failure
func WithRetries(n int) RequestOption {
	return func(o *requestOptions) { o.retries = max(n, 0) }
}

// WithBackoff overrides the base delay between attempts
func WithBackoff(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.backoff = d }
}

// Anonymous sends no bearer token and treats 401/403 as ordinary responses.
func Anonymous() RequestOption {
	return func(o *requestOptions) { o.anonymous = true }
}

// Request performs an HTTP request against the backend.
//
// Transport failures are retried up to the configured count, sleeping
// backoff*2^attempt (capped at maxBackoff) between attempts. Any received response is returned as
// is, except 401/403 on an authenticated request: the token is dropped, the
// reauth flag raised, and an *AuthError returned.
func (c *Client) Request(ctx context.Context, method, path string, opts ...RequestOption) (*Response, error) {
	o := requestOptions{
		timeout: c.timeout,
		retries: c.retries,
		backoff: c.backoff,
	}
	for _, opt := range opts {
		opt(&o)
	}

	target := c.url(path, o.params)
	method = strings.ToUpper(method)

	var payload []byte
	if o.body != nil {
		var err error
		payload, err = json.Marshal(o.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= o.retries; attempt++ {
		attempts++
		resp, err := c.do(ctx, method, target, payload, o)
		if err == nil {
			if !o.anonymous && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				c.tokens.Reject()
				c.logger.Warn().
					Str("method", method).
					Str("path", path).
					Int("status", resp.StatusCode).
					Msg("Backend rejected token, reauthentication required")
				return nil, &AuthError{StatusCode: resp.StatusCode}
			}
			return resp, nil
		}

		// The caller gave up; retrying would only delay the inevitable
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if attempt < o.retries {
			delay := backoffDelay(o.backoff, attempt)
			c.logger.Debug().
				Err(err).
				Str("method", method).
				Str("path", path).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("Transport failure, retrying")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, &TransportError{Method: method, URL: target, Attempts: attempts, Err: lastErr}
}

// do performs a single attempt bounded by the per-attempt timeout.
func (c *Client) do(ctx context.Context, method, target string, payload []byte, o requestOptions) (*Response, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !o.anonymous {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) url(path string, params url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, opts...)
}

// Post performs a POST request
func (c *Client) Post(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, opts...)
}

// GetJSON performs a GET and decodes a 2xx body into v.
func (c *Client) GetJSON(ctx context.Context, path string, v any, opts ...RequestOption) error {
	resp, err := c.Get(ctx, path, opts...)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	return resp.JSON(v)
}

// backoffDelay doubles base per attempt without overflowing, capped at maxBackoff
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		if delay >= maxBackoff/2 {
			return maxBackoff
		}
		delay *= 2
	}
	return min(delay, maxBackoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsAuthRequired reports whether err means the session must log in again.
func IsAuthRequired(err error) bool {
	return errors.Is(err, ErrAuthRequired)
}
