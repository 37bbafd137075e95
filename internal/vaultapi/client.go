package vaultapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxRetries       = 3
	baseBackoff      = time.Second
	maxBackoff       = 30 * time.Second
	jitterFraction   = 0.25
	DefaultUserAgent = "arkvault/0.1"
	requestIDHeader  = "X-Request-ID"
	maxErrorBodySize = 64 << 10
)

// TokenSource provides bearer tokens for authenticated endpoints.
type TokenSource interface {
	Token() (string, error)
}

// Client talks to one vault server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string

	// sleepFunc is called to wait between retries. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a vault API client. baseURL is the server origin, e.g.
// "https://vault.example.com". token may be nil if only unauthenticated
// endpoints are used. An empty userAgent selects DefaultUserAgent.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		userAgent:  userAgent,
		sleepFunc:  timeSleep,
	}
}

// SetTokenSource sets the bearer source after construction, for callers that
// build the token manager on top of this client.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.token = ts
}

// BaseURL returns the server origin.
func (c *Client) BaseURL() string { return c.baseURL }

// request describes one API call.
type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	bearer      bool // attach Authorization from the TokenSource
	retry       bool // idempotent; retry network errors and retryable statuses
}

func jsonRequest(method, path string, v any) (request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return request{}, fmt.Errorf("vaultapi: encoding %s body: %w", path, err)
	}

	return request{method: method, path: path, body: body, contentType: "application/json"}, nil
}

// do executes r. On 2xx the caller owns the response body. Non-2xx responses
// become *APIError; transport failures wrap ErrTransport. Requests marked
// retry are reissued up to maxRetries times with a fresh request id each.
func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		reqID := uuid.NewString()

		resp, err := c.doOnce(ctx, r, reqID)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			c.logger.Debug("vault request ok",
				slog.String("method", r.method),
				slog.String("path", r.path),
				slog.Int("status", resp.StatusCode),
				slog.String("request_id", reqID),
			)

			return resp, nil
		}

		var (
			failure error
			delay   time.Duration
		)

		again := r.retry && attempt < maxRetries

		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("vaultapi: request canceled: %w", ctx.Err())
			}

			var tokErr tokenError
			if errors.As(err, &tokErr) {
				return nil, tokErr.err
			}

			failure = fmt.Errorf("vaultapi: %s %s: %w: %w", r.method, r.path, ErrTransport, err)
			delay = backoff(attempt)
		} else {
			failure = readAPIError(resp, reqID)
			again = again && isRetryable(resp.StatusCode)
			delay = retryDelay(resp.Header, attempt)
		}

		if !again {
			c.logger.Debug("vault request failed",
				slog.String("method", r.method),
				slog.String("path", r.path),
				slog.Int("attempts", attempt+1),
				slog.String("error", failure.Error()),
			)

			return nil, failure
		}

		c.logger.Warn("retrying vault request",
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", failure.Error()),
		)

		if err := c.sleepFunc(ctx, delay); err != nil {
			return nil, fmt.Errorf("vaultapi: request canceled: %w", err)
		}
	}
}

// readAPIError consumes and closes a non-2xx body. The server's request id
// wins over ours when it echoes one.
func readAPIError(resp *http.Response, reqID string) *APIError {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	resp.Body.Close()

	msg := errorMessage(body)
	if err != nil {
		msg = "unreadable response body"
	}

	if id := resp.Header.Get(requestIDHeader); id != "" {
		reqID = id
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  reqID,
		Message:    msg,
		Err:        classifyStatus(resp.StatusCode),
	}
}

// tokenError marks a TokenSource failure so do() returns it unchanged.
type tokenError struct{ err error }

func (e tokenError) Error() string { return e.err.Error() }

func (c *Client) doOnce(ctx context.Context, r request, reqID string) (*http.Response, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if r.bearer {
		if c.token == nil {
			return nil, tokenError{fmt.Errorf("vaultapi: %s requires a bearer token but no token source is set", r.path)}
		}

		tok, err := c.token.Token()
		if err != nil {
			return nil, tokenError{fmt.Errorf("vaultapi: obtaining token: %w", err)}
		}

		req.Header.Set("Authorization", "Bearer "+tok)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(requestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")

	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	return c.httpClient.Do(req)
}

// decodeJSON decodes a 2xx response body into v and closes it.
func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResult, err)
	}

	return nil
}

// drain discards and closes a response body whose content is not needed.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// retryDelay prefers the server's Retry-After, in seconds or as an HTTP
// date, and falls back to backoff.
func retryDelay(h http.Header, attempt int) time.Duration {
	ra := h.Get("Retry-After")
	if ra == "" {
		return backoff(attempt)
	}

	if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(ra); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}

	return backoff(attempt)
}

// backoff doubles from baseBackoff per attempt up to maxBackoff, then
// spreads the result by jitterFraction either way.
func backoff(attempt int) time.Duration {
	d := maxBackoff
	if attempt < 16 {
		d = min(baseBackoff<<attempt, maxBackoff)
	}

	spread := time.Duration(float64(d) * jitterFraction)

	return d - spread + rand.N(2*spread+1) //nolint:gosec // jitter only
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
