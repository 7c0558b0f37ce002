package api

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
)

// ErrNetwork wraps transport-level failures (DNS, refused connection,
// closed socket). Callers that only care about "could not reach the
// backend" match on it with errors.Is.
var ErrNetwork = errors.New("network error")

// HTTPError is a non-2xx response. Body carries the response text when it
// could be read; an unreadable body does not mask the status.
type HTTPError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("API error %d %s: %s", e.Status, e.StatusText, e.Body)
	}
	return fmt.Sprintf("API error %d %s", e.Status, e.StatusText)
}

// DecodeError is a 2xx response whose body is not valid JSON for the
// requested type.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TokenSource yields the current bearer token, or "" when the session is
// anonymous. The auth manager implements it.
type TokenSource interface {
	Token() string
}

// Doer is the request surface the domain services depend on. It lets
// tests count calls without a live server.
type Doer interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string) error
	PostForm(ctx context.Context, path string, form url.Values, out any) error
}

// Client talks JSON to the farm backend. Requests carry a bearer header
// when the token source has one. No retries and no client-side timeout;
// cancellation comes from the caller's context.
type Client struct {
	baseURL string
	proxy   string
	tokens  TokenSource
	http    *http.Client
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProxyPrefix makes the client address a same-origin proxy path
// (e.g. "/api/proxy") instead of the backend base URL.
func WithProxyPrefix(prefix string) ClientOption {
	return func(c *Client) { c.proxy = prefix }
}

// WithTokenSource attaches the bearer token provider.
func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *Client) { c.tokens = ts }
}

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient creates a client for the given backend base URL.
func NewClient(baseURL string, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		logger:  logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) resolve(path string) string {
	if c.proxy != "" {
		return strings.TrimRight(c.proxy, "/") + path
	}
	return c.baseURL + path
}

// Get issues a GET and decodes the JSON response into out (may be nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

// Post issues a POST with a JSON body (nil for empty) and decodes into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	r, ct, err := jsonBody(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, r, ct, out)
}

// Put issues a PUT with a JSON body and decodes into out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	r, ct, err := jsonBody(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, path, r, ct, out)
}

// Delete issues a DELETE and discards any response body.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, "", nil)
}

// PostForm issues a POST with form-encoded values. The token endpoint
// requires this encoding.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, out any) error {
	body := strings.NewReader(form.Encode())
	return c.do(ctx, http.MethodPost, path, body, "application/x-www-form-urlencoded", out)
}

func jsonBody(body any) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("encode request: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	// Read fully before looking at the status so error bodies survive.
	data, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		he := &HTTPError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode)}
		if readErr == nil {
			he.Body = strings.TrimSpace(string(data))
		}
		c.logger.Debug("api error", "method", method, "path", path, "status", resp.StatusCode)
		return he
	}
	if readErr != nil {
		return fmt.Errorf("%w: read response: %v", ErrNetwork, readErr)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}
