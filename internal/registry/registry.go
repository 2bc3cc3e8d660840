// Package registry fetches published version lists from crates.io.
//
// Only the versions array of the crate response is used. Requests are rate
// limited to one per second, which is the crawler policy crates.io asks
// clients to respect.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jmgilman/go/errors"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the crates.io API root.
	DefaultBaseURL = "https://crates.io"

	// DefaultUserAgent identifies this tool to crates.io.
	DefaultUserAgent = "cargo-unmaintained (github.com/trailofbits/cargo-unmaintained)"

	// DefaultRateLimit is the minimum interval between requests.
	DefaultRateLimit = time.Second
)

// Version is a single published version of a crate.
type Version struct {
	Num       string    `json:"num"`
	CreatedAt time.Time `json:"created_at"`
	Yanked    bool      `json:"yanked"`
}

// Source returns the known published versions of a package.
type Source interface {
	Versions(ctx context.Context, name string) ([]Version, error)
}

// Client is a crates.io API client.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root, primarily for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRateLimit sets the minimum interval between requests. Zero disables
// rate limiting.
func WithRateLimit(interval time.Duration) Option {
	return func(c *Client) {
		if interval <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// NewClient creates a crates.io client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(DefaultRateLimit), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type crateResponse struct {
	Versions []Version `json:"versions"`
}

// Versions fetches every published version of the named crate, newest first
// as crates.io returns them.
func (c *Client) Versions(ctx context.Context, name string) ([]Version, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CodeTimeout, "rate limiter wait cancelled")
	}

	endpoint := fmt.Sprintf("%s/api/v1/crates/%s", c.baseURL, url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := errors.Wrapf(err, errors.CodeNetwork, "failed to fetch versions of %s", name)
		return nil, errors.WithContext(wrapped, "crate", name)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		cause := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
		wrapped := wrapStatus(cause, resp.StatusCode, fmt.Sprintf("failed to fetch versions of %s", name))
		return nil, errors.WithContext(wrapped, "crate", name)
	}

	var payload crateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidInput, "failed to decode versions of %s", name)
	}

	return payload.Versions, nil
}

// wrapStatus maps an HTTP status code to an error code.
func wrapStatus(err error, statusCode int, message string) error {
	var code errors.ErrorCode
	switch {
	case statusCode == http.StatusNotFound:
		code = errors.CodeNotFound
	case statusCode == http.StatusForbidden:
		code = errors.CodeForbidden
	case statusCode == http.StatusTooManyRequests:
		code = errors.CodeRateLimit
	case statusCode >= 500:
		code = errors.CodeNetwork
	default:
		code = errors.CodeInternal
	}
	return errors.Wrap(err, code, message)
}
