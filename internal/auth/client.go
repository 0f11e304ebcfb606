package auth

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds a whole login call, retries included.
const DefaultTimeout = 10 * time.Second

// Client talks to the login endpoint.
type Client struct {
	loginURL   string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger

	timeout      time.Duration
	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a login client for the given endpoint URL.
func NewClient(loginURL string, opts ...ClientOption) *Client {
	c := &Client{
		loginURL:     loginURL,
		httpClient:   &http.Client{},
		logger:       slog.Default(),
		timeout:      DefaultTimeout,
		maxRetries:   0,
		retryBackoff: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout bounds each Login call. A non-positive d keeps DefaultTimeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d <= 0 {
			d = DefaultTimeout
		}
		c.timeout = d
	}
}

// WithRetries sets the retry configuration for retryable failures. Negative
// values are treated as zero.
func WithRetries(maxRetries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max(maxRetries, 0)
		c.retryBackoff = max(backoff, 0)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}
