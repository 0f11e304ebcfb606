package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("login rejected: invalid credentials")
	ErrMissingToken       = errors.New("login response has no token")

	errTransport = errors.New("transport error")
)

// Login result statuses.
const (
	StatusSuccess = "Success"
	StatusInvalid = "Invalid"
)

// APIError is an HTTP-level failure from the login endpoint.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("login api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// LoginResponse is the login endpoint's JSON body.
type LoginResponse struct {
	Status string `json:"status,omitempty"`
	Token  string `json:"token,omitempty"`
}

// Login exchanges credentials for a socket token. The whole call, retries
// included, is bounded by the client timeout.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}

	respBody, err := c.doWithRetry(ctx, body)
	if err != nil {
		return "", err
	}

	var resp LoginResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	switch resp.Status {
	case StatusInvalid:
		c.logger.Warn("login rejected", "credentials", creds)
		return "", ErrInvalidCredentials
	case StatusSuccess, "":
	default:
		return "", fmt.Errorf("unexpected login status %q", resp.Status)
	}

	if resp.Token == "" {
		return "", ErrMissingToken
	}

	c.logger.Debug("login succeeded", "credentials", creds)
	return resp.Token, nil
}

// doRequest performs a single POST to the login endpoint.
func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w: %w", errTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", errTransport, err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       respBody,
		}
	}

	return respBody, nil
}

// doWithRetry performs the request with exponential backoff retry. Transport
// failures, 5xx and 429 are retried.
func (c *Client) doWithRetry(ctx context.Context, body []byte) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
			c.logger.Debug("retrying login",
				"attempt", attempt,
				"backoff", jitter,
			)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("login: %w (last error: %v)", ctx.Err(), lastErr)
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		respBody, err := c.doRequest(ctx, body)
		if err == nil {
			return respBody, nil
		}

		lastErr = err

		if !retryable(ctx, err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return errors.Is(err, errTransport)
}
