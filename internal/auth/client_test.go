package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

var testCreds = Credentials{Email: "dev@example.com", Password: "hunter2"}

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("http://localhost:3000/login")

		if c.loginURL != "http://localhost:3000/login" {
			t.Errorf("loginURL = %q, want %q", c.loginURL, "http://localhost:3000/login")
		}
		if c.timeout != DefaultTimeout {
			t.Errorf("timeout = %v, want %v", c.timeout, DefaultTimeout)
		}
		if c.maxRetries != 0 {
			t.Errorf("maxRetries = %d, want 0", c.maxRetries)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with multiple options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		hc := &http.Client{}
		c := NewClient("http://localhost:3000/login",
			WithTimeout(15*time.Second),
			WithRetries(3, 200*time.Millisecond),
			WithLogger(logger),
			WithHTTPClient(hc),
			WithUserAgent("socket-relay/test"),
		)

		if c.timeout != 15*time.Second {
			t.Errorf("timeout = %v, want %v", c.timeout, 15*time.Second)
		}
		if c.maxRetries != 3 || c.retryBackoff != 200*time.Millisecond {
			t.Errorf("retries = %d/%v, want 3/200ms", c.maxRetries, c.retryBackoff)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
		if c.httpClient != hc {
			t.Error("custom HTTP client not set")
		}
		if c.userAgent != "socket-relay/test" {
			t.Errorf("userAgent = %q, want %q", c.userAgent, "socket-relay/test")
		}
	})
}

func TestLogin_Success(t *testing.T) {
	var gotBody Credentials
	var gotUA, gotCT string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotUA = r.Header.Get("User-Agent")
		gotCT = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status":"Success","token":"tok-123"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, WithUserAgent("socket-relay/test"))
	token, err := c.Login(context.Background(), testCreds)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if token != "tok-123" {
		t.Errorf("token = %q, want %q", token, "tok-123")
	}
	if gotBody != testCreds {
		t.Errorf("server got %+v, want %+v", gotBody, testCreds)
	}
	if gotUA != "socket-relay/test" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "socket-relay/test")
	}
	if gotCT != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotCT)
	}
}

func TestLogin_BareToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"tok-456"}`))
	}))
	defer server.Close()

	token, err := NewClient(server.URL).Login(context.Background(), testCreds)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token != "tok-456" {
		t.Errorf("token = %q, want %q", token, "tok-456")
	}
}

func TestLogin_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"invalid credentials", `{"status":"Invalid"}`, ErrInvalidCredentials},
		{"success without token", `{"status":"Success"}`, ErrMissingToken},
		{"empty object", `{}`, ErrMissingToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL).Login(context.Background(), testCreds)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Login error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogin_UnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"Locked"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Login(context.Background(), testCreds)
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestLogin_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Login(context.Background(), testCreds)
	if err == nil {
		t.Fatal("expected error for non-JSON body")
	}
}

func TestLogin_InvalidCredentialsNotSent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Login(context.Background(), Credentials{Email: "not-an-email"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times, want 0", calls.Load())
	}
}

func TestLogin_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, WithRetries(3, time.Millisecond)).Login(context.Background(), testCreds)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}
	if apiErr.IsRetryable() {
		t.Error("400 should not be retryable")
	}
}

func TestLogin_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"Success","token":"third-time"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRetries(3, time.Millisecond))
	token, err := c.Login(context.Background(), testCreds)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token != "third-time" {
		t.Errorf("token = %q, want %q", token, "third-time")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestLogin_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, WithRetries(2, time.Millisecond)).Login(context.Background(), testCreds)
	if err == nil {
		t.Fatal("expected error after retries")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", calls.Load())
	}
}

func TestLogin_NegativeBackoff(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"Success","token":"after-retry"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRetries(1, -time.Second))
	if c.retryBackoff != 0 {
		t.Errorf("retryBackoff = %v, want 0", c.retryBackoff)
	}

	token, err := c.Login(context.Background(), testCreds)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token != "after-retry" {
		t.Errorf("token = %q, want %q", token, "after-retry")
	}
}

func TestLogin_RetriesTransportErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Drop the connection without a response.
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		w.Write([]byte(`{"status":"Success","token":"reconnected"}`))
	}))
	defer server.Close()

	token, err := NewClient(server.URL, WithRetries(2, time.Millisecond)).Login(context.Background(), testCreds)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token != "reconnected" {
		t.Errorf("token = %q, want %q", token, "reconnected")
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestLogin_TransportErrorWithoutRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url).Login(context.Background(), testCreds)
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Errorf("error = %v, want a transport error", err)
	}
}

func TestWithTimeout_NonPositive(t *testing.T) {
	for _, d := range []time.Duration{0, -5 * time.Second} {
		c := NewClient("http://localhost:3000/login", WithTimeout(d))
		if c.timeout != DefaultTimeout {
			t.Errorf("WithTimeout(%v): timeout = %v, want %v", d, c.timeout, DefaultTimeout)
		}
	}
}

func TestLogin_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, err := NewClient(server.URL, WithTimeout(50*time.Millisecond)).Login(context.Background(), testCreds)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Login took %v, want about 50ms", elapsed)
	}
}

func TestLogin_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(server.URL).Login(ctx, testCreds)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestAPIError_IsRetryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{400, false},
		{401, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}

	for _, tt := range tests {
		err := &APIError{StatusCode: tt.code}
		if got := err.IsRetryable(); got != tt.want {
			t.Errorf("APIError{%d}.IsRetryable() = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{"valid", testCreds, false},
		{"empty password allowed", Credentials{Email: "dev@example.com"}, false},
		{"missing email", Credentials{Password: "x"}, true},
		{"malformed email", Credentials{Email: "dev"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCredentials_LogValueHidesPassword(t *testing.T) {
	v := testCreds.LogValue()
	for _, attr := range v.Group() {
		if attr.Value.String() == testCreds.Password {
			t.Errorf("password leaked in attribute %q", attr.Key)
		}
	}
}
