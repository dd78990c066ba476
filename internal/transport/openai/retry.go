package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// errCountMismatch marks a 200 response that carried fewer or more vectors than inputs.
var errCountMismatch = errors.New("embedding count mismatch")

// Backoff is a capped exponential retry policy.
type Backoff struct {
	MaxRetries   int
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
}

// Retry defaults.
const (
	DefaultMaxRetries    = 3
	DefaultInitialDelay  = 500 * time.Millisecond
	DefaultBackoffFactor = 2.0
	DefaultMaxDelay      = 8 * time.Second
)

// withDefaults fills zero fields. A negative MaxRetries disables retries.
func (b Backoff) withDefaults() Backoff {
	switch {
	case b.MaxRetries == 0:
		b.MaxRetries = DefaultMaxRetries
	case b.MaxRetries < 0:
		b.MaxRetries = 0
	}
	if b.InitialDelay <= 0 {
		b.InitialDelay = DefaultInitialDelay
	}
	if b.Factor < 1 {
		b.Factor = DefaultBackoffFactor
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = DefaultMaxDelay
	}
	return b
}

// delay returns the wait before retry number attempt (0-based).
func (b Backoff) delay(attempt int) time.Duration {
	d := float64(b.InitialDelay)
	for range attempt {
		d *= b.Factor
		if d >= float64(b.MaxDelay) {
			return b.MaxDelay
		}
	}
	return min(time.Duration(d), b.MaxDelay)
}

// withRetry runs fn until it succeeds, returns a permanent error, or retries run out.
// onRetry is called before each wait.
func withRetry(ctx context.Context, b Backoff, fn func() error, onRetry func(attempt int, wait time.Duration, err error)) error {
	var lastErr error
	for attempt := 0; attempt <= b.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck // caller wraps
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(ctx, lastErr) || attempt == b.MaxRetries {
			break
		}

		wait := b.delay(attempt)
		if onRetry != nil {
			onRetry(attempt+1, wait, lastErr)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err() //nolint:wrapcheck // caller wraps
		case <-t.C:
		}
	}
	return lastErr
}

// isRetryable reports whether err is transient: connection errors, timeouts, 429, 5xx
// and vector count mismatches. Nothing is retried once the caller's context is done.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, errCountMismatch) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func retryableStatus(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// parseAPIError extracts a human-readable error from the API response and wraps it with sentinel.
// The message never includes the request payload.
func parseAPIError(kind string, err error, sentinel error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("%s API error %d: %s: %w", kind, reqErr.HTTPStatusCode, detail, sentinel)
		}
		return fmt.Errorf("%s API error %d: %w", kind, reqErr.HTTPStatusCode, sentinel)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w", kind, apiErr.HTTPStatusCode, apiErr.Message, sentinel)
	}

	if errors.Is(err, errCountMismatch) {
		return fmt.Errorf("%s: %w: %w", kind, err, sentinel)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s request aborted: %w: %w", kind, sentinel, err)
	}
	return fmt.Errorf("%s request failed: %w: %w", kind, sentinel, err)
}

// extractDetail extracts the "detail" field from a JSON error body (FastAPI-style gateways).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

// clientConfig builds the go-openai client configuration shared by embeddings and chat.
func clientConfig(apiKey, baseURL string, timeout time.Duration) openai.ClientConfig {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return cfg
}
