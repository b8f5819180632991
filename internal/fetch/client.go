// Package fetch provides the shared retrying HTTP client used by every
// feed collector. One logical fetch is at most MaxRetries attempts; only
// rate-limit responses and transport errors are retried.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/inteltool/inteltool/internal/metrics"
)

const (
	DefaultMaxRetries     = 5
	DefaultInitialBackoff = time.Second
	defaultTimeout        = 30 * time.Second
)

// FetchError is returned when a fetch fails, either fast on a
// non-retryable status or after exhausting retries. It wraps the last
// underlying cause.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// transientError marks a failure worth retrying (HTTP 429 or transport).
type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// Client performs HTTP calls with bounded exponential-backoff retry.
type Client struct {
	HTTPClient     *http.Client
	MaxRetries     int
	InitialBackoff time.Duration

	// Sleep is swapped out in tests. Defaults to a ctx-aware timer sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Client with the default timeout, retry count, and backoff.
func New() *Client {
	return &Client{
		HTTPClient:     &http.Client{Timeout: defaultTimeout},
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
	}
}

// Get performs a GET with the given headers and query parameters.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string, params url.Values) ([]byte, error) {
	return c.do(ctx, func() (*http.Request, error) {
		u := rawURL
		if len(params) > 0 {
			u = rawURL + "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	}, rawURL)
}

// PostJSON performs a POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, rawURL)
}

func (c *Client) do(ctx context.Context, build func() (*http.Request, error), rawURL string) ([]byte, error) {
	retries := c.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}
	backoff := c.InitialBackoff
	if backoff <= 0 {
		backoff = DefaultInitialBackoff
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		body, err := c.attempt(build)
		if err == nil {
			return body, nil
		}
		if _, ok := err.(transientError); !ok {
			// Non-retryable status: fail fast.
			return nil, &FetchError{URL: rawURL, Attempts: attempt, Err: err}
		}
		lastErr = err
		if attempt == retries {
			break
		}
		if serr := sleep(ctx, backoff); serr != nil {
			return nil, &FetchError{URL: rawURL, Attempts: attempt, Err: serr}
		}
		metrics.FetchRetries.Inc()
		backoff *= 2
	}
	return nil, &FetchError{URL: rawURL, Attempts: retries, Err: lastErr}
}

func (c *Client) attempt(build func() (*http.Request, error)) ([]byte, error) {
	req, err := build()
	if err != nil {
		return nil, err
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, transientError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientError{err: err}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, transientError{err: fmt.Errorf("rate limited (HTTP 429): %s", truncate(body))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body))
	}
	return body, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "…"
	}
	return string(b)
}
