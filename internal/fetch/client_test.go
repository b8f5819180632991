package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

// recordingSleeper captures backoff durations instead of sleeping.
type recordingSleeper struct {
	slept []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func newTestClient(s *recordingSleeper) *Client {
	c := New()
	c.Sleep = s.sleep
	return c
}

func TestRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	c := newTestClient(sleeper)

	body, err := c.Get(context.Background(), srv.URL, nil, nil)
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(sleeper.slept) != len(want) {
		t.Fatalf("slept %v, want %v", sleeper.slept, want)
	}
	for i := range want {
		if sleeper.slept[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, sleeper.slept[i], want[i])
		}
	}
}

func TestExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(&recordingSleeper{})
	c.MaxRetries = 3

	_, err := c.Get(context.Background(), srv.URL, nil, nil)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FetchError, got %v", err)
	}
	if fe.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", fe.Attempts)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3", got)
	}
}

func TestClientErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	c := newTestClient(sleeper)

	_, err := c.Get(context.Background(), srv.URL, nil, nil)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FetchError, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("403 must not be retried: %d calls", got)
	}
	if len(sleeper.slept) != 0 {
		t.Errorf("slept %v before failing fast", sleeper.slept)
	}
}

func TestTransportErrorIsRetried(t *testing.T) {
	// Point at a closed server so every attempt fails at the transport level.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead := srv.URL
	srv.Close()

	sleeper := &recordingSleeper{}
	c := newTestClient(sleeper)
	c.MaxRetries = 2

	_, err := c.Get(context.Background(), dead, nil, nil)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FetchError, got %v", err)
	}
	if len(sleeper.slept) != 1 {
		t.Errorf("want one backoff sleep between two attempts, got %v", sleeper.slept)
	}
}

func TestGetSendsHeadersAndParams(t *testing.T) {
	var gotKey, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Key")
		gotQuery = r.URL.RawQuery
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := newTestClient(&recordingSleeper{})
	params := url.Values{}
	params.Set("confidenceMinimum", "80")
	if _, err := c.Get(context.Background(), srv.URL, map[string]string{"Key": "secret"}, params); err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotKey != "secret" {
		t.Errorf("Key header = %q", gotKey)
	}
	if gotQuery != "confidenceMinimum=80" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestCanceledContextStopsBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New()
	c.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.Get(ctx, srv.URL, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled in chain, got %v", err)
	}
}
