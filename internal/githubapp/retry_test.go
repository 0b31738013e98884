package githubapp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// fastPolicy keeps tests quick while exercising the retry loop.
func fastPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.InitialDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond
	p.Jitter = 0
	return p
}

func TestRetryPolicySucceedsAfterTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := fastPolicy().Do(srv.Client(), req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestRetryPolicyNonRetryableReturnsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := fastPolicy().Do(srv.Client(), req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (404 must not be retried)", got)
	}
}

func TestRetryPolicyExhaustsBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := fastPolicy().Do(srv.Client(), req)
	if err == nil {
		t.Fatal("Do() expected error after exhausting retries")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %T, want *StatusError", err)
	}
	if se.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", se.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 5 {
		t.Errorf("calls = %d, want 5", got)
	}
}

type closeTrackingBody struct {
	io.Reader
	closed *int32
}

func (b *closeTrackingBody) Close() error {
	atomic.AddInt32(b.closed, 1)
	return nil
}

type stubTransport struct {
	roundTrip func(*http.Request) (*http.Response, error)
}

func (t *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.roundTrip(req)
}

func TestRetryPolicyClosesEveryBodyOnExhaustion(t *testing.T) {
	var opened, closed int32
	hc := &http.Client{Transport: &stubTransport{roundTrip: func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&opened, 1)
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Header:     http.Header{},
			Body:       &closeTrackingBody{Reader: strings.NewReader("busy"), closed: &closed},
			Request:    req,
		}, nil
	}}}

	req, _ := http.NewRequest(http.MethodGet, "http://api.invalid/", nil)
	if _, err := fastPolicy().Do(hc, req); err == nil {
		t.Fatal("Do() expected error after exhausting retries")
	}
	if got, want := atomic.LoadInt32(&opened), int32(5); got != want {
		t.Fatalf("attempts = %d, want %d", got, want)
	}
	if o, c := atomic.LoadInt32(&opened), atomic.LoadInt32(&closed); o != c {
		t.Errorf("response bodies: opened %d, closed %d", o, c)
	}
}

func TestRetryPolicyHonorsRetryAfter(t *testing.T) {
	var calls int32
	var gap time.Duration
	var last time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		now := time.Now()
		if n == 2 {
			gap = now.Sub(last)
		}
		last = now
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := fastPolicy()
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := p.Do(srv.Client(), req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()
	// Retry-After: 1 overrides the millisecond backoff schedule.
	if gap < 900*time.Millisecond {
		t.Errorf("gap between attempts = %v, want >= ~1s from Retry-After", gap)
	}
}

func TestRetryPolicyContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := fastPolicy()
	p.InitialDelay = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)

	start := time.Now()
	_, err := p.Do(srv.Client(), req)
	if err == nil {
		t.Fatal("Do() expected error on cancelled context")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Do() did not abort the backoff wait on context cancellation")
	}
}
