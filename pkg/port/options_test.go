package port

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestWithRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	// 20 rps, burst 1: the second call must wait roughly 50ms.
	p, err := New(testConfig(server.URL), testCredential, WithRateLimit(rate.Limit(20), 1))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	start := time.Now()
	for i := 0; i < 2; i++ {
		if res := p.Do(context.Background(), MethodGet, "/items", nil); !res.Ok() {
			t.Fatalf("Do() error = %v", res.Err)
		}
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("elapsed = %v, want limiter-imposed wait", elapsed)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestWithMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	p, err := New(testConfig(server.URL), testCredential, WithMetrics())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Recording must not interfere with the call outcome.
	if res := p.Do(context.Background(), MethodGet, "/items", nil); !res.Ok() {
		t.Fatalf("Do() error = %v", res.Err)
	}
}

func TestWithHTTPClient(t *testing.T) {
	roundTripped := false
	client := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			roundTripped = true
			return &http.Response{
				StatusCode: 200,
				Body:       http.NoBody,
				Header:     http.Header{},
			}, nil
		}),
	}

	p, err := New(testConfig("https://api.example.com"), testCredential, WithHTTPClient(client))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if res := p.Do(context.Background(), MethodGet, "/items", nil); !res.Ok() {
		t.Fatalf("Do() error = %v", res.Err)
	}
	if !roundTripped {
		t.Error("custom HTTP client was not used")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
