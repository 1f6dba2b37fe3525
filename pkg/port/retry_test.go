package port

import (
	"context"
	"testing"
	"time"
)

// fastPolicy keeps retry tests quick while preserving the default
// eligibility sets.
func fastPolicy() *RetryPolicy {
	p := DefaultRetryPolicy()
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = 2 * time.Millisecond
	return p
}

func TestRunWithRetry_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	res, retries, err := runWithRetry(context.Background(), fastPolicy(), MethodGet, nil, func(ctx context.Context) (*attemptResult, *Error) {
		calls++
		return &attemptResult{status: 200}, nil
	})
	if err != nil {
		t.Fatalf("runWithRetry() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
	if retries != 0 {
		t.Errorf("retries = %d, want 0", retries)
	}
	if res.status != 200 {
		t.Errorf("status = %d, want 200", res.status)
	}
}

func TestRunWithRetry_EventualSuccess(t *testing.T) {
	calls := 0
	res, retries, err := runWithRetry(context.Background(), fastPolicy(), MethodGet, nil, func(ctx context.Context) (*attemptResult, *Error) {
		calls++
		if calls < 2 {
			return nil, &Error{Kind: KindRateLimit, Status: 429, Retryable: true}
		}
		return &attemptResult{status: 200}, nil
	})
	if err != nil {
		t.Fatalf("runWithRetry() error = %v", err)
	}
	if retries != 1 {
		t.Errorf("retries = %d, want 1", retries)
	}
	if res.status != 200 {
		t.Errorf("status = %d, want 200", res.status)
	}
}

func TestRunWithRetry_ExhaustsLimit(t *testing.T) {
	calls := 0
	_, retries, err := runWithRetry(context.Background(), fastPolicy(), MethodGet, nil, func(ctx context.Context) (*attemptResult, *Error) {
		calls++
		return nil, &Error{Kind: KindServer, Status: 503, Retryable: true}
	})
	if err == nil {
		t.Fatal("runWithRetry() expected error")
	}
	if calls != 3 {
		t.Errorf("attempts = %d, want 3", calls)
	}
	if retries != 2 {
		t.Errorf("retries = %d, want 2", retries)
	}
	if err.Kind != KindServer {
		t.Errorf("Kind = %q, want %q", err.Kind, KindServer)
	}
}

func TestRunWithRetry_NonRetryableError(t *testing.T) {
	calls := 0
	_, retries, err := runWithRetry(context.Background(), fastPolicy(), MethodGet, nil, func(ctx context.Context) (*attemptResult, *Error) {
		calls++
		return nil, &Error{Kind: KindClient, Status: 404, Retryable: false}
	})
	if err == nil {
		t.Fatal("runWithRetry() expected error")
	}
	if calls != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
	if retries != 0 {
		t.Errorf("retries = %d, want 0", retries)
	}
}

func TestRunWithRetry_IneligibleMethod(t *testing.T) {
	// POST is not in the default retry method set: even a retryable server
	// error fails immediately.
	calls := 0
	_, retries, err := runWithRetry(context.Background(), fastPolicy(), MethodPost, nil, func(ctx context.Context) (*attemptResult, *Error) {
		calls++
		return nil, &Error{Kind: KindServer, Status: 503, Retryable: true}
	})
	if err == nil {
		t.Fatal("runWithRetry() expected error")
	}
	if calls != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
	if retries != 0 {
		t.Errorf("retries = %d, want 0", retries)
	}
}

func TestRunWithRetry_ObserverSeesProgress(t *testing.T) {
	var observed []int
	onRetry := func(attempt int, delay time.Duration, err *Error) {
		observed = append(observed, attempt)
	}
	_, _, err := runWithRetry(context.Background(), fastPolicy(), MethodGet, onRetry, func(ctx context.Context) (*attemptResult, *Error) {
		return nil, &Error{Kind: KindServer, Status: 502, Retryable: true}
	})
	if err == nil {
		t.Fatal("runWithRetry() expected error")
	}
	// Limit 3: retries happen after attempts 1 and 2, never after the last.
	if len(observed) != 2 || observed[0] != 1 || observed[1] != 2 {
		t.Errorf("observed attempts = %v, want [1 2]", observed)
	}
}

func TestRunWithRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := fastPolicy()
	policy.InitialBackoff = time.Second
	policy.MaxBackoff = time.Second

	_, _, err := runWithRetry(ctx, policy, MethodGet, nil, func(ctx context.Context) (*attemptResult, *Error) {
		cancel()
		return nil, &Error{Kind: KindServer, Status: 503, Retryable: true}
	})
	if err == nil {
		t.Fatal("runWithRetry() expected error")
	}
	if err.Kind != KindTimeout {
		t.Errorf("Kind = %q, want %q", err.Kind, KindTimeout)
	}
	if err.Retryable {
		t.Error("cancellation during backoff must not be retryable")
	}
}

func TestShouldRetry(t *testing.T) {
	policy := DefaultRetryPolicy()

	tests := []struct {
		name   string
		method Method
		err    *Error
		want   bool
	}{
		{
			name:   "eligible status on eligible method",
			method: MethodGet,
			err:    &Error{Status: 503, Retryable: true},
			want:   true,
		},
		{
			name:   "retryable transport error without status",
			method: MethodGet,
			err:    &Error{Kind: KindNetwork, Retryable: true},
			want:   true,
		},
		{
			name:   "non-retryable client status",
			method: MethodGet,
			err:    &Error{Status: 404, Retryable: false},
			want:   false,
		},
		{
			name:   "ineligible method",
			method: MethodPost,
			err:    &Error{Status: 503, Retryable: true},
			want:   false,
		},
		{
			name:   "eligible status overrides non-retryable classification",
			method: MethodGet,
			err:    &Error{Status: 408, Retryable: false},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(policy, tt.method, tt.err); got != tt.want {
				t.Errorf("shouldRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	policy := &RetryPolicy{
		Limit:          5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2.0,
	}

	// Jitter adds up to 100ms on top of the deterministic delay.
	tests := []struct {
		attempt    int
		retryAfter time.Duration
		min        time.Duration
		max        time.Duration
	}{
		{attempt: 1, min: 100 * time.Millisecond, max: 200 * time.Millisecond},
		{attempt: 2, min: 200 * time.Millisecond, max: 300 * time.Millisecond},
		{attempt: 3, min: 400 * time.Millisecond, max: 500 * time.Millisecond},
		// Exponential growth caps at MaxBackoff.
		{attempt: 10, min: time.Second, max: 1100 * time.Millisecond},
		// Server-requested Retry-After raises the delay.
		{attempt: 1, retryAfter: 800 * time.Millisecond, min: 800 * time.Millisecond, max: 900 * time.Millisecond},
		// But never above MaxBackoff.
		{attempt: 1, retryAfter: time.Minute, min: time.Second, max: 1100 * time.Millisecond},
	}

	for _, tt := range tests {
		got := backoffDelay(policy, tt.attempt, tt.retryAfter)
		if got < tt.min || got > tt.max {
			t.Errorf("backoffDelay(attempt=%d, retryAfter=%v) = %v, want in [%v, %v]",
				tt.attempt, tt.retryAfter, got, tt.min, tt.max)
		}
	}
}
