package port

import (
	"context"
	"math/rand"
	"time"
)

// attemptResult is the outcome of one successful attempt: a non-error status
// and its fully-read body.
type attemptResult struct {
	status int
	header map[string][]string
	body   []byte
}

// attemptFunc executes a single attempt of the logical request.
type attemptFunc func(ctx context.Context) (*attemptResult, *Error)

// retryFunc observes retry progress: the attempt that just failed, the delay
// before the next one, and the classified error. It must not alter the
// outcome; the final result reflects only the last attempt.
type retryFunc func(attempt int, delay time.Duration, err *Error)

// runWithRetry executes fn up to policy.Limit times as an explicit bounded
// loop. A retry happens only when the method is retry-eligible under the
// policy and either the response status is in the eligible set or the
// classified error is retryable. Returns the result of the last attempt and
// the number of retries performed (attempts minus one).
func runWithRetry(ctx context.Context, policy *RetryPolicy, method Method, onRetry retryFunc, fn attemptFunc) (*attemptResult, int, *Error) {
	var lastErr *Error

	for attempt := 1; attempt <= policy.Limit; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			return res, attempt - 1, nil
		}
		lastErr = err

		if attempt >= policy.Limit || !shouldRetry(policy, method, err) {
			return nil, attempt - 1, lastErr
		}

		delay := backoffDelay(policy, attempt, err.RetryAfter)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, attempt - 1, &Error{
				Kind:      KindTimeout,
				Message:   "request cancelled during retry backoff",
				Retryable: false,
				Cause:     ctx.Err(),
			}
		}
	}

	// Unreachable with Limit >= 1; kept for the zero-policy edge.
	return nil, 0, lastErr
}

// shouldRetry applies the eligibility rule: method must be in the policy's
// retry set, and either the status must be in the eligible status set or the
// error must classify as retryable.
func shouldRetry(policy *RetryPolicy, method Method, err *Error) bool {
	if !policy.methodEligible(method) {
		return false
	}
	if err.Status != 0 && policy.statusEligible(err.Status) {
		return true
	}
	return err.Retryable
}

// backoffDelay computes the wait before the next attempt: exponential
// backoff capped at MaxBackoff, raised to a server-requested Retry-After
// when larger, plus 0-100ms of jitter.
func backoffDelay(policy *RetryPolicy, attempt int, retryAfter time.Duration) time.Duration {
	initial := policy.InitialBackoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	factor := policy.BackoffFactor
	if factor < 1.0 {
		factor = 2.0
	}
	max := policy.MaxBackoff
	if max <= 0 {
		max = 10 * time.Second
	}

	delay := float64(initial)
	for i := 1; i < attempt; i++ {
		delay *= factor
	}
	if delay > float64(max) {
		delay = float64(max)
	}

	d := time.Duration(delay)
	if retryAfter > d {
		d = retryAfter
	}
	if d > max {
		d = max
	}

	jitter := time.Duration(rand.Int63n(101)) * time.Millisecond
	return d + jitter
}
