package port

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Kind classifies request failures for retry decisions and error handling.
type Kind string

const (
	// KindAuth indicates the credential was rejected or forbidden (401, 403).
	KindAuth Kind = "auth"

	// KindRateLimit indicates the server signaled throttling (429).
	KindRateLimit Kind = "rate_limit"

	// KindClient indicates a non-retryable request error (4xx other than
	// auth and rate limit).
	KindClient Kind = "client"

	// KindServer indicates a server-side error (5xx).
	KindServer Kind = "server"

	// KindTimeout indicates a deadline was exceeded.
	KindTimeout Kind = "timeout"

	// KindNetwork indicates a connection-level failure (refused, reset, DNS).
	KindNetwork Kind = "network"
)

// Error is a classified request failure. Messages and hints are safe to log:
// the port masks resolved credential values before an Error is returned.
type Error struct {
	// Kind classifies the error.
	Kind Kind

	// Message is the human-readable description.
	Message string

	// Status is the HTTP status code, 0 for transport-level failures.
	Status int

	// Hint provides actionable guidance. Always set for auth errors.
	Hint string

	// Retryable indicates whether the same request may succeed on retry.
	Retryable bool

	// RetryAfter is the server-requested wait, when provided (rate limits).
	RetryAfter time.Duration

	// Cause is the underlying error. May contain data unfit for user
	// display; prefer Message.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the same request may succeed if attempted
// again without modification.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// maxDetailLen bounds how much server-provided error detail is carried in a
// client error message.
const maxDetailLen = 500

// classifyStatus maps an HTTP error status into an Error.
// Ordering: 401/403 and 429 are checked before generic 4xx classification;
// they carry distinct retry and remediation semantics.
func classifyStatus(service, credentialKey string, status int, body []byte, header http.Header) *Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{
			Kind:      KindAuth,
			Status:    status,
			Message:   fmt.Sprintf("%s rejected the credential (%d %s)", service, status, http.StatusText(status)),
			Hint:      authHint(service, credentialKey),
			Retryable: false,
		}

	case status == http.StatusTooManyRequests:
		return &Error{
			Kind:       KindRateLimit,
			Status:     status,
			Message:    fmt.Sprintf("%s is rate limiting requests (429)", service),
			Retryable:  true,
			RetryAfter: parseRetryAfter(header),
		}

	case status >= 400 && status < 500:
		msg := fmt.Sprintf("%d %s", status, http.StatusText(status))
		if detail := clientDetail(body); detail != "" {
			msg = fmt.Sprintf("%s: %s", msg, detail)
		}
		return &Error{
			Kind:      KindClient,
			Status:    status,
			Message:   msg,
			Retryable: false,
		}

	default:
		return &Error{
			Kind:      KindServer,
			Status:    status,
			Message:   fmt.Sprintf("%s returned %d %s", service, status, http.StatusText(status)),
			Retryable: true,
		}
	}
}

// classifyTransport maps a transport-level failure (no HTTP status) into an
// Error. All transport failures are retryable.
func classifyTransport(service string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Kind:      KindTimeout,
			Message:   fmt.Sprintf("request to %s timed out", service),
			Retryable: true,
			Cause:     err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{
			Kind:      KindTimeout,
			Message:   fmt.Sprintf("request to %s was cancelled", service),
			Retryable: true,
			Cause:     err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{
			Kind:      KindTimeout,
			Message:   fmt.Sprintf("request to %s timed out", service),
			Retryable: true,
			Cause:     err,
		}
	}

	if isConnectionError(err) {
		return &Error{
			Kind:      KindNetwork,
			Message:   fmt.Sprintf("connection to %s failed", service),
			Retryable: true,
			Cause:     err,
		}
	}

	return &Error{
		Kind:      KindNetwork,
		Message:   fmt.Sprintf("request to %s failed: %s", service, err.Error()),
		Retryable: true,
		Cause:     err,
	}
}

// isConnectionError checks for connection-level failures.
func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	keywords := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network unreachable",
		"broken pipe",
		"eof",
	}
	for _, keyword := range keywords {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}

	return false
}

// clientDetail extracts a bounded, human-useful summary from a 4xx response
// body. It understands two shapes: a top-level "errors" array of objects
// carrying "message" fields (GraphQL and batch-style APIs), and a single
// top-level "message". Plain short text bodies are used as-is. Everything is
// truncated to maxDetailLen so unbounded server output never reaches callers.
// Best-effort only: returning "" is always acceptable.
func clientDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	if errList := gjson.GetBytes(body, "errors"); errList.IsArray() {
		var msgs []string
		errList.ForEach(func(_, v gjson.Result) bool {
			switch {
			case v.Get("message").Exists():
				msgs = append(msgs, v.Get("message").String())
			case v.Type == gjson.String:
				msgs = append(msgs, v.String())
			}
			return true
		})
		if len(msgs) > 0 {
			return truncate(strings.Join(msgs, "; "), maxDetailLen)
		}
	}

	if msg := gjson.GetBytes(body, "message"); msg.Exists() && msg.Type == gjson.String {
		return truncate(msg.String(), maxDetailLen)
	}

	trimmed := strings.TrimSpace(string(body))
	// Skip HTML error pages: they carry no useful detail at this length.
	if trimmed == "" || strings.HasPrefix(trimmed, "<") {
		return ""
	}
	return truncate(trimmed, maxDetailLen)
}

// truncate bounds s to max bytes, marking the cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// serviceHints carries provider-specific remediation guidance for auth
// failures against well-known services.
var serviceHints = map[string]string{
	"github": "verify the token is valid and has the required scopes (https://github.com/settings/tokens)",
	"slack":  "rotate the bot token in the Slack app admin console and confirm the app is installed",
	"jira":   "confirm the API token is active in Atlassian account settings",
	"linear": "create a new personal API key under Linear settings > API",
}

// authHint returns actionable guidance for an auth failure against the
// given service.
func authHint(service, credentialKey string) string {
	if hint, ok := serviceHints[strings.ToLower(service)]; ok {
		return hint
	}
	return fmt.Sprintf("check the credential for %s and re-store it under key %q", service, credentialKey)
}

// parseRetryAfter extracts the Retry-After header value.
// Supports both delay-seconds and HTTP-date formats. Returns 0 if the
// header is missing or invalid.
func parseRetryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(value); err == nil {
		if delay := time.Until(retryTime); delay > 0 {
			return delay
		}
	}

	return 0
}
