package port

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mattsre/outpost/internal/log"
	"github.com/mattsre/outpost/internal/metrics"
	"github.com/mattsre/outpost/internal/tokens"
	"github.com/mattsre/outpost/pkg/secrets"
)

// Options are per-call overrides. All fields are optional; the zero value
// inherits the service configuration defaults.
type Options struct {
	// Query parameters appended to the request URL. Values may be strings,
	// numbers, or booleans.
	Query map[string]any

	// Body is the request body, marshaled to JSON when non-nil.
	Body any

	// Timeout overrides the per-attempt timeout.
	Timeout time.Duration

	// MaxRetries overrides the retry attempt limit when > 0.
	MaxRetries int

	// MaxResponseSize overrides the response body ceiling in bytes when > 0.
	MaxResponseSize int64
}

// Meta is the execution metadata attached to every Result, success or
// failure.
type Meta struct {
	// Status is the final HTTP status, 0 if the service was never reached.
	Status int `json:"status"`

	// DurationMS is the wall-clock duration of the whole call in
	// milliseconds, retries included.
	DurationMS int64 `json:"duration_ms"`

	// Retries is the number of retries actually performed (attempts minus
	// one). Never exceeds the configured limit minus one.
	Retries int `json:"retries"`

	// EstimatedTokens is the approximate size-cost of the returned payload.
	// 0 when no payload was delivered.
	EstimatedTokens int `json:"estimated_tokens"`
}

// Result is the outcome of one request call. Exactly one of Data and Err is
// populated; Meta is populated on every path.
type Result[T any] struct {
	Data T
	Err  *Error
	Meta Meta
}

// Ok reports whether the call succeeded.
func (r *Result[T]) Ok() bool {
	return r.Err == nil
}

// Port executes requests against one external service. The credential is
// fixed at construction and read-only afterward, so concurrent calls against
// the same Port need no locking.
type Port struct {
	cfg        ServiceConfig
	credential string
	client     *http.Client
	logger     *slog.Logger
	masker     *secrets.Masker
	limiter    *rate.Limiter
	metricsOn  bool
}

// Option customizes a Port at construction.
type Option func(*Port)

// WithHTTPClient replaces the underlying HTTP client. Useful for tests and
// for callers with their own transport requirements.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Port) { p.client = client }
}

// WithLogger sets the structured logger for retry progress and request
// completion events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Port) { p.logger = logger }
}

// WithRateLimit throttles outbound attempts to r requests per second with
// the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(p *Port) { p.limiter = rate.NewLimiter(r, burst) }
}

// WithMetrics enables Prometheus metrics for this port.
func WithMetrics() Option {
	return func(p *Port) { p.metricsOn = true }
}

// New constructs a Port with an explicitly provided, pre-resolved
// credential. It performs no I/O, which keeps test harnesses deterministic.
func New(cfg ServiceConfig, credential string, opts ...Option) (*Port, error) {
	return newPort(cfg, credential, opts...)
}

func newPort(cfg ServiceConfig, credential string, opts ...Option) (*Port, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config: %w", err)
	}
	if credential == "" {
		return nil, fmt.Errorf("credential is required")
	}

	p := &Port{
		cfg:        cfg,
		credential: credential,
		client:     defaultHTTPClient(),
		logger:     slog.Default(),
		masker:     secrets.NewMasker(),
	}
	for _, opt := range opts {
		opt(p)
	}

	// Every message leaving this port is scrubbed of the credential value.
	p.masker.Add(credential)
	p.logger = log.WithService(p.logger, cfg.Name)

	return p, nil
}

// defaultHTTPClient builds the pooled HTTP client shared by all attempts.
// Timeouts are enforced per attempt via context deadlines, not on the client.
func defaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,

			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,

			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}

// Do executes one logical request and returns its Result. Failures are
// returned inside the Result, never as a Go error: callers branch on
// Result.Err. The raw response body is carried as json.RawMessage; use
// Request for typed decoding.
func (p *Port) Do(ctx context.Context, method Method, path string, opts *Options) *Result[json.RawMessage] {
	start := time.Now()
	if opts == nil {
		opts = &Options{}
	}

	correlationID := uuid.NewString()
	logger := log.WithRequestID(p.logger, correlationID)

	if !validMethod(method) {
		return p.settleErr(logger, method, path, start, 0, &Error{
			Kind:      KindClient,
			Message:   fmt.Sprintf("unsupported method %q", method),
			Retryable: false,
		})
	}

	requestURL, err := p.buildURL(path, opts.Query)
	if err != nil {
		return p.settleErr(logger, method, path, start, 0, &Error{
			Kind:      KindClient,
			Message:   fmt.Sprintf("failed to build request URL: %v", err),
			Retryable: false,
		})
	}

	var bodyBytes []byte
	if opts.Body != nil {
		bodyBytes, err = json.Marshal(opts.Body)
		if err != nil {
			return p.settleErr(logger, method, path, start, 0, &Error{
				Kind:      KindClient,
				Message:   "failed to marshal request body",
				Retryable: false,
				Cause:     err,
			})
		}
	}

	timeout := p.cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	ceiling := DefaultMaxResponseSize
	if opts.MaxResponseSize > 0 {
		ceiling = opts.MaxResponseSize
	}

	policy := p.cfg.Retry
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if opts.MaxRetries > 0 {
		override := *policy
		override.Limit = opts.MaxRetries
		policy = &override
	}

	attempt := func(ctx context.Context) (*attemptResult, *Error) {
		return p.attemptOnce(ctx, method, requestURL, bodyBytes, correlationID, timeout, ceiling)
	}

	onRetry := func(attempt int, delay time.Duration, aerr *Error) {
		logger.Debug("retrying request",
			log.MethodKey, string(method),
			log.PathKey, path,
			log.AttemptKey, attempt,
			log.ErrorKindKey, string(aerr.Kind),
			"delay_ms", delay.Milliseconds(),
		)
	}

	result, retries, aerr := runWithRetry(ctx, policy, method, onRetry, attempt)
	if aerr != nil {
		return p.settleErr(logger, method, path, start, retries, aerr)
	}

	meta := Meta{
		Status:          result.status,
		DurationMS:      time.Since(start).Milliseconds(),
		Retries:         retries,
		EstimatedTokens: tokens.Estimate(result.body),
	}
	p.record(logger, method, path, meta, nil)

	return &Result[json.RawMessage]{
		Data: json.RawMessage(result.body),
		Meta: meta,
	}
}

// attemptOnce performs a single attempt: rate limit, send, size guard,
// status classification. The per-attempt deadline is derived here so a
// timeout mid-attempt classifies and retries like any other retryable error.
func (p *Port) attemptOnce(ctx context.Context, method Method, requestURL string, bodyBytes []byte, correlationID string, timeout time.Duration, ceiling int64) (*attemptResult, *Error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if p.limiter != nil {
		if err := p.limiter.Wait(actx); err != nil {
			return nil, classifyTransport(p.cfg.Name, err)
		}
	}

	var bodyReader io.Reader
	if bodyBytes != nil {
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(actx, string(method), requestURL, bodyReader)
	if err != nil {
		return nil, &Error{
			Kind:      KindClient,
			Message:   "failed to build request",
			Retryable: false,
			Cause:     err,
		}
	}

	for key, value := range p.cfg.Headers {
		req.Header.Set(key, value)
	}
	if bodyBytes != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Correlation-Id", correlationID)

	if err := applyAuth(req, p.credential, p.cfg.Auth); err != nil {
		return nil, &Error{
			Kind:      KindAuth,
			Message:   "failed to apply authentication",
			Hint:      authHint(p.cfg.Name, p.cfg.Auth.CredentialKey),
			Retryable: false,
			Cause:     err,
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransport(p.cfg.Name, err)
	}
	defer resp.Body.Close()

	body, gerr := readBounded(p.cfg.Name, resp.Body, ceiling)
	if gerr != nil {
		gerr.Status = resp.StatusCode
		return nil, gerr
	}

	if resp.StatusCode >= 400 {
		return nil, classifyStatus(p.cfg.Name, p.cfg.Auth.CredentialKey, resp.StatusCode, body, resp.Header)
	}

	return &attemptResult{
		status: resp.StatusCode,
		header: resp.Header,
		body:   body,
	}, nil
}

// settleErr finalizes a failed call: masks the credential out of the error,
// fills metadata, and records observability events.
func (p *Port) settleErr(logger *slog.Logger, method Method, path string, start time.Time, retries int, aerr *Error) *Result[json.RawMessage] {
	aerr.Message = p.masker.Mask(aerr.Message)
	aerr.Hint = p.masker.Mask(aerr.Hint)

	meta := Meta{
		Status:     aerr.Status,
		DurationMS: time.Since(start).Milliseconds(),
		Retries:    retries,
	}
	p.record(logger, method, path, meta, aerr)

	return &Result[json.RawMessage]{Err: aerr, Meta: meta}
}

// record emits the completion log line and metrics for one call.
func (p *Port) record(logger *slog.Logger, method Method, path string, meta Meta, aerr *Error) {
	attrs := []any{
		log.MethodKey, string(method),
		log.PathKey, path,
		log.StatusKey, meta.Status,
		log.DurationKey, meta.DurationMS,
		log.RetriesKey, meta.Retries,
	}
	if aerr != nil {
		logger.Debug("request failed", append(attrs, log.ErrorKindKey, string(aerr.Kind))...)
	} else {
		logger.Debug("request completed", attrs...)
	}

	if p.metricsOn {
		metrics.RecordRequest(p.cfg.Name, string(method), meta.Status, time.Duration(meta.DurationMS)*time.Millisecond, meta.Retries)
		if aerr != nil {
			metrics.RecordError(p.cfg.Name, string(aerr.Kind))
		}
	}
}

// buildURL joins the base URL, path, and query parameters.
func (p *Port) buildURL(path string, query map[string]any) (string, error) {
	base := strings.TrimSuffix(p.cfg.BaseURL, "/")
	path = "/" + strings.TrimPrefix(path, "/")

	u, err := url.Parse(base + path)
	if err != nil {
		return "", err
	}

	if len(query) > 0 {
		values := u.Query()
		for key, value := range query {
			values.Set(key, queryValue(value))
		}
		u.RawQuery = values.Encode()
	}

	return u.String(), nil
}

// queryValue renders a query parameter value. Supported types are strings,
// booleans, and numbers.
func queryValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
