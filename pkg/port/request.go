package port

import (
	"context"
	"encoding/json"
)

// Request executes a call through p and decodes the response body into T.
// A body that fails to decode becomes a client error; the metadata from the
// underlying call is preserved either way.
func Request[T any](ctx context.Context, p *Port, method Method, path string, opts *Options) *Result[T] {
	raw := p.Do(ctx, method, path, opts)
	if raw.Err != nil {
		return &Result[T]{Err: raw.Err, Meta: raw.Meta}
	}

	var data T
	if len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, &data); err != nil {
			meta := raw.Meta
			meta.EstimatedTokens = 0
			return &Result[T]{
				Err: &Error{
					Kind:      KindClient,
					Message:   "failed to decode response body",
					Status:    raw.Meta.Status,
					Retryable: false,
					Cause:     err,
				},
				Meta: meta,
			}
		}
	}

	return &Result[T]{Data: data, Meta: raw.Meta}
}

// Get is a convenience wrapper for GET requests.
func Get[T any](ctx context.Context, p *Port, path string, opts *Options) *Result[T] {
	return Request[T](ctx, p, MethodGet, path, opts)
}

// Post is a convenience wrapper for POST requests with a JSON body.
func Post[T any](ctx context.Context, p *Port, path string, body any, opts *Options) *Result[T] {
	if opts == nil {
		opts = &Options{}
	}
	opts.Body = body
	return Request[T](ctx, p, MethodPost, path, opts)
}
