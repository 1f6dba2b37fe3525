// Copyright 2025 Matt Sredniawa
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package secrets

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Chain queries a set of Backends in priority order and resolves the first
// match. It is the default implementation of the secrets collaborator the
// port layer consumes.
type Chain struct {
	backends []Backend
}

// NewChain creates a credential chain from the given backends.
// Unavailable backends are filtered out; the rest are sorted by priority
// (highest first).
func NewChain(backends ...Backend) *Chain {
	available := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Available() {
			available = append(available, b)
		}
	}

	sort.Slice(available, func(i, j int) bool {
		return available[i].Priority() > available[j].Priority()
	})

	return &Chain{backends: available}
}

// DefaultChain builds the standard backend chain: env, keychain, encrypted
// file. Backends that cannot initialize are skipped.
func DefaultChain() *Chain {
	backends := []Backend{NewEnvBackend(), NewKeychainBackend()}
	if fb, err := NewFileBackend("", ""); err == nil {
		backends = append(backends, fb)
	}
	return NewChain(backends...)
}

// Get resolves a credential by querying backends in priority order.
// Returns ErrNotFound when no backend holds the credential, or the last
// non-NotFound error when a backend failed.
func (c *Chain) Get(ctx context.Context, service, key string) (string, error) {
	if len(c.backends) == 0 {
		return "", fmt.Errorf("%w: no available backends", ErrUnavailable)
	}

	var lastErr error
	for _, backend := range c.backends {
		value, err := backend.Get(ctx, service, key)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			lastErr = err
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("failed to resolve %s/%s: %w", service, key, lastErr)
	}

	return "", fmt.Errorf("%w: %s/%s", ErrNotFound, service, key)
}

// Set stores a credential in the named backend, or the first writable
// backend in priority order when backendName is empty.
func (c *Chain) Set(ctx context.Context, service, key, value, backendName string) error {
	if len(c.backends) == 0 {
		return fmt.Errorf("%w: no available backends", ErrUnavailable)
	}

	if backendName != "" {
		for _, backend := range c.backends {
			if backend.Name() == backendName {
				if err := backend.Set(ctx, service, key, value); err != nil {
					return fmt.Errorf("failed to store in %s: %w", backendName, err)
				}
				return nil
			}
		}
		return fmt.Errorf("backend %q not found or unavailable", backendName)
	}

	for _, backend := range c.backends {
		err := backend.Set(ctx, service, key, value)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrReadOnly) {
			continue
		}
		return fmt.Errorf("failed to store in %s: %w", backend.Name(), err)
	}

	return errors.New("no writable backend available")
}

// Delete removes a credential from the named backend, or from every writable
// backend that holds it when backendName is empty.
func (c *Chain) Delete(ctx context.Context, service, key, backendName string) error {
	if len(c.backends) == 0 {
		return fmt.Errorf("%w: no available backends", ErrUnavailable)
	}

	if backendName != "" {
		for _, backend := range c.backends {
			if backend.Name() == backendName {
				if err := backend.Delete(ctx, service, key); err != nil {
					return fmt.Errorf("failed to delete from %s: %w", backendName, err)
				}
				return nil
			}
		}
		return fmt.Errorf("backend %q not found or unavailable", backendName)
	}

	deleted := false
	for _, backend := range c.backends {
		err := backend.Delete(ctx, service, key)
		if err == nil {
			deleted = true
			continue
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrReadOnly) {
			continue
		}
		return fmt.Errorf("failed to delete from %s: %w", backend.Name(), err)
	}

	if !deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, compositeKey(service, key))
	}

	return nil
}

// List returns refs from all backends. When the same credential exists in
// multiple backends, the highest-priority backend wins.
func (c *Chain) List(ctx context.Context) ([]Ref, error) {
	if len(c.backends) == 0 {
		return nil, fmt.Errorf("%w: no available backends", ErrUnavailable)
	}

	seen := make(map[string]Ref)
	for _, backend := range c.backends {
		refs, err := backend.List(ctx)
		if err != nil {
			continue
		}
		for _, ref := range refs {
			if _, exists := seen[ref.String()]; !exists {
				seen[ref.String()] = ref
			}
		}
	}

	result := make([]Ref, 0, len(seen))
	for _, ref := range seen {
		result = append(result, ref)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].String() < result[j].String()
	})

	return result, nil
}

// Backends returns the available backends in priority order.
func (c *Chain) Backends() []Backend {
	return c.backends
}
