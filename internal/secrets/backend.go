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
	"strings"
)

var (
	// ErrNotFound is returned when a credential does not exist in any backend.
	ErrNotFound = errors.New("credential not found")

	// ErrDenied is returned when a backend refuses access to a credential,
	// for example a locked keychain.
	ErrDenied = errors.New("credential access denied")

	// ErrUnavailable is returned when no backend can be used in the current
	// environment.
	ErrUnavailable = errors.New("credential backend unavailable")

	// ErrReadOnly is returned when attempting to modify a read-only backend.
	ErrReadOnly = errors.New("backend is read-only")
)

// Backend provides storage for credentials keyed by (service, key) pairs.
// Backends implement different storage mechanisms (keychain, environment,
// encrypted file) and are queried in priority order by the Chain.
type Backend interface {
	// Name returns the backend identifier (e.g., "keychain", "env", "file").
	Name() string

	// Get retrieves a credential. Returns ErrNotFound if not present.
	Get(ctx context.Context, service, key string) (string, error)

	// Set stores a credential. Returns ErrReadOnly if not supported.
	Set(ctx context.Context, service, key, value string) error

	// Delete removes a credential. Returns ErrNotFound if not present.
	// Returns ErrReadOnly if not supported.
	Delete(ctx context.Context, service, key string) error

	// List returns all credential references (not values) held by this backend.
	List(ctx context.Context) ([]Ref, error)

	// Available returns true if this backend is usable in the current
	// environment. For example, keychain returns false when the keyring
	// service cannot be reached.
	Available() bool

	// Priority returns the resolution priority (higher = checked first).
	// Standard priorities: env (100), keychain (50), file (25).
	Priority() int
}

// Ref identifies a stored credential without exposing its value.
type Ref struct {
	Service string
	Key     string
	Backend string
}

// String returns the canonical "service/key" form of the reference.
func (r Ref) String() string {
	return r.Service + "/" + r.Key
}

// compositeKey joins a service and key into the single identifier backends
// store under. Services and keys are lowercased so lookups are stable across
// callers.
func compositeKey(service, key string) string {
	return strings.ToLower(service) + "/" + strings.ToLower(key)
}

// splitCompositeKey is the inverse of compositeKey. The second return is
// false when the stored identifier is not in "service/key" form.
func splitCompositeKey(composite string) (Ref, bool) {
	service, key, ok := strings.Cut(composite, "/")
	if !ok || service == "" || key == "" {
		return Ref{}, false
	}
	return Ref{Service: service, Key: key}, true
}
