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
	"fmt"
	"os"
	"strings"
)

const (
	// EnvBackendPriority is the priority for the environment variable
	// backend. Highest, so the environment can override stored credentials.
	EnvBackendPriority = 100

	// envSecretPrefix is the prefix for outpost-specific credential
	// environment variables.
	envSecretPrefix = "OUTPOST_SECRET_"
)

// EnvBackend provides read-only access to credentials via environment
// variables. Two naming conventions are checked, in order:
//  1. OUTPOST_SECRET_<SERVICE>_<KEY> (e.g., OUTPOST_SECRET_LINEAR_API_TOKEN)
//  2. <SERVICE>_<KEY> (e.g., LINEAR_API_TOKEN)
type EnvBackend struct{}

// NewEnvBackend creates a new environment variable backend.
func NewEnvBackend() *EnvBackend {
	return &EnvBackend{}
}

// Name returns the backend identifier.
func (e *EnvBackend) Name() string {
	return "env"
}

// Get retrieves a credential from environment variables.
func (e *EnvBackend) Get(ctx context.Context, service, key string) (string, error) {
	if value := os.Getenv(envSecretPrefix + normalize(service, key)); value != "" {
		return value, nil
	}
	if value := os.Getenv(normalize(service, key)); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: environment variable not set", ErrNotFound)
}

// Set returns ErrReadOnly as the environment backend is read-only.
func (e *EnvBackend) Set(ctx context.Context, service, key, value string) error {
	return ErrReadOnly
}

// Delete returns ErrReadOnly as the environment backend is read-only.
func (e *EnvBackend) Delete(ctx context.Context, service, key string) error {
	return ErrReadOnly
}

// List returns refs for all OUTPOST_SECRET_* environment variables.
// Plain <SERVICE>_<KEY> aliases cannot be enumerated and are omitted.
func (e *EnvBackend) List(ctx context.Context) ([]Ref, error) {
	var refs []Ref
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, envSecretPrefix) {
			continue
		}
		name, value, ok := strings.Cut(env, "=")
		if !ok || value == "" {
			continue
		}
		// OUTPOST_SECRET_<SERVICE>_<KEY>: the first underscore after the
		// prefix separates service from key.
		rest := strings.TrimPrefix(name, envSecretPrefix)
		service, key, ok := strings.Cut(rest, "_")
		if !ok || service == "" || key == "" {
			continue
		}
		refs = append(refs, Ref{
			Service: strings.ToLower(service),
			Key:     strings.ToLower(strings.ReplaceAll(key, "_", "-")),
			Backend: e.Name(),
		})
	}
	return refs, nil
}

// Available returns true as environment variables are always readable.
func (e *EnvBackend) Available() bool {
	return true
}

// Priority returns the backend priority (highest).
func (e *EnvBackend) Priority() int {
	return EnvBackendPriority
}

// normalize converts a (service, key) pair to SERVICE_KEY env form:
// uppercased with dashes and slashes folded to underscores.
func normalize(service, key string) string {
	join := service + "_" + key
	join = strings.ToUpper(join)
	join = strings.ReplaceAll(join, "-", "_")
	join = strings.ReplaceAll(join, "/", "_")
	return join
}
