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
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// KeychainBackendPriority is the priority for the keychain backend.
	KeychainBackendPriority = 50

	// keychainService is the service name used for keychain entries.
	keychainService = "outpost"
)

// KeychainBackend provides secure storage using the system keychain.
// Supported platforms:
//   - macOS: Keychain Access
//   - Linux: Secret Service API (GNOME Keyring, KWallet)
//   - Windows: Credential Manager
type KeychainBackend struct {
	available bool
}

// NewKeychainBackend creates a new keychain backend.
// It probes the keyring service to detect locked or absent keychains early.
func NewKeychainBackend() *KeychainBackend {
	backend := &KeychainBackend{available: true}

	_, err := keyring.Get(keychainService, "__outpost_availability_probe__")
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		backend.available = false
	}

	return backend
}

// Name returns the backend identifier.
func (k *KeychainBackend) Name() string {
	return "keychain"
}

// Get retrieves a credential from the system keychain.
func (k *KeychainBackend) Get(ctx context.Context, service, key string) (string, error) {
	if !k.available {
		return "", fmt.Errorf("%w: keychain service unreachable", ErrUnavailable)
	}

	value, err := keyring.Get(keychainService, compositeKey(service, key))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, compositeKey(service, key))
		}
		if isKeychainLockedError(err) {
			return "", fmt.Errorf("%w: %s", ErrDenied, err.Error())
		}
		return "", fmt.Errorf("keychain error: %w", err)
	}

	return value, nil
}

// Set stores a credential in the system keychain.
func (k *KeychainBackend) Set(ctx context.Context, service, key, value string) error {
	if !k.available {
		return fmt.Errorf("%w: keychain service unreachable", ErrUnavailable)
	}

	if err := keyring.Set(keychainService, compositeKey(service, key), value); err != nil {
		if isKeychainLockedError(err) {
			return fmt.Errorf("%w: %s", ErrDenied, err.Error())
		}
		return fmt.Errorf("keychain error: %w", err)
	}

	return nil
}

// Delete removes a credential from the system keychain.
func (k *KeychainBackend) Delete(ctx context.Context, service, key string) error {
	if !k.available {
		return fmt.Errorf("%w: keychain service unreachable", ErrUnavailable)
	}

	if err := keyring.Delete(keychainService, compositeKey(service, key)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, compositeKey(service, key))
		}
		if isKeychainLockedError(err) {
			return fmt.Errorf("%w: %s", ErrDenied, err.Error())
		}
		return fmt.Errorf("keychain error: %w", err)
	}

	return nil
}

// List returns refs stored in the keychain.
// go-keyring cannot enumerate entries on all platforms, so this returns an
// empty list rather than an error.
func (k *KeychainBackend) List(ctx context.Context) ([]Ref, error) {
	if !k.available {
		return nil, fmt.Errorf("%w: keychain service unreachable", ErrUnavailable)
	}
	return []Ref{}, nil
}

// Available returns true if the keychain service is accessible.
func (k *KeychainBackend) Available() bool {
	return k.available
}

// Priority returns the backend priority.
func (k *KeychainBackend) Priority() int {
	return KeychainBackendPriority
}

// isKeychainLockedError checks if an error indicates the keychain is locked
// or access was refused. Error strings differ per platform.
func isKeychainLockedError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	indicators := []string{
		"locked",
		"cannot access",
		"permission denied",
		"failed to unlock",
		"user interaction required",
		"secret service",
		"dbus",
		"user canceled",
	}

	for _, indicator := range indicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}
