// Package secrets provides utilities for detecting and masking credential
// values in strings before they reach logs or error messages.
package secrets

import (
	"strings"
	"sync"
)

// Placeholder is the replacement text for masked values.
const Placeholder = "***"

// Masker replaces known credential values with a placeholder in any string
// that passes through it. The port layer registers every resolved credential
// with a Masker so no error message or log line can echo a secret, even when
// a remote service reflects the credential back in a response body.
type Masker struct {
	mu sync.RWMutex

	// patterns are env key suffixes that indicate a secret value
	patterns []string

	// values is the set of known secret values to mask
	values map[string]struct{}
}

// NewMasker creates a Masker with the default secret key patterns.
func NewMasker() *Masker {
	return &Masker{
		patterns: []string{
			"_TOKEN",
			"_SECRET",
			"_KEY",
			"_PASSWORD",
			"_PASS",
			"_CREDENTIAL",
		},
		values: make(map[string]struct{}),
	}
}

// Add registers a value to be masked. Empty values are ignored.
func (m *Masker) Add(value string) {
	if value == "" {
		return
	}
	m.mu.Lock()
	m.values[value] = struct{}{}
	m.mu.Unlock()
}

// AddFromEnv registers values for any env key matching a secret pattern.
func (m *Masker) AddFromEnv(env map[string]string) {
	for key, value := range env {
		if m.isSecretKey(key) {
			m.Add(value)
		}
	}
}

func (m *Masker) isSecretKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, p := range m.patterns {
		if strings.HasSuffix(upper, p) {
			return true
		}
	}
	return false
}

// Mask replaces every registered value in s with the placeholder.
func (m *Masker) Mask(s string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for v := range m.values {
		if strings.Contains(s, v) {
			s = strings.ReplaceAll(s, v, Placeholder)
		}
	}
	return s
}
