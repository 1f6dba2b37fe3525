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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	// FileBackendPriority is the priority for the encrypted file backend.
	FileBackendPriority = 25

	// Argon2id parameters: time=3, memory=64MB, parallelism=4.
	argon2Time        = 3
	argon2Memory      = 64 * 1024
	argon2Parallelism = 4
	argon2KeyLength   = 32

	// AES-GCM nonce size (96 bits, standard for GCM).
	gcmNonceSize = 12
)

// FileBackend provides encrypted credential storage using AES-256-GCM.
// Credentials are stored in a JSON file encrypted with a key derived from a
// master key, resolved from:
//  1. The masterKey constructor argument
//  2. OUTPOST_MASTER_KEY environment variable
//  3. ~/.config/outpost/master.key
type FileBackend struct {
	path      string
	masterKey []byte
	mu        sync.RWMutex
	available bool
}

// encryptedData is the on-disk structure of the encrypted credentials file.
type encryptedData struct {
	Salt  []byte `json:"salt"`
	Nonce []byte `json:"nonce"`
	Data  []byte `json:"data"`
}

// NewFileBackend creates a new encrypted file backend.
// If path is empty, it defaults to ~/.config/outpost/credentials.enc.
// A missing master key yields an unavailable backend rather than an error so
// the Chain can fall through to other backends.
func NewFileBackend(path string, masterKey string) (*FileBackend, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		path = filepath.Join(configDir, "outpost", "credentials.enc")
	}

	key, err := resolveMasterKey(masterKey)
	if err != nil {
		return &FileBackend{path: path, available: false}, nil
	}

	backend := &FileBackend{
		path:      path,
		masterKey: key,
		available: true,
	}

	if err := backend.ensureParentDir(); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	return backend, nil
}

// Name returns the backend identifier.
func (f *FileBackend) Name() string {
	return "file"
}

// Get retrieves a credential from the encrypted file.
func (f *FileBackend) Get(ctx context.Context, service, key string) (string, error) {
	if !f.available {
		return "", fmt.Errorf("%w: master key not available", ErrUnavailable)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	stored, err := f.load()
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, compositeKey(service, key))
		}
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}

	value, ok := stored[compositeKey(service, key)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, compositeKey(service, key))
	}

	return value, nil
}

// Set stores a credential in the encrypted file.
func (f *FileBackend) Set(ctx context.Context, service, key, value string) error {
	if !f.available {
		return fmt.Errorf("%w: master key not available", ErrUnavailable)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	stored, err := f.load()
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if stored == nil {
		stored = make(map[string]string)
	}

	stored[compositeKey(service, key)] = value

	if err := f.save(stored); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	return nil
}

// Delete removes a credential from the encrypted file.
func (f *FileBackend) Delete(ctx context.Context, service, key string) error {
	if !f.available {
		return fmt.Errorf("%w: master key not available", ErrUnavailable)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	stored, err := f.load()
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, compositeKey(service, key))
		}
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	composite := compositeKey(service, key)
	if _, ok := stored[composite]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, composite)
	}

	delete(stored, composite)
	if err := f.save(stored); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	return nil
}

// List returns refs for all credentials in the encrypted file.
func (f *FileBackend) List(ctx context.Context) ([]Ref, error) {
	if !f.available {
		return nil, fmt.Errorf("%w: master key not available", ErrUnavailable)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	stored, err := f.load()
	if err != nil {
		if os.IsNotExist(err) {
			return []Ref{}, nil
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	refs := make([]Ref, 0, len(stored))
	for composite := range stored {
		ref, ok := splitCompositeKey(composite)
		if !ok {
			continue
		}
		ref.Backend = f.Name()
		refs = append(refs, ref)
	}

	return refs, nil
}

// Available returns true if the master key is available.
func (f *FileBackend) Available() bool {
	return f.available
}

// Priority returns the backend priority.
func (f *FileBackend) Priority() int {
	return FileBackendPriority
}

// load reads and decrypts the credentials file.
func (f *FileBackend) load() (map[string]string, error) {
	encData, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	var data encryptedData
	if err := json.Unmarshal(encData, &data); err != nil {
		return nil, fmt.Errorf("invalid encrypted data format: %w", err)
	}

	key := argon2.IDKey(f.masterKey, data.Salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLength)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, data.Nonce, data.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong master key or corrupted data): %w", err)
	}
	defer zeroBytes(plaintext)

	var stored map[string]string
	if err := json.Unmarshal(plaintext, &stored); err != nil {
		return nil, fmt.Errorf("invalid decrypted data format: %w", err)
	}

	return stored, nil
}

// save encrypts and writes the credentials file atomically.
func (f *FileBackend) save(stored map[string]string) error {
	plaintext, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	defer zeroBytes(plaintext)

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey(f.masterKey, salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLength)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	data := encryptedData{
		Salt:  salt,
		Nonce: nonce,
		Data:  gcm.Seal(nil, nonce, plaintext, nil),
	}

	encData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal encrypted data: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, encData, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ensureParentDir creates the parent directory with secure permissions.
func (f *FileBackend) ensureParentDir() error {
	dir := filepath.Dir(f.path)

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("parent path exists but is not a directory: %s", dir)
		}
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	return nil
}

// resolveMasterKey resolves the master key from the provided value, the
// environment, or the on-disk key file, in that order.
func resolveMasterKey(providedKey string) ([]byte, error) {
	if providedKey != "" {
		return []byte(providedKey), nil
	}

	if envKey := os.Getenv("OUTPOST_MASTER_KEY"); envKey != "" {
		return []byte(envKey), nil
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		keyPath := filepath.Join(configDir, "outpost", "master.key")
		if key, err := os.ReadFile(keyPath); err == nil {
			if err := verifyFilePermissions(keyPath); err == nil {
				return key, nil
			}
		}
	}

	return nil, errors.New("master key not available (set OUTPOST_MASTER_KEY or create ~/.config/outpost/master.key)")
}

// verifyFilePermissions checks that a file has 0600 or stricter permissions
// and is not a symlink.
func verifyFilePermissions(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return errors.New("file is a symlink (not allowed for security)")
	}

	perm := info.Mode().Perm()
	if perm&0077 != 0 {
		return fmt.Errorf("file permissions too open (got %o, want 0600)", perm)
	}

	return nil
}

// zeroBytes zeros a byte slice holding sensitive material.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
