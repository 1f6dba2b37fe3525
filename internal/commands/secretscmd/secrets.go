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

// Package secretscmd implements the secrets command group for credential
// management.
package secretscmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mattsre/outpost/internal/secrets"
)

var (
	secretBackend string
	secretUnmask  bool
	secretForce   bool
)

// NewCommand creates the secrets command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage service credentials",
		Long: `Manage credentials for configured services.

Credentials are keyed by service and key, and stored in a tiered backend
chain with automatic fallback:
  1. Environment variables (highest priority, read-only)
  2. System keychain (macOS Keychain, Linux Secret Service, Windows Credential Manager)
  3. Encrypted file (requires OUTPOST_MASTER_KEY, for headless hosts)

Examples:
  outpost secrets set github api-token
  outpost secrets get github api-token
  outpost secrets list
  outpost secrets delete github api-token`,
	}

	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newDeleteCommand())

	return cmd
}

func newSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <service> <key>",
		Short: "Store a credential",
		Long: `Store a credential for a service.

The value can be provided via:
  - Interactive prompt (hidden input, default)
  - Standard input: echo "value" | outpost secrets set github api-token

Examples:
  outpost secrets set github api-token
  outpost secrets set slack bot-token --backend file`,
		Args: cobra.ExactArgs(2),
		RunE: runSet,
	}

	cmd.Flags().StringVar(&secretBackend, "backend", "", "Target backend (keychain, file)")

	return cmd
}

func newGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <service> <key>",
		Short: "Retrieve a credential",
		Long: `Retrieve a credential from the backend chain.

The value is masked by default; use --unmask to print it in full.

Examples:
  outpost secrets get github api-token
  outpost secrets get github api-token --unmask`,
		Args: cobra.ExactArgs(2),
		RunE: runGet,
	}

	cmd.Flags().BoolVar(&secretUnmask, "unmask", false, "Show full value (not masked)")

	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored credentials",
		Long: `List credential references across all backends.

Values are never shown; when the same credential exists in multiple
backends, the highest-priority backend is reported.`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
}

func newDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <service> <key>",
		Short: "Remove a credential",
		Args:  cobra.ExactArgs(2),
		RunE:  runDelete,
	}

	cmd.Flags().StringVar(&secretBackend, "backend", "", "Target backend (keychain, file)")
	cmd.Flags().BoolVar(&secretForce, "force", false, "Skip confirmation prompt")

	return cmd
}

func runSet(cmd *cobra.Command, args []string) error {
	service, key := args[0], args[1]

	value, err := readValue()
	if err != nil {
		return fmt.Errorf("failed to read credential value: %w", err)
	}
	if value == "" {
		return errors.New("credential value cannot be empty")
	}

	chain := secrets.DefaultChain()
	ctx := context.Background()
	if err := chain.Set(ctx, service, key, value, secretBackend); err != nil {
		if errors.Is(err, secrets.ErrUnavailable) {
			return fmt.Errorf("no writable backend: %w\n\nTry:\n  1. Use --backend to pick a backend explicitly\n  2. Set OUTPOST_MASTER_KEY to enable the encrypted file backend\n  3. Export OUTPOST_SECRET_%s_%s=<value>", err,
				envForm(service), envForm(key))
		}
		return fmt.Errorf("failed to store credential: %w", err)
	}

	fmt.Printf("Credential %s/%s stored\n", service, key)
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	service, key := args[0], args[1]

	chain := secrets.DefaultChain()
	value, err := chain.Get(context.Background(), service, key)
	if err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			return fmt.Errorf("credential not found: %s/%s\n\nSet it with: outpost secrets set %s %s", service, key, service, key)
		}
		return fmt.Errorf("failed to resolve credential: %w", err)
	}

	if secretUnmask {
		fmt.Println(value)
	} else {
		fmt.Printf("%s (use --unmask to show full value)\n", maskValue(value))
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	chain := secrets.DefaultChain()
	refs, err := chain.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	if len(refs) == 0 {
		fmt.Println("No credentials found")
		return nil
	}

	fmt.Printf("%-20s %-25s %s\n", "SERVICE", "KEY", "BACKEND")
	fmt.Println(strings.Repeat("-", 60))
	for _, ref := range refs {
		fmt.Printf("%-20s %-25s %s\n", ref.Service, ref.Key, ref.Backend)
	}
	fmt.Printf("\nTotal: %d credential(s)\n", len(refs))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	service, key := args[0], args[1]

	if !secretForce {
		fmt.Printf("Delete credential %s/%s? [y/N]: ", service, key)
		var response string
		fmt.Scanln(&response)
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Println("Deletion canceled")
			return nil
		}
	}

	chain := secrets.DefaultChain()
	if err := chain.Delete(context.Background(), service, key, secretBackend); err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			return fmt.Errorf("credential not found: %s/%s", service, key)
		}
		if errors.Is(err, secrets.ErrReadOnly) {
			return errors.New("cannot delete from a read-only backend (environment variables)")
		}
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	fmt.Printf("Credential %s/%s deleted\n", service, key)
	return nil
}

// readValue reads the credential value from a pipe or an interactive hidden
// prompt.
func readValue() (string, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}

	if (stat.Mode() & os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}

	fmt.Print("Enter credential value (hidden): ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// maskValue masks a credential value for display.
func maskValue(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

// envForm converts a service or key to its environment variable segment.
func envForm(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, "/", "_")
}
