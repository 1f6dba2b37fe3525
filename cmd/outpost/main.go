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

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mattsre/outpost/internal/commands/request"
	"github.com/mattsre/outpost/internal/commands/secretscmd"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Load .env if present so OUTPOST_SECRET_* and OUTPOST_MASTER_KEY can
	// come from a local env file during development.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "outpost",
		Short: "Authenticated request execution for external services",
		Long: `outpost executes authenticated requests against configured external
services with credential resolution, bounded retries, and classified errors.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(request.NewCommand())
	rootCmd.AddCommand(secretscmd.NewCommand())
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("outpost %s (commit %s, built %s)\n", version, commit, buildDate)
		},
	}
}
