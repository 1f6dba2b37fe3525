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

// Package request implements the request command: a single authenticated
// call against a configured service.
package request

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mattsre/outpost/internal/log"
	"github.com/mattsre/outpost/internal/secrets"
	"github.com/mattsre/outpost/pkg/port"
)

type options struct {
	configPath      string
	query           []string
	body            string
	timeout         time.Duration
	maxRetries      int
	maxResponseSize int64
	metaOnly        bool
}

// NewCommand creates the request command.
func NewCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "request <method> <path>",
		Short: "Execute an authenticated request against a configured service",
		Long: `Execute a single request against an external service.

The service is described by a YAML config file naming the base URL, the
authentication strategy, and the retry policy. The credential is resolved
from the backend chain (environment, keychain, encrypted file) and injected
per the configured strategy; it never appears in output.

Examples:
  outpost request GET /issues/ENG-1 --config github.yaml
  outpost request GET /issues --config github.yaml --query state=open --query limit=50
  outpost request POST /issues --config github.yaml --body '{"title":"New issue"}'
  outpost request DELETE /issues/ENG-1 --config github.yaml --max-retries 1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args[0], args[1])
		},
	}

	addFlags(cmd.Flags(), opts)
	cmd.MarkFlagRequired("config")

	return cmd
}

func addFlags(flags *pflag.FlagSet, opts *options) {
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to the service config YAML")
	flags.StringArrayVarP(&opts.query, "query", "q", nil, "Query parameter as key=value (repeatable)")
	flags.StringVarP(&opts.body, "body", "d", "", "JSON request body (@file to read from a file)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Per-attempt timeout override")
	flags.IntVar(&opts.maxRetries, "max-retries", 0, "Retry attempt limit override")
	flags.Int64Var(&opts.maxResponseSize, "max-response-size", 0, "Response size ceiling override in bytes")
	flags.BoolVar(&opts.metaOnly, "meta", false, "Print execution metadata instead of the response body")
}

func run(ctx context.Context, opts *options, method, path string) error {
	cfg, err := port.LoadServiceConfig(opts.configPath)
	if err != nil {
		return err
	}

	callOpts, err := buildCallOptions(opts)
	if err != nil {
		return err
	}

	logger := log.New(log.FromEnv())
	p, err := port.Resolve(ctx, *cfg, secrets.DefaultChain(), port.WithLogger(logger))
	if err != nil {
		return err
	}

	res := p.Do(ctx, port.Method(strings.ToUpper(method)), path, callOpts)

	if opts.metaOnly {
		return printJSON(os.Stdout, res.Meta)
	}

	if !res.Ok() {
		fmt.Fprintf(os.Stderr, "error: %s\n", res.Err.Error())
		if res.Err.Hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", res.Err.Hint)
		}
		os.Exit(1)
	}

	if len(res.Data) > 0 {
		os.Stdout.Write(res.Data)
		fmt.Println()
	}
	return nil
}

func buildCallOptions(opts *options) (*port.Options, error) {
	callOpts := &port.Options{
		Timeout:         opts.timeout,
		MaxRetries:      opts.maxRetries,
		MaxResponseSize: opts.maxResponseSize,
	}

	if len(opts.query) > 0 {
		callOpts.Query = make(map[string]any, len(opts.query))
		for _, pair := range opts.query {
			key, value, ok := strings.Cut(pair, "=")
			if !ok || key == "" {
				return nil, fmt.Errorf("invalid query parameter %q (expected key=value)", pair)
			}
			callOpts.Query[key] = value
		}
	}

	if opts.body != "" {
		raw := []byte(opts.body)
		if strings.HasPrefix(opts.body, "@") {
			var err error
			raw, err = os.ReadFile(strings.TrimPrefix(opts.body, "@"))
			if err != nil {
				return nil, fmt.Errorf("failed to read body file: %w", err)
			}
		}
		var body any
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("request body is not valid JSON: %w", err)
		}
		callOpts.Body = body
	}

	return callOpts, nil
}

func printJSON(w *os.File, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
