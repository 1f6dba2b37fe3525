package port

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Method is an HTTP method the port can execute.
type Method string

// Methods supported by the request operation.
const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
)

// validMethod reports whether m is one of the supported methods.
func validMethod(m Method) bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete:
		return true
	default:
		return false
	}
}

// AuthType selects the authentication strategy for a service.
// The set is closed: dispatch is by exhaustive switch, so adding a strategy
// is a compile-visible change everywhere auth is applied.
type AuthType string

const (
	// AuthQuery appends the credential as a query parameter named KeyName.
	AuthQuery AuthType = "query"

	// AuthHeader sets the credential as a header named KeyName.
	AuthHeader AuthType = "header"

	// AuthBearer sets "Authorization: Bearer <credential>".
	AuthBearer AuthType = "bearer"

	// AuthOAuth resolves an access token via the OAuth2 client-credentials
	// flow at construction time, then injects it identically to AuthBearer.
	AuthOAuth AuthType = "oauth"
)

// OAuthConfig carries the extra fields an oauth-authenticated service needs.
type OAuthConfig struct {
	// Provider is the OAuth2 provider name. Known providers have built-in
	// token endpoints; others must set TokenURL.
	Provider string `yaml:"provider"`

	// ClientIDKey is the credential key holding the OAuth2 client ID.
	ClientIDKey string `yaml:"client_id_key"`

	// Scopes are the requested OAuth2 scopes.
	Scopes []string `yaml:"scopes,omitempty"`

	// TokenURL overrides the provider token endpoint.
	TokenURL string `yaml:"token_url,omitempty"`
}

// AuthConfig declares how the resolved credential is injected into requests.
type AuthConfig struct {
	// Type is the authentication strategy.
	Type AuthType `yaml:"type"`

	// KeyName is the query parameter or header name for AuthQuery and
	// AuthHeader strategies. Unused for bearer and oauth.
	KeyName string `yaml:"key_name,omitempty"`

	// CredentialKey identifies the credential to resolve. For oauth, it
	// holds the client secret.
	CredentialKey string `yaml:"credential_key"`

	// OAuth carries the oauth-specific fields; required when Type is AuthOAuth.
	OAuth *OAuthConfig `yaml:"oauth,omitempty"`
}

// Validate checks the auth configuration is usable.
func (a *AuthConfig) Validate() error {
	if a.CredentialKey == "" {
		return fmt.Errorf("credential_key is required")
	}

	switch a.Type {
	case AuthQuery, AuthHeader:
		if a.KeyName == "" {
			return fmt.Errorf("key_name is required for %s auth", a.Type)
		}
	case AuthBearer:
		// nothing beyond the credential key
	case AuthOAuth:
		if a.OAuth == nil {
			return fmt.Errorf("oauth configuration is required for oauth auth")
		}
		if a.OAuth.ClientIDKey == "" {
			return fmt.Errorf("oauth client_id_key is required")
		}
		if a.OAuth.TokenURL == "" && providerTokenURL(a.OAuth.Provider) == "" {
			return fmt.Errorf("unknown oauth provider %q: set token_url explicitly", a.OAuth.Provider)
		}
	default:
		return fmt.Errorf("invalid auth type: %q (must be query, header, bearer, or oauth)", a.Type)
	}

	return nil
}

// RetryPolicy bounds how a failed request is reattempted.
type RetryPolicy struct {
	// Limit is the maximum number of attempts, including the first.
	Limit int `yaml:"limit"`

	// Methods are the HTTP methods eligible for retry.
	Methods []Method `yaml:"methods,omitempty"`

	// StatusCodes are response statuses eligible for retry regardless of
	// how the failure classified.
	StatusCodes []int `yaml:"status_codes,omitempty"`

	// InitialBackoff is the first retry delay (default: 500ms).
	InitialBackoff time.Duration `yaml:"initial_backoff,omitempty"`

	// MaxBackoff caps the retry delay (default: 10s).
	MaxBackoff time.Duration `yaml:"max_backoff,omitempty"`

	// BackoffFactor is the exponential multiplier (default: 2.0).
	BackoffFactor float64 `yaml:"backoff_factor,omitempty"`
}

// DefaultRetryPolicy returns the default retry policy: 3 attempts, retryable
// methods GET/PUT/DELETE, retryable statuses 408/429/500/502/503/504.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Limit:          3,
		Methods:        []Method{MethodGet, MethodPut, MethodDelete},
		StatusCodes:    []int{408, 429, 500, 502, 503, 504},
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
	}
}

// UnmarshalYAML decodes a retry policy, accepting Go duration strings
// ("500ms", "10s") for the backoff fields.
func (p *RetryPolicy) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Limit          int      `yaml:"limit"`
		Methods        []Method `yaml:"methods"`
		StatusCodes    []int    `yaml:"status_codes"`
		InitialBackoff string   `yaml:"initial_backoff"`
		MaxBackoff     string   `yaml:"max_backoff"`
		BackoffFactor  float64  `yaml:"backoff_factor"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	p.Limit = raw.Limit
	p.Methods = raw.Methods
	p.StatusCodes = raw.StatusCodes
	p.BackoffFactor = raw.BackoffFactor

	var err error
	if p.InitialBackoff, err = parseDuration(raw.InitialBackoff); err != nil {
		return fmt.Errorf("invalid initial_backoff: %w", err)
	}
	if p.MaxBackoff, err = parseDuration(raw.MaxBackoff); err != nil {
		return fmt.Errorf("invalid max_backoff: %w", err)
	}
	return nil
}

// Validate checks the retry policy is valid.
func (p *RetryPolicy) Validate() error {
	if p.Limit < 1 {
		return fmt.Errorf("retry limit must be at least 1, got %d", p.Limit)
	}
	if p.InitialBackoff < 0 {
		return fmt.Errorf("initial_backoff must be non-negative, got %v", p.InitialBackoff)
	}
	if p.MaxBackoff != 0 && p.MaxBackoff < p.InitialBackoff {
		return fmt.Errorf("max_backoff (%v) must be >= initial_backoff (%v)", p.MaxBackoff, p.InitialBackoff)
	}
	if p.BackoffFactor != 0 && p.BackoffFactor < 1.0 {
		return fmt.Errorf("backoff_factor must be >= 1.0, got %f", p.BackoffFactor)
	}
	for _, m := range p.Methods {
		if !validMethod(m) {
			return fmt.Errorf("invalid retry method: %q", m)
		}
	}
	return nil
}

// methodEligible reports whether m may be retried under this policy.
func (p *RetryPolicy) methodEligible(m Method) bool {
	for _, eligible := range p.Methods {
		if eligible == m {
			return true
		}
	}
	return false
}

// statusEligible reports whether a response status may be retried under
// this policy.
func (p *RetryPolicy) statusEligible(code int) bool {
	for _, eligible := range p.StatusCodes {
		if eligible == code {
			return true
		}
	}
	return false
}

// Defaults applied when a ServiceConfig or Options leaves a knob unset.
const (
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResponseSize is the response body ceiling in bytes.
	DefaultMaxResponseSize int64 = 1_000_000
)

// ServiceConfig describes one external service. It is constructed once by
// the embedding application and is immutable afterward.
type ServiceConfig struct {
	// Name identifies the service (e.g., "github"). Used for credential
	// lookup, remediation hints, logs, and metrics.
	Name string `yaml:"name"`

	// BaseURL is the base endpoint address (required).
	BaseURL string `yaml:"base_url"`

	// Headers are default headers applied to every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Auth declares the authentication strategy.
	Auth AuthConfig `yaml:"auth"`

	// Timeout bounds each attempt (default: 30s).
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Retry configures retry behavior (default: DefaultRetryPolicy).
	Retry *RetryPolicy `yaml:"retry,omitempty"`
}

// UnmarshalYAML decodes a service config, accepting Go duration strings
// for the timeout field.
func (c *ServiceConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name    string            `yaml:"name"`
		BaseURL string            `yaml:"base_url"`
		Headers map[string]string `yaml:"headers"`
		Auth    AuthConfig        `yaml:"auth"`
		Timeout string            `yaml:"timeout"`
		Retry   *RetryPolicy      `yaml:"retry"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	c.Name = raw.Name
	c.BaseURL = raw.BaseURL
	c.Headers = raw.Headers
	c.Auth = raw.Auth
	c.Retry = raw.Retry

	var err error
	if c.Timeout, err = parseDuration(raw.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}

// parseDuration parses a duration string, treating "" as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Validate checks the service configuration is usable.
func (c *ServiceConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}

	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("base_url must include host")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %v", c.Timeout)
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("invalid auth configuration: %w", err)
	}

	if c.Retry != nil {
		if err := c.Retry.Validate(); err != nil {
			return fmt.Errorf("invalid retry configuration: %w", err)
		}
	}

	return nil
}

// LoadServiceConfig reads a ServiceConfig from a YAML file and validates it.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service config %q: %w", path, err)
	}

	var cfg ServiceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse service config %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config %q: %w", path, err)
	}

	return &cfg, nil
}

// providerTokenURL returns the token endpoint for known OAuth2 providers.
// Returns "" for unknown providers.
func providerTokenURL(provider string) string {
	switch provider {
	case "google":
		return "https://oauth2.googleapis.com/token"
	case "salesforce":
		return "https://login.salesforce.com/services/oauth2/token"
	case "microsoft":
		return "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	default:
		return ""
	}
}
