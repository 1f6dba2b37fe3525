package port

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/mattsre/outpost/internal/secrets"
)

// SecretStore resolves credentials by service and key. The canonical
// implementation is the backend chain in internal/secrets; tests substitute
// in-memory stores.
type SecretStore interface {
	Get(ctx context.Context, service, key string) (string, error)
}

// Sentinel errors surfaced by secret stores. Re-exported so callers can
// branch on resolution failures without importing the store package.
var (
	ErrCredentialNotFound = secrets.ErrNotFound
	ErrCredentialDenied   = secrets.ErrDenied
	ErrStoreUnavailable   = secrets.ErrUnavailable
)

// Resolve constructs a Port by resolving the service credential from the
// given store. Resolution happens exactly once, here; a missing or
// inaccessible credential fails construction rather than the first request.
//
// For oauth services the stored credential is treated as the client secret:
// Resolve also fetches the client ID and exchanges both for an access token
// via the client credentials grant.
func Resolve(ctx context.Context, cfg ServiceConfig, store SecretStore, opts ...Option) (*Port, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("secret store is required")
	}

	credential, err := store.Get(ctx, cfg.Name, cfg.Auth.CredentialKey)
	if err != nil {
		return nil, resolutionError(cfg.Name, cfg.Auth.CredentialKey, err)
	}

	if cfg.Auth.Type == AuthOAuth {
		credential, err = exchangeOAuth(ctx, cfg, store, credential)
		if err != nil {
			return nil, err
		}
	}

	return newPort(cfg, credential, opts...)
}

// exchangeOAuth performs the client credentials grant and returns the
// access token to use as the request credential.
func exchangeOAuth(ctx context.Context, cfg ServiceConfig, store SecretStore, clientSecret string) (string, error) {
	clientID, err := store.Get(ctx, cfg.Name, cfg.Auth.OAuth.ClientIDKey)
	if err != nil {
		return "", resolutionError(cfg.Name, cfg.Auth.OAuth.ClientIDKey, err)
	}

	tokenURL := cfg.Auth.OAuth.TokenURL
	if tokenURL == "" {
		tokenURL = providerTokenURL(cfg.Auth.OAuth.Provider)
	}
	if tokenURL == "" {
		return "", &Error{
			Kind:    KindAuth,
			Message: fmt.Sprintf("no token URL for oauth provider %q", cfg.Auth.OAuth.Provider),
			Hint:    "set auth.oauth.token_url in the service configuration",
		}
	}

	grant := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       cfg.Auth.OAuth.Scopes,
	}

	token, err := grant.Token(ctx)
	if err != nil {
		return "", &Error{
			Kind:    KindAuth,
			Message: fmt.Sprintf("oauth token exchange failed for %s", cfg.Name),
			Hint:    authHint(cfg.Name, cfg.Auth.CredentialKey),
			Cause:   err,
		}
	}

	return token.AccessToken, nil
}

// resolutionError maps a store failure to an auth error with a remediation
// hint. The hint names the store command, not the credential value.
func resolutionError(service, key string, err error) *Error {
	var hint string
	switch {
	case errors.Is(err, ErrCredentialNotFound):
		hint = fmt.Sprintf("credential missing, store it with: outpost secrets set %s %s", service, key)
	case errors.Is(err, ErrCredentialDenied):
		hint = "access to the credential store was denied, unlock it and try again"
	case errors.Is(err, ErrStoreUnavailable):
		hint = "no credential store is available, set the credential via environment or an encrypted file"
	default:
		hint = fmt.Sprintf("verify the credential stored for %s under key %q", service, key)
	}

	return &Error{
		Kind:    KindAuth,
		Message: fmt.Sprintf("failed to resolve credential %s/%s", service, key),
		Hint:    hint,
		Cause:   err,
	}
}
