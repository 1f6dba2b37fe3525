package port

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// mapStore is an in-memory SecretStore for tests.
type mapStore map[string]string

func (s mapStore) Get(ctx context.Context, service, key string) (string, error) {
	if v, ok := s[service+"/"+key]; ok {
		return v, nil
	}
	return "", ErrCredentialNotFound
}

// errStore always fails with a fixed error.
type errStore struct{ err error }

func (s errStore) Get(ctx context.Context, service, key string) (string, error) {
	return "", s.err
}

func TestResolve_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer stored-token" {
			t.Errorf("Authorization = %q, want stored credential", got)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	store := mapStore{"issuetracker/api-token": "stored-token"}
	p, err := Resolve(context.Background(), testConfig(server.URL), store)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if res := p.Do(context.Background(), MethodGet, "/issues", nil); !res.Ok() {
		t.Fatalf("Do() error = %v", res.Err)
	}
}

func TestResolve_CredentialNotFound(t *testing.T) {
	_, err := Resolve(context.Background(), testConfig("https://api.example.com"), mapStore{})
	if err == nil {
		t.Fatal("Resolve() expected error")
	}

	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("Resolve() error type = %T, want *Error", err)
	}
	if perr.Kind != KindAuth {
		t.Errorf("Kind = %q, want %q", perr.Kind, KindAuth)
	}
	if !strings.Contains(perr.Hint, "outpost secrets set issuetracker api-token") {
		t.Errorf("Hint = %q, want store command", perr.Hint)
	}
	if !errors.Is(err, ErrCredentialNotFound) {
		t.Error("Resolve() error should wrap ErrCredentialNotFound")
	}
}

func TestResolve_StoreDenied(t *testing.T) {
	store := errStore{err: ErrCredentialDenied}
	_, err := Resolve(context.Background(), testConfig("https://api.example.com"), store)
	if err == nil {
		t.Fatal("Resolve() expected error")
	}

	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("Resolve() error type = %T, want *Error", err)
	}
	if !strings.Contains(perr.Hint, "denied") {
		t.Errorf("Hint = %q, want denial guidance", perr.Hint)
	}
}

func TestResolve_NilStore(t *testing.T) {
	if _, err := Resolve(context.Background(), testConfig("https://api.example.com"), nil); err == nil {
		t.Error("Resolve() with nil store expected error")
	}
}

func TestResolve_OAuth(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"issued-access-token","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer issued-access-token" {
			t.Errorf("Authorization = %q, want issued access token", got)
		}
		w.Write([]byte(`{}`))
	}))
	defer apiServer.Close()

	cfg := testConfig(apiServer.URL)
	cfg.Auth = AuthConfig{
		Type:          AuthOAuth,
		CredentialKey: "client-secret",
		OAuth: &OAuthConfig{
			Provider:    "custom",
			ClientIDKey: "client-id",
			TokenURL:    tokenServer.URL + "/token",
			Scopes:      []string{"api.read"},
		},
	}

	store := mapStore{
		"issuetracker/client-secret": "the-client-secret",
		"issuetracker/client-id":     "the-client-id",
	}

	p, err := Resolve(context.Background(), cfg, store)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if res := p.Do(context.Background(), MethodGet, "/issues", nil); !res.Ok() {
		t.Fatalf("Do() error = %v", res.Err)
	}
}

func TestResolve_OAuthTokenExchangeFails(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer tokenServer.Close()

	cfg := testConfig("https://api.example.com")
	cfg.Auth = AuthConfig{
		Type:          AuthOAuth,
		CredentialKey: "client-secret",
		OAuth: &OAuthConfig{
			Provider:    "custom",
			ClientIDKey: "client-id",
			TokenURL:    tokenServer.URL + "/token",
		},
	}

	store := mapStore{
		"issuetracker/client-secret": "wrong-secret",
		"issuetracker/client-id":     "the-client-id",
	}

	_, err := Resolve(context.Background(), cfg, store)
	if err == nil {
		t.Fatal("Resolve() expected error")
	}

	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("Resolve() error type = %T, want *Error", err)
	}
	if perr.Kind != KindAuth {
		t.Errorf("Kind = %q, want %q", perr.Kind, KindAuth)
	}
}
