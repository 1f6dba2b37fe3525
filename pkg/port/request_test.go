package port

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type issue struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestRequest_TypedDecode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"ENG-1","title":"Fix login flow"}`))
	}))
	defer server.Close()

	p := newTestPort(t, server.URL)
	res := Request[issue](context.Background(), p, MethodGet, "/issues/ENG-1", nil)

	if !res.Ok() {
		t.Fatalf("Request() error = %v", res.Err)
	}
	if res.Data.ID != "ENG-1" || res.Data.Title != "Fix login flow" {
		t.Errorf("Data = %+v", res.Data)
	}
	if res.Meta.Status != 200 {
		t.Errorf("Meta.Status = %d, want 200", res.Meta.Status)
	}
}

func TestRequest_DecodeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer server.Close()

	p := newTestPort(t, server.URL)
	res := Request[issue](context.Background(), p, MethodGet, "/issues/ENG-1", nil)

	if res.Ok() {
		t.Fatal("Request() expected error")
	}
	if res.Err.Kind != KindClient {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, KindClient)
	}
	if res.Err.Status != 200 {
		t.Errorf("Err.Status = %d, want 200", res.Err.Status)
	}
	if res.Meta.EstimatedTokens != 0 {
		t.Errorf("Meta.EstimatedTokens = %d, want 0 on failure", res.Meta.EstimatedTokens)
	}
}

func TestRequest_ErrorPassthrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	}))
	defer server.Close()

	p := newTestPort(t, server.URL)
	res := Request[issue](context.Background(), p, MethodGet, "/issues/MISSING", nil)

	if res.Ok() {
		t.Fatal("Request() expected error")
	}
	if res.Err.Kind != KindClient {
		t.Errorf("Kind = %q, want %q", res.Err.Kind, KindClient)
	}
	if res.Meta.Status != 404 {
		t.Errorf("Meta.Status = %d, want 404", res.Meta.Status)
	}
}

func TestGet_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(204)
	}))
	defer server.Close()

	p := newTestPort(t, server.URL)
	res := Get[issue](context.Background(), p, "/issues/ENG-1", nil)

	if !res.Ok() {
		t.Fatalf("Get() error = %v", res.Err)
	}
	if res.Data.ID != "" {
		t.Errorf("Data = %+v, want zero value for empty body", res.Data)
	}
}
