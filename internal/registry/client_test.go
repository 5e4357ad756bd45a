package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestUpdateSchema_PutsRecord(t *testing.T) {
	var method, path string
	var body CredentialSchema
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	c := NewClient(srv.URL, 2*time.Second, nil)
	s := &CredentialSchema{ID: "s-1", Name: "person", Version: "1.0", Identifier: "sid-1", IdentifierType: IdentifierTypeDID}
	if err := c.UpdateSchema(context.Background(), s); err != nil { t.Fatal(err) }
	if method != http.MethodPut || path != "/credentials/schemas/s-1" {
		t.Fatalf("request: %s %s", method, path)
	}
	if body.Identifier != "sid-1" || body.IdentifierType != IdentifierTypeDID {
		t.Fatalf("body: %+v", body)
	}
}

func TestUpdateCredentialDefinition_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer srv.Close()
	c := NewClient(srv.URL, 2*time.Second, nil)
	err := c.UpdateCredentialDefinition(context.Background(), &CredentialDefinition{ID: "d-404"})
	if !errors.Is(err, ErrNotFound) { t.Fatalf("want ErrNotFound, got %v", err) }
}
