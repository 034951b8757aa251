package actor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"teamdesk/api/internal/store"
)

type usersStub map[store.Ref]store.User

func (u usersStub) GetUser(_ context.Context, id store.Ref) (store.User, error) {
	user, ok := u[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func TestResolvePrefersBody(t *testing.T) {
	bodyID := store.NewRef()
	headerID := store.NewRef()
	req := httptest.NewRequest(http.MethodPatch, "/api/tasks/x", nil)
	req.Header.Set("X-User-Id", headerID.Hex())
	req.Header.Set("X-User-Name", "Header Name")

	got := Resolve(context.Background(), req, map[string]any{"updated_by": bodyID.Hex(), "actor_name": "Body Name"}, nil)
	if got.ID != bodyID || got.Name != "Body Name" {
		t.Fatalf("expected body identity, got %+v", got)
	}
}

func TestResolveFallsBackToHeadersThenCookies(t *testing.T) {
	headerID := store.NewRef()
	req := httptest.NewRequest(http.MethodPatch, "/api/tasks/x", nil)
	req.Header.Set("X-Uid", headerID.Hex())
	req.AddCookie(&http.Cookie{Name: "user_name", Value: "Cookie Name"})

	got := Resolve(context.Background(), req, nil, nil)
	if got.ID != headerID {
		t.Fatalf("expected header id %s, got %s", headerID.Hex(), got.ID.Hex())
	}
	if got.Name != "Cookie Name" {
		t.Fatalf("expected cookie name, got %q", got.Name)
	}
}

func TestResolveLooksUpName(t *testing.T) {
	named := store.NewRef()
	emailOnly := store.NewRef()
	users := usersStub{
		named:     {ID: named, Name: "Lee"},
		emailOnly: {ID: emailOnly, Email: "ops@example.com"},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", nil)
	if got := Resolve(context.Background(), req, map[string]any{"user_id": named.Hex()}, users); got.Name != "Lee" {
		t.Fatalf("expected looked-up name, got %q", got.Name)
	}
	if got := Resolve(context.Background(), req, map[string]any{"user_id": emailOnly.Hex()}, users); got.Name != "ops@example.com" {
		t.Fatalf("expected email fallback, got %q", got.Name)
	}
}

func TestResolveUnknownActor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", nil)
	req.Header.Set("X-Actor-Id", "not-an-id")

	got := Resolve(context.Background(), req, map[string]any{}, usersStub{})
	if !got.ID.IsZero() {
		t.Fatalf("expected no id, got %s", got.ID.Hex())
	}
	if got.DisplayName() != DefaultName {
		t.Fatalf("expected default display name, got %q", got.DisplayName())
	}
	if got.Is(store.Ref{}) {
		t.Fatalf("unknown actor must not match the zero ref")
	}
}
