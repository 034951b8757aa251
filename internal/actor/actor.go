// Package actor works out who made a request. There is no authenticated
// session, so the identity comes from the request body, headers or cookies
// and is only used to word notifications and to leave the actor out of them.
package actor

import (
	"context"
	"net/http"
	"strings"

	"teamdesk/api/internal/store"
)

const DefaultName = "Someone"

var (
	bodyIDKeys     = []string{"updated_by", "actor_id", "user_id", "created_by"}
	bodyNameKeys   = []string{"updated_by_name", "actor_name", "user_name", "created_by_name"}
	headerIDKeys   = []string{"X-Actor-Id", "X-User-Id", "X-UserId", "X-Uid"}
	headerNameKeys = []string{"X-Actor-Name", "X-User-Name", "X-Username"}
)

type Actor struct {
	ID   store.Ref
	Name string
}

// DisplayName is the name to put in message text.
func (a Actor) DisplayName() string {
	if strings.TrimSpace(a.Name) == "" {
		return DefaultName
	}
	return a.Name
}

// Is reports whether the actor is the user id. An unknown actor is nobody.
func (a Actor) Is(id store.Ref) bool {
	return !a.ID.IsZero() && a.ID == id
}

type UserLookup interface {
	GetUser(context.Context, store.Ref) (store.User, error)
}

// Resolve checks the body, then headers, then cookies. Each source can fill
// in the id or name the earlier ones left empty. When only an id is known
// the user's name (or email) is looked up.
func Resolve(ctx context.Context, r *http.Request, body map[string]any, users UserLookup) Actor {
	var rawID, name string

	for _, key := range bodyIDKeys {
		if v := stringField(body, key); v != "" {
			rawID = v
			break
		}
	}
	for _, key := range bodyNameKeys {
		if v := stringField(body, key); v != "" {
			name = v
			break
		}
	}

	if r != nil {
		if rawID == "" {
			rawID = firstHeader(r, headerIDKeys)
		}
		if name == "" {
			name = firstHeader(r, headerNameKeys)
		}
		if rawID == "" {
			rawID = cookieValue(r, "user_id")
		}
		if name == "" {
			name = cookieValue(r, "user_name")
		}
	}

	out := Actor{ID: store.ParseRef(rawID), Name: name}
	if !out.ID.IsZero() && out.Name == "" && users != nil {
		if user, err := users.GetUser(ctx, out.ID); err == nil {
			out.Name = strings.TrimSpace(user.Name)
			if out.Name == "" {
				out.Name = strings.TrimSpace(user.Email)
			}
		}
	}
	return out
}

func stringField(body map[string]any, key string) string {
	if body == nil {
		return ""
	}
	switch v := body[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if oid, ok := v["$oid"].(string); ok {
			return strings.TrimSpace(oid)
		}
	}
	return ""
}

func firstHeader(r *http.Request, keys []string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(r.Header.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}
