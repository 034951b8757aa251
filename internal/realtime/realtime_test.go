package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"teamdesk/api/internal/store"
)

func setupTestBroker(t *testing.T) *RedisBroker {
	s := miniredis.RunT(t)
	broker, err := NewRedisBroker("redis://"+s.Addr(), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create redis broker: %v", err)
	}
	t.Cleanup(func() { _ = broker.Close() })
	return broker
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed before a message arrived")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
	}
	return Message{}
}

func TestRooms(t *testing.T) {
	id := store.NewRef()
	if ProjectRoom(id) != id.Hex() {
		t.Fatalf("project room should be the bare id, got %q", ProjectRoom(id))
	}
	if UserRoom(id) != "user:"+id.Hex() {
		t.Fatalf("unexpected user room %q", UserRoom(id))
	}
}

func TestRedisBrokerDeliversToRoom(t *testing.T) {
	broker := setupTestBroker(t)
	ctx := context.Background()

	msgs, cancel, err := broker.Subscribe(ctx, "project-a")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	if err := broker.Emit(ctx, "project:progress", map[string]any{"project_id": "project-a", "progress": 40}, "project-a"); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	msg := receive(t, msgs)
	if msg.Event != "project:progress" || msg.Room != "project-a" {
		t.Fatalf("unexpected envelope: %+v", msg)
	}
	var payload struct {
		Progress int `json:"progress"`
	}
	if err := msg.Decode(&payload); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if payload.Progress != 40 {
		t.Fatalf("expected progress 40, got %d", payload.Progress)
	}
}

func TestRedisBrokerIgnoresOtherRooms(t *testing.T) {
	broker := setupTestBroker(t)
	ctx := context.Background()

	msgs, cancel, err := broker.Subscribe(ctx, "user:a")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	if err := broker.Emit(ctx, "notify:new", map[string]any{"n": 1}, "user:b"); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if err := broker.Emit(ctx, "notify:new", map[string]any{"n": 2}, "user:a"); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	msg := receive(t, msgs)
	if msg.Room != "user:a" {
		t.Fatalf("received message for wrong room: %+v", msg)
	}
}

func TestHubFanOutAndCancel(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	first, cancelFirst, _ := hub.Subscribe(ctx, "room")
	second, cancelSecond, _ := hub.Subscribe(ctx, "room", "other")
	defer cancelSecond()

	if err := hub.Emit(ctx, "task:created", map[string]any{"title": "T"}, "room"); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if got := receive(t, first); got.Event != "task:created" {
		t.Fatalf("first subscriber got %+v", got)
	}
	if got := receive(t, second); got.Event != "task:created" {
		t.Fatalf("second subscriber got %+v", got)
	}

	cancelFirst()
	cancelFirst()
	if _, ok := <-first; ok {
		t.Fatalf("expected cancelled channel to be closed")
	}
	if err := hub.Emit(ctx, "task:deleted", map[string]any{}, "room"); err != nil {
		t.Fatalf("Emit after cancel failed: %v", err)
	}
	if got := receive(t, second); got.Event != "task:deleted" {
		t.Fatalf("second subscriber got %+v", got)
	}
}

func TestHubClosesOnContextDone(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	msgs, _, _ := hub.Subscribe(ctx, "room")
	cancel()

	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription was not closed after context cancel")
	}
}
