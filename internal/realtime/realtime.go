// Package realtime pushes events to rooms. A room is a project (its id hex),
// a single user ("user:<id>") or a broadcast channel such as announcements.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"teamdesk/api/internal/store"
)

const AnnouncementsRoom = "announcements"

func ProjectRoom(id store.Ref) string {
	return id.Hex()
}

func UserRoom(id store.Ref) string {
	return "user:" + id.Hex()
}

// Message is the envelope delivered to subscribers.
type Message struct {
	Event   string          `json:"event"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

type Publisher interface {
	Emit(ctx context.Context, event string, payload any, room string) error
}

type Subscriber interface {
	// Subscribe delivers messages for rooms until cancel is called or ctx ends.
	Subscribe(ctx context.Context, rooms ...string) (messages <-chan Message, cancel func(), err error)
}

type Broker interface {
	Publisher
	Subscriber
}

func encode(event string, payload any, room string) (Message, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, nil, err
	}
	msg := Message{Event: event, Room: room, Payload: raw, SentAt: time.Now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return Message{}, nil, err
	}
	return msg, data, nil
}
