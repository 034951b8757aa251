package realtime

import (
	"context"
	"encoding/json"
	"sync"
)

// Hub is the in-process broker used when no Redis is configured. Delivery
// never blocks the emitter: a full subscriber buffer drops the message.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*hubSub]struct{}
	buffer int
}

type hubSub struct {
	ch   chan Message
	done chan struct{}
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*hubSub]struct{}), buffer: 32}
}

func (h *Hub) Emit(_ context.Context, event string, payload any, room string) error {
	msg, _, err := encode(event, payload, room)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.rooms[room] {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, rooms ...string) (<-chan Message, func(), error) {
	sub := &hubSub{ch: make(chan Message, h.buffer), done: make(chan struct{})}

	h.mu.Lock()
	for _, room := range rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*hubSub]struct{})
		}
		h.rooms[room][sub] = struct{}{}
	}
	h.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			h.mu.Lock()
			for _, room := range rooms {
				delete(h.rooms[room], sub)
				if len(h.rooms[room]) == 0 {
					delete(h.rooms, room)
				}
			}
			h.mu.Unlock()
			close(sub.ch)
			close(sub.done)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return sub.ch, cancel, nil
}

// Decode unmarshals a message payload into target.
func (m Message) Decode(target any) error {
	return json.Unmarshal(m.Payload, target)
}
