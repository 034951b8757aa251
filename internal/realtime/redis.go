package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPrefix = "rt:"

// RedisBroker fans events out through Redis pub/sub so every API instance
// can serve subscribers of any room.
type RedisBroker struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisBroker(redisURL string, log zerolog.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisBrokerWithClient(client, log), nil
}

func NewRedisBrokerWithClient(client *redis.Client, log zerolog.Logger) *RedisBroker {
	return &RedisBroker{client: client, log: log.With().Str("component", "realtime").Logger()}
}

func (b *RedisBroker) Emit(ctx context.Context, event string, payload any, room string) error {
	_, data, err := encode(event, payload, room)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := b.client.Publish(ctx, channelPrefix+room, data).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event, room, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, rooms ...string) (<-chan Message, func(), error) {
	channels := make([]string, 0, len(rooms))
	for _, room := range rooms {
		channels = append(channels, channelPrefix+room)
	}

	ps := b.client.Subscribe(ctx, channels...)
	// wait for the subscription to be confirmed so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Message, 32)
	done := make(chan struct{})
	go func() {
		defer close(out)
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					b.log.Warn().Err(err).Str("channel", raw.Channel).Msg("dropping malformed realtime message")
					continue
				}
				select {
				case out <- msg:
				default:
					b.log.Warn().Str("room", msg.Room).Str("event", msg.Event).Msg("subscriber is slow, dropping message")
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
