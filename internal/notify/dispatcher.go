// Package notify writes per-user notifications and pushes them to each
// recipient's realtime room together with their new unread count.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"teamdesk/api/internal/metrics"
	"teamdesk/api/internal/rbac"
	"teamdesk/api/internal/realtime"
	"teamdesk/api/internal/store"
)

const (
	EventNew         = "notify:new"
	EventUnreadCount = "notifications:unread_count"
)

type Store interface {
	ListUsers(context.Context, store.UserFilter) ([]store.User, error)
	InsertNotification(context.Context, store.Notification) error
	CountUnread(context.Context, store.Ref) (int64, error)
}

// Message is what every recipient of one fan-out receives.
type Message struct {
	Kind  string
	Title string
	Body  string
	Data  map[string]any
}

// Outcome reports what a fan-out attempted. Delivered counts stored
// notifications; push failures are recorded in Errors but still count as
// delivered since the notification is readable from the API.
type Outcome struct {
	Kind       string
	Recipients []store.Ref
	Delivered  int
	Skipped    int
	Errors     []error
}

func (o *Outcome) merge(other Outcome) {
	o.Recipients = append(o.Recipients, other.Recipients...)
	o.Delivered += other.Delivered
	o.Skipped += other.Skipped
	o.Errors = append(o.Errors, other.Errors...)
}

type Dispatcher struct {
	store       Store
	publisher   realtime.Publisher
	log         zerolog.Logger
	now         func() time.Time
	pushTimeout time.Duration
}

func NewDispatcher(s Store, publisher realtime.Publisher, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:       s,
		publisher:   publisher,
		log:         log.With().Str("component", "notify").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
		pushTimeout: 2 * time.Second,
	}
}

// WithClock replaces the time source, for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// NotifyAdmins sends msg to every admin-class user.
func (d *Dispatcher) NotifyAdmins(ctx context.Context, msg Message) Outcome {
	admins, err := d.admins(ctx)
	if err != nil {
		return Outcome{Kind: msg.Kind, Errors: []error{err}}
	}
	return d.NotifyUsers(ctx, admins, msg)
}

// NotifyAdminsExcludingActor sends msg to every admin except the actor.
// When the actor is not an admin this is the same as NotifyAdmins.
func (d *Dispatcher) NotifyAdminsExcludingActor(ctx context.Context, actorID store.Ref, msg Message) Outcome {
	admins, err := d.admins(ctx)
	if err != nil {
		return Outcome{Kind: msg.Kind, Errors: []error{err}}
	}
	if !store.ContainsRef(admins, actorID) {
		return d.NotifyUsers(ctx, admins, msg)
	}
	recipients := make([]store.Ref, 0, len(admins))
	for _, id := range admins {
		if id != actorID {
			recipients = append(recipients, id)
		}
	}
	return d.NotifyUsers(ctx, recipients, msg)
}

func (d *Dispatcher) admins(ctx context.Context) ([]store.Ref, error) {
	users, err := d.store.ListUsers(ctx, store.UserFilter{Roles: rbac.AdminRoles()})
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	ids := make([]store.Ref, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// NotifyUsers sends msg to each id once. Zero ids and repeats are skipped.
// A failure for one recipient does not stop the others.
func (d *Dispatcher) NotifyUsers(ctx context.Context, ids []store.Ref, msg Message) Outcome {
	out := Outcome{Kind: msg.Kind}
	seen := make(map[store.Ref]struct{}, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			out.Skipped++
			continue
		}
		if _, dup := seen[id]; dup {
			out.Skipped++
			continue
		}
		seen[id] = struct{}{}
		out.merge(d.deliver(ctx, id, msg))
	}
	if len(out.Errors) > 0 {
		d.log.Warn().Str("kind", msg.Kind).Int("errors", len(out.Errors)).Int("delivered", out.Delivered).Msg("notification fan-out had failures")
	}
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, userID store.Ref, msg Message) Outcome {
	out := Outcome{Kind: msg.Kind}
	n := store.Notification{
		ID:        store.NewRef(),
		ForUser:   userID,
		Type:      msg.Kind,
		Title:     msg.Title,
		Message:   msg.Body,
		Data:      copyData(msg.Data),
		Read:      false,
		CreatedAt: d.now(),
	}
	if err := d.store.InsertNotification(ctx, n); err != nil {
		metrics.RecordNotification(msg.Kind, false)
		out.Errors = append(out.Errors, fmt.Errorf("notify %s: %w", userID.Hex(), err))
		return out
	}
	metrics.RecordNotification(msg.Kind, true)
	out.Recipients = append(out.Recipients, userID)
	out.Delivered++

	if err := d.push(ctx, EventNew, map[string]any{
		"_id":        n.ID.Hex(),
		"type":       n.Type,
		"title":      n.Title,
		"body":       n.Message,
		"data":       n.Data,
		"created_at": n.CreatedAt,
		"read":       false,
	}, realtime.UserRoom(userID)); err != nil {
		out.Errors = append(out.Errors, err)
	}
	if err := d.PushUnreadCount(ctx, userID); err != nil {
		out.Errors = append(out.Errors, err)
	}
	return out
}

// PushUnreadCount emits the user's current unread count to their room.
func (d *Dispatcher) PushUnreadCount(ctx context.Context, userID store.Ref) error {
	count, err := d.store.CountUnread(ctx, userID)
	if err != nil {
		return fmt.Errorf("count unread for %s: %w", userID.Hex(), err)
	}
	return d.push(ctx, EventUnreadCount, map[string]any{"user_id": userID.Hex(), "count": count}, realtime.UserRoom(userID))
}

func (d *Dispatcher) push(ctx context.Context, event string, payload any, room string) error {
	if d.publisher == nil {
		return nil
	}
	pushCtx, cancel := context.WithTimeout(ctx, d.pushTimeout)
	defer cancel()
	err := d.publisher.Emit(pushCtx, event, payload, room)
	metrics.RecordRealtime(event, err == nil)
	if err != nil {
		return fmt.Errorf("push %s to %s: %w", event, room, err)
	}
	return nil
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
