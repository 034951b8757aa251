package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"teamdesk/api/internal/actor"
	"teamdesk/api/internal/blob"
	"teamdesk/api/internal/config"
	"teamdesk/api/internal/realtime"
	"teamdesk/api/internal/store"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type emitted struct {
	event   string
	payload any
	room    string
}

// recordingBroker keeps every emitted event and still delivers through an
// in-process hub.
type recordingBroker struct {
	*realtime.Hub
	mu     sync.Mutex
	events []emitted
}

func (b *recordingBroker) Emit(ctx context.Context, event string, payload any, room string) error {
	b.mu.Lock()
	b.events = append(b.events, emitted{event: event, payload: payload, room: room})
	b.mu.Unlock()
	return b.Hub.Emit(ctx, event, payload, room)
}

func (b *recordingBroker) count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (b *recordingBroker) last(event string) (emitted, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].event == event {
			return b.events[i], true
		}
	}
	return emitted{}, false
}

type fixture struct {
	svc    *Service
	mem    *store.MemoryStore
	blobs  *blob.MemoryStore
	broker *recordingBroker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	blobs := blob.NewMemoryStore()
	broker := &recordingBroker{Hub: realtime.NewHub()}
	cfg := config.Config{
		DefaultMemberPassword: "12345",
		MaxUploadBytes:        1 << 20,
		DeadlineWindowDays:    7,
		DeadlineLookbackHours: 24,
		RealtimeEmitTimeout:   time.Second,
	}
	svc := New(cfg, Deps{
		Store:    mem,
		Realtime: broker,
		Blobs:    blobs,
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return testNow },
	})
	svc.accounts.WithCost(bcrypt.MinCost)
	return &fixture{svc: svc, mem: mem, blobs: blobs, broker: broker}
}

func (f *fixture) user(t *testing.T, name, role string) store.Ref {
	t.Helper()
	id := store.NewRef()
	if err := f.mem.InsertUser(context.Background(), store.User{ID: id, Name: name, Email: name + "@example.com", Role: role}); err != nil {
		t.Fatalf("InsertUser failed: %v", err)
	}
	return id
}

func (f *fixture) project(t *testing.T, name string, leader store.Ref, members ...store.Ref) store.Project {
	t.Helper()
	p := store.Project{
		ID:        store.NewRef(),
		Name:      name,
		LeaderID:  leader,
		MemberIDs: members,
		Status:    ProjectInProgress,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	if err := f.mem.InsertProject(context.Background(), p); err != nil {
		t.Fatalf("InsertProject failed: %v", err)
	}
	return p
}

func (f *fixture) task(t *testing.T, project store.Project, assignee store.Ref, progress int, mutate ...func(*store.Task)) store.Task {
	t.Helper()
	task := store.Task{
		ID:         store.NewRef(),
		ProjectID:  project.ID,
		AssigneeID: assignee,
		Title:      "task",
		Status:     "todo",
		Progress:   store.Percent(progress),
		CreatedAt:  testNow,
	}
	for _, m := range mutate {
		m(&task)
	}
	if err := f.mem.InsertTask(context.Background(), task); err != nil {
		t.Fatalf("InsertTask failed: %v", err)
	}
	return task
}

// notified counts stored notifications of kind for user.
func (f *fixture) notified(user store.Ref, kind string) int {
	n := 0
	for _, item := range f.mem.AllNotifications() {
		if item.ForUser == user && item.Type == kind {
			n++
		}
	}
	return n
}

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }

func who(id store.Ref, name string) actor.Actor {
	return actor.Actor{ID: id, Name: name}
}

func TestRecomputeProgressUsesRoundedMean(t *testing.T) {
	f := newFixture(t)
	leader := f.user(t, "lee", "leader")
	p := f.project(t, "Apollo", leader)
	f.task(t, p, leader, 20)
	f.task(t, p, leader, 40)
	f.task(t, p, leader, 60)

	rc, err := f.svc.RecomputeProgress(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("RecomputeProgress failed: %v", err)
	}
	if rc.New != 40 || !rc.Changed || rc.Tasks != 3 {
		t.Fatalf("unexpected recompute %+v", rc)
	}
	if got := f.broker.count(EventProjectProgress); got != 1 {
		t.Fatalf("expected one progress event, got %d", got)
	}

	again, err := f.svc.RecomputeProgress(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("second RecomputeProgress failed: %v", err)
	}
	if again.Changed || again.New != 40 {
		t.Fatalf("second recompute should be a no-op, got %+v", again)
	}
	if got := f.broker.count(EventProjectProgress); got != 1 {
		t.Fatalf("unchanged progress must not emit, got %d events", got)
	}
}

func TestRecomputeProgressRounding(t *testing.T) {
	tests := []struct {
		name   string
		values []int
		want   int
	}{
		{name: "no tasks", values: nil, want: 0},
		{name: "half rounds up", values: []int{0, 1}, want: 1},
		{name: "thirds", values: []int{33, 33, 34}, want: 33},
		{name: "out of range clamped", values: []int{150, -10}, want: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := make([]store.Task, 0, len(tt.values))
			for _, v := range tt.values {
				tasks = append(tasks, store.Task{Progress: store.Percent(v)})
			}
			if got := meanProgress(tasks); got != tt.want {
				t.Fatalf("meanProgress(%v) = %d, want %d", tt.values, got, tt.want)
			}
		})
	}
}

func TestRecomputeMissingProjectIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RecomputeProgress(context.Background(), store.NewRef())
	status, code, _, _ := mapError(err)
	if status != 404 || code != "NOT_FOUND" {
		t.Fatalf("expected 404 NOT_FOUND, got %d %s", status, code)
	}
}

func TestRelativeMonthLabel(t *testing.T) {
	now := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		when time.Time
		want string
	}{
		{when: now, want: "This Month"},
		{when: now.AddDate(0, 1, 0), want: "This Month"},
		{when: time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC), want: "Last Month"},
		{when: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), want: "Two Months Ago"},
		{when: time.Date(2025, time.November, 5, 0, 0, 0, 0, time.UTC), want: "Nov 2025"},
	}
	for _, tt := range tests {
		if got := RelativeMonthLabel(tt.when, now); got != tt.want {
			t.Fatalf("RelativeMonthLabel(%s) = %q, want %q", tt.when.Format("2006-01"), got, tt.want)
		}
	}
}
