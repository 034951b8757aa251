package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"teamdesk/api/internal/store"
)

func due(at time.Time) func(*store.Task) {
	return func(x *store.Task) { x.EndAt = store.Stamp(at.Format(time.RFC3339)) }
}

func TestParseDue(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{in: "2026-03-12T09:30:00Z", want: time.Date(2026, 3, 12, 9, 30, 0, 0, time.UTC), ok: true},
		{in: "2026-03-12T09:30:00+02:00", want: time.Date(2026, 3, 12, 7, 30, 0, 0, time.UTC), ok: true},
		{in: "2026-03-12T09:30", want: time.Date(2026, 3, 12, 9, 30, 0, 0, time.UTC), ok: true},
		{in: "2026-03-12", want: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), ok: true},
		{in: "next week"},
		{in: ""},
	}
	for _, tt := range tests {
		got, ok := parseDue(store.Stamp(tt.in))
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Fatalf("parseDue(%q) = %v %v, want %v %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestScanDeadlinesSendsOncePerDay(t *testing.T) {
	f := newFixture(t)
	tm := newTeam(t, f)
	ctx := context.Background()

	soon := f.task(t, tm.project, tm.a, 10, due(testNow.Add(48*time.Hour)))
	f.task(t, tm.project, tm.b, 10, due(testNow.Add(30*24*time.Hour)))
	f.task(t, tm.project, tm.b, 100, due(testNow.Add(time.Hour)), func(x *store.Task) { x.Status = "completed" })
	f.task(t, tm.project, tm.b, 10, due(testNow.Add(-72*time.Hour)))
	f.task(t, tm.project, tm.b, 10)

	first, err := f.svc.ScanDeadlines(ctx, DeadlineScan{Days: 7, LookbackHours: 24})
	if err != nil {
		t.Fatalf("ScanDeadlines failed: %v", err)
	}
	if first.Checked != 1 || first.Sent != 1 {
		t.Fatalf("expected one task checked and one reminder, got %+v", first)
	}
	if f.notified(tm.a, notificationDeadline) != 1 {
		t.Fatalf("assignee should get the reminder")
	}
	var reminder store.Notification
	for _, n := range f.mem.AllNotifications() {
		if n.Type == notificationDeadline {
			reminder = n
		}
	}
	if reminder.Title != "Task due soon • Apollo" || reminder.Data["task_id"] != soon.ID.Hex() {
		t.Fatalf("unexpected reminder %+v", reminder)
	}

	second, err := f.svc.ScanDeadlines(ctx, DeadlineScan{Days: 7, LookbackHours: 24})
	if err != nil {
		t.Fatalf("second ScanDeadlines failed: %v", err)
	}
	if second.Checked != 1 || second.Sent != 0 {
		t.Fatalf("second scan on the same day must not resend, got %+v", second)
	}
}

func TestScanDeadlinesIncludesLeaderAndOverdue(t *testing.T) {
	f := newFixture(t)
	tm := newTeam(t, f)

	f.task(t, tm.project, tm.a, 0, due(testNow.Add(-2*time.Hour)))
	result, err := f.svc.ScanDeadlines(context.Background(), DeadlineScan{Days: 3, LookbackHours: 24, IncludeLeader: true})
	if err != nil {
		t.Fatalf("ScanDeadlines failed: %v", err)
	}
	if result.Sent != 2 {
		t.Fatalf("assignee and leader should both be reminded, got %+v", result)
	}
	if f.notified(tm.leader, notificationDeadline) != 1 {
		t.Fatalf("leader should get the reminder")
	}
	for _, n := range f.mem.AllNotifications() {
		if n.Type == notificationDeadline && n.Title != "Task overdue • Apollo" {
			t.Fatalf("expected overdue title, got %q", n.Title)
		}
	}
}

type flakyDedupeStore struct {
	*store.MemoryStore
	failFor store.Ref
}

func (s flakyDedupeStore) NotificationExists(ctx context.Context, kind string, taskID store.Ref, since time.Time) (bool, error) {
	if taskID == s.failFor {
		return false, errors.New("read timeout")
	}
	return s.MemoryStore.NotificationExists(ctx, kind, taskID, since)
}

func TestScanDeadlinesSkipsTaskWhenDedupeCheckFails(t *testing.T) {
	f := newFixture(t)
	tm := newTeam(t, f)
	broken := f.task(t, tm.project, tm.a, 10, due(testNow.Add(24*time.Hour)))
	f.task(t, tm.project, tm.b, 10, due(testNow.Add(48*time.Hour)))
	f.svc.store = flakyDedupeStore{MemoryStore: f.mem, failFor: broken.ID}

	result, err := f.svc.ScanDeadlines(context.Background(), DeadlineScan{Days: 7, LookbackHours: 24})
	if err != nil {
		t.Fatalf("a failed dedupe check must not abort the scan: %v", err)
	}
	if result.Checked != 2 || result.Sent != 1 {
		t.Fatalf("expected two checked and one reminder, got %+v", result)
	}
	if f.notified(tm.a, notificationDeadline) != 0 || f.notified(tm.b, notificationDeadline) != 1 {
		t.Fatalf("only the task with a working check should be reminded")
	}
}
