package progress

import (
	"encoding/json"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   int
	}{
		{name: "done synonym", fields: map[string]any{"status": "Completed"}, want: 100},
		{name: "finished with spaces", fields: map[string]any{"status": "  finished "}, want: 100},
		{name: "digits in status", fields: map[string]any{"status": "todo,80"}, want: 80},
		{name: "numeric wins when positive", fields: map[string]any{"status": "todo", "progress": 40}, want: 40},
		{name: "zero numeric falls back to status", fields: map[string]any{"status": "completed", "progress": 0}, want: 100},
		{name: "zero everywhere", fields: map[string]any{"status": "todo", "progress": 0}, want: 0},
		{name: "clamped numeric", fields: map[string]any{"progress": 250}, want: 100},
		{name: "negative numeric", fields: map[string]any{"progress": -5, "status": "30"}, want: 30},
		{name: "float truncates", fields: map[string]any{"progress": 66.9}, want: 66},
		{name: "digit string", fields: map[string]any{"percent": " 55 "}, want: 55},
		{name: "non digit string ignored", fields: map[string]any{"percent": "55%", "status": "10"}, want: 10},
		{name: "json number", fields: map[string]any{"percentage": json.Number("70")}, want: 70},
		{name: "later candidate used", fields: map[string]any{"complete_percent": 12}, want: 12},
		{name: "state used when status blank", fields: map[string]any{"status": "", "state": "done"}, want: 100},
		{name: "nothing known", fields: map[string]any{}, want: 0},
		{name: "unparseable status", fields: map[string]any{"status": "blocked"}, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.fields); got != tc.want {
				t.Fatalf("Normalize(%v) = %d, want %d", tc.fields, got, tc.want)
			}
		})
	}
}

func TestNormalizeStaysInRange(t *testing.T) {
	inputs := []any{-1000, -1, 0, 1, 99, 100, 101, 1e9, "999999999999999999999", "abc", nil, true}
	for _, input := range inputs {
		got := Normalize(map[string]any{"progress": input, "status": "in progress 999"})
		if got < 0 || got > 100 {
			t.Fatalf("Normalize(progress=%v) = %d, out of range", input, got)
		}
	}
}

func TestCanonicalStatus(t *testing.T) {
	tests := map[string]string{
		"Done":        StatusCompleted,
		"finished":    StatusCompleted,
		"In Progress": StatusInProgress,
		"in-progress": StatusInProgress,
		"TODO":        StatusTodo,
		"blocked":     "blocked",
		"":            "",
	}
	for input, want := range tests {
		if got := CanonicalStatus(input); got != want {
			t.Fatalf("CanonicalStatus(%q) = %q, want %q", input, got, want)
		}
	}
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestCouple(t *testing.T) {
	tests := []struct {
		name   string
		prev   TaskState
		change TaskChange
		want   TaskState
	}{
		{
			name:   "hundred forces completed",
			prev:   TaskState{Status: StatusTodo},
			change: TaskChange{Progress: intPtr(100)},
			want:   TaskState{Status: StatusCompleted, Progress: 100},
		},
		{
			name:   "hundred beats explicit status",
			prev:   TaskState{Status: StatusTodo},
			change: TaskChange{Progress: intPtr(100), Status: strPtr("in_progress")},
			want:   TaskState{Status: StatusCompleted, Progress: 100},
		},
		{
			name:   "partial progress moves to in_progress",
			prev:   TaskState{Status: StatusTodo},
			change: TaskChange{Progress: intPtr(40)},
			want:   TaskState{Status: StatusInProgress, Progress: 40},
		},
		{
			name:   "explicit status kept with partial progress",
			prev:   TaskState{Status: StatusTodo},
			change: TaskChange{Progress: intPtr(40), Status: strPtr("todo")},
			want:   TaskState{Status: StatusTodo, Progress: 40},
		},
		{
			name:   "zero keeps previous status",
			prev:   TaskState{Status: StatusInProgress, Progress: 30},
			change: TaskChange{Progress: intPtr(0)},
			want:   TaskState{Status: StatusInProgress, Progress: 0},
		},
		{
			name:   "done status alone means hundred",
			prev:   TaskState{Status: StatusInProgress, Progress: 30},
			change: TaskChange{Status: strPtr("Done")},
			want:   TaskState{Status: StatusCompleted, Progress: 100},
		},
		{
			name:   "status digits fill zero progress",
			prev:   TaskState{Status: StatusTodo},
			change: TaskChange{Status: strPtr("80%")},
			want:   TaskState{Status: "80%", Progress: 80},
		},
		{
			name:   "status alone reopens a completed task",
			prev:   TaskState{Status: StatusCompleted, Progress: 100},
			change: TaskChange{Status: strPtr("in_progress")},
			want:   TaskState{Status: StatusInProgress, Progress: 100},
		},
		{
			name:   "zero on a completed task keeps status and zero",
			prev:   TaskState{Status: StatusCompleted, Progress: 100},
			change: TaskChange{Progress: intPtr(0)},
			want:   TaskState{Status: StatusCompleted, Progress: 0},
		},
		{
			name:   "partial progress reopens a completed task",
			prev:   TaskState{Status: StatusCompleted, Progress: 100},
			change: TaskChange{Progress: intPtr(60)},
			want:   TaskState{Status: StatusInProgress, Progress: 60},
		},
		{
			name:   "status with partial progress reopens a completed task",
			prev:   TaskState{Status: StatusCompleted, Progress: 100},
			change: TaskChange{Status: strPtr("todo"), Progress: intPtr(20)},
			want:   TaskState{Status: StatusTodo, Progress: 20},
		},
		{
			name:   "status digits fill an explicit zero",
			prev:   TaskState{Status: StatusTodo},
			change: TaskChange{Status: strPtr("80%"), Progress: intPtr(0)},
			want:   TaskState{Status: "80%", Progress: 80},
		},
		{
			name:   "hundred closes a task without a done status",
			prev:   TaskState{Status: StatusInProgress, Progress: 40},
			change: TaskChange{Progress: intPtr(100)},
			want:   TaskState{Status: StatusCompleted, Progress: 100},
		},
		{
			name:   "empty change normalizes previous",
			prev:   TaskState{Status: "", Progress: 0},
			change: TaskChange{},
			want:   TaskState{Status: StatusTodo, Progress: 0},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Couple(tc.prev, tc.change)
			if got != tc.want {
				t.Fatalf("Couple(%+v) = %+v, want %+v", tc.change, got, tc.want)
			}
		})
	}
}
