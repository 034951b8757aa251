package progress

// TaskState is the status/progress pair of a task.
type TaskState struct {
	Status   string
	Progress int
}

// TaskChange is the status/progress part of a task write. Nil means the
// request did not carry the field.
type TaskChange struct {
	Status   *string
	Progress *int
}

// Couple merges change into prev:
//
//   - progress 100 forces "completed", even over an explicit status
//   - progress in (0,100) gives "in_progress" unless a status was sent
//   - progress 0 keeps the previous status unless a status was sent
//   - a done status sent without a progress value means 100
//   - any other status sent alone replaces the status and keeps the progress
//
// Only fields carried by the request are re-derived: a status like "80%" sent
// next to a zero progress gives 80, but the previous status never overrides
// a progress the request set explicitly.
func Couple(prev TaskState, change TaskChange) TaskState {
	next := TaskState{Status: CanonicalStatus(prev.Status), Progress: Clamp(prev.Progress)}

	switch {
	case change.Progress != nil:
		next.Progress = Clamp(*change.Progress)
		if change.Status != nil {
			next.Status = CanonicalStatus(*change.Status)
			next.Progress = Normalize(map[string]any{"status": next.Status, "progress": next.Progress})
		}
		switch p := Clamp(*change.Progress); {
		case p >= 100:
			next.Status = StatusCompleted
		case p > 0 && change.Status == nil:
			next.Status = StatusInProgress
		}
	case change.Status != nil:
		next.Status = CanonicalStatus(*change.Status)
		if IsDone(next.Status) {
			next.Progress = 100
		} else {
			next.Progress = Normalize(map[string]any{"status": next.Status, "progress": next.Progress})
		}
	default:
		next.Progress = Normalize(map[string]any{"status": next.Status, "progress": next.Progress})
	}

	if next.Status == "" {
		next.Status = StatusTodo
	}
	return next
}
