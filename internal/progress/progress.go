// Package progress turns the loose ways a task reports completion into a
// single 0-100 percentage and keeps a task's status and progress consistent.
package progress

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

var doneStatuses = map[string]struct{}{
	"done":      {},
	"complete":  {},
	"completed": {},
	"finished":  {},
}

// DoneStatuses lists the done synonyms for use in store filters.
func DoneStatuses() []string {
	return []string{"done", "complete", "completed", "finished"}
}

// numericFields are checked in order; the first usable value wins.
var numericFields = []string{"progress", "percent", "percentage", "progress_pct", "completion", "complete_percent"}

var digitRun = regexp.MustCompile(`\d{1,3}`)

func Clamp(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

// IsDone reports whether status is one of the done synonyms.
func IsDone(status string) bool {
	_, ok := doneStatuses[strings.ToLower(strings.TrimSpace(status))]
	return ok
}

// FromStatus reads a percentage out of free-form status text.
func FromStatus(status string) int {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return 0
	}
	if _, ok := doneStatuses[s]; ok {
		return 100
	}
	match := digitRun.FindString(s)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return Clamp(n)
}

// FromNumber returns the first usable numeric percentage in fields.
func FromNumber(fields map[string]any) (int, bool) {
	for _, key := range numericFields {
		if n, ok := asPercent(fields[key]); ok {
			return n, true
		}
	}
	return 0, false
}

func asPercent(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return Clamp(v), true
	case int32:
		return Clamp(int(v)), true
	case int64:
		return Clamp(int(v)), true
	case float32:
		return clampFloat(float64(v))
	case float64:
		return clampFloat(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return Clamp(int(n)), true
		}
		if f, err := v.Float64(); err == nil {
			return clampFloat(f)
		}
	case string:
		s := strings.TrimSpace(v)
		if s == "" || strings.TrimLeft(s, "0123456789") != "" {
			return 0, false
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			// too many digits for an int is still "more than 100"
			return 100, true
		}
		return Clamp(n), true
	}
	return 0, false
}

func clampFloat(f float64) (int, bool) {
	if math.IsNaN(f) {
		return 0, false
	}
	if f >= 100 {
		return 100, true
	}
	if f <= 0 {
		return 0, true
	}
	return int(f), true
}

// Normalize derives a task's completion percentage. A positive numeric field
// wins; otherwise the percentage implied by the status (or state) text is
// used. It never fails and always returns a value in [0, 100].
func Normalize(fields map[string]any) int {
	status, _ := fields["status"].(string)
	if strings.TrimSpace(status) == "" {
		status, _ = fields["state"].(string)
	}
	fromStatus := FromStatus(status)

	n, ok := FromNumber(fields)
	if !ok {
		return fromStatus
	}
	if n > 0 {
		return n
	}
	return fromStatus
}

// CanonicalStatus lower-cases a status and folds the done synonyms and
// spelling variants into the task vocabulary.
func CanonicalStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch s {
	case "":
		return ""
	case "todo", "to_do":
		return StatusTodo
	case "in_progress", "inprogress", "doing":
		return StatusInProgress
	}
	if IsDone(s) {
		return StatusCompleted
	}
	return s
}
