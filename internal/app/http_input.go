package app

import (
	"net/http"
	"strconv"
	"strings"

	"teamdesk/api/internal/progress"
	"teamdesk/api/internal/store"
)

// readFields decodes a JSON object body. Writes keep the raw fields so that
// absent and empty values stay distinguishable and the actor can be read
// from them.
func readFields(r *http.Request) (map[string]any, error) {
	fields := map[string]any{}
	if err := decodeBody(r, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// textField returns nil when key is absent or null.
func textField(fields map[string]any, key string) *string {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil
	}
	var v string
	switch t := raw.(type) {
	case string:
		v = t
	case float64:
		v = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		v = strconv.FormatBool(t)
	case map[string]any:
		v = store.RefFrom(t).Hex()
	default:
		return nil
	}
	return &v
}

// listField accepts a JSON array or a comma separated string.
func listField(fields map[string]any, key string) *[]string {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil
	}
	out := []string{}
	switch t := raw.(type) {
	case []any:
		for _, item := range t {
			switch v := item.(type) {
			case string:
				out = append(out, v)
			case map[string]any:
				out = append(out, store.RefFrom(v).Hex())
			}
		}
	case string:
		out = splitList(t)
	default:
		return nil
	}
	return &out
}

func splitList(value string) []string {
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// percentField reads a numeric percentage. Text that is not plain digits
// counts as absent.
func percentField(fields map[string]any) *int {
	n, ok := progress.FromNumber(fields)
	if !ok {
		return nil
	}
	return &n
}

// confirmField accepts booleans, numbers and the usual truthy words.
func confirmField(fields map[string]any) *int {
	raw, ok := fields["confirm"]
	if !ok || raw == nil {
		return nil
	}
	var on bool
	switch t := raw.(type) {
	case bool:
		on = t
	case float64:
		on = t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "on", "y":
			on = true
		case "0", "false", "no", "off", "n", "":
			on = false
		default:
			return nil
		}
	default:
		return nil
	}
	v := 0
	if on {
		v = 1
	}
	return &v
}

func projectInput(fields map[string]any) ProjectInput {
	return ProjectInput{
		Name:        textField(fields, "name"),
		Description: textField(fields, "description"),
		LeaderID:    textField(fields, "leader_id"),
		MemberIDs:   listField(fields, "member_ids"),
		StartAt:     textField(fields, "start_at"),
		EndAt:       textField(fields, "end_at"),
		Progress:    percentField(fields),
		Status:      textField(fields, "status"),
		Confirm:     confirmField(fields),
	}
}

func taskInput(fields map[string]any) TaskInput {
	return TaskInput{
		ProjectID:   textField(fields, "project_id"),
		AssigneeID:  textField(fields, "assignee_id"),
		Title:       textField(fields, "title"),
		Description: textField(fields, "description"),
		StartAt:     textField(fields, "start_at"),
		EndAt:       textField(fields, "end_at"),
		Status:      textField(fields, "status"),
		Progress:    percentField(fields),
		ProjectRole: textField(fields, "project_role"),
		CreatedBy:   textField(fields, "created_by"),
	}
}

func queryRef(r *http.Request, key string) store.Ref {
	return store.ParseRef(r.URL.Query().Get(key))
}

func queryInt(r *http.Request, key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return fallback
	}
	return n
}
