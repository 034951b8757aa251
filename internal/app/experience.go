package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"teamdesk/api/internal/store"
)

// RelativeMonthLabel describes when relative to now, by calendar month.
func RelativeMonthLabel(when, now time.Time) string {
	when, now = when.UTC(), now.UTC()
	months := (now.Year()-when.Year())*12 + int(now.Month()) - int(when.Month())
	switch {
	case months <= 0:
		return "This Month"
	case months == 1:
		return "Last Month"
	case months == 2:
		return "Two Months Ago"
	default:
		return when.Format("Jan 2006")
	}
}

// WriteExperience appends one ledger entry per (assignee, project role) of
// the project's tasks and returns how many entries were written. Entries
// already present for the same title and project are skipped.
func (s *Service) WriteExperience(ctx context.Context, projectID store.Ref) (int, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("load project: %w", err)
	}
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{ProjectID: projectID})
	if err != nil {
		return 0, fmt.Errorf("load tasks: %w", err)
	}

	var order []store.Ref
	roles := map[store.Ref][]string{}
	for _, t := range tasks {
		role := strings.TrimSpace(t.ProjectRole)
		if t.AssigneeID.IsZero() || role == "" {
			continue
		}
		if _, ok := roles[t.AssigneeID]; !ok {
			order = append(order, t.AssigneeID)
		}
		if !containsFold(roles[t.AssigneeID], role) {
			roles[t.AssigneeID] = append(roles[t.AssigneeID], role)
		}
	}

	label := RelativeMonthLabel(s.now(), s.now())
	written := 0
	for _, userID := range order {
		user, err := s.store.GetUser(ctx, userID)
		if err != nil {
			s.log.Debug().Str("user_id", userID.Hex()).Err(err).Msg("experience skipped")
			continue
		}
		ledger := append(store.Experience{}, user.Experience...)
		added := 0
		for _, role := range roles[userID] {
			title := role
			if userID == project.LeaderID {
				title = role + " (Leader)"
			}
			if hasExperience(ledger, title, project.Name) {
				continue
			}
			ledger = append(ledger, store.ExperienceEntry{Title: title, Project: project.Name, Time: label})
			added++
		}
		if added == 0 {
			continue
		}
		if err := s.store.UpdateUser(ctx, userID, store.UserPatch{Experience: &ledger}); err != nil {
			return written, fmt.Errorf("write experience: %w", err)
		}
		written += added
	}
	return written, nil
}

func hasExperience(ledger store.Experience, title, project string) bool {
	title, project = strings.ToLower(strings.TrimSpace(title)), strings.ToLower(strings.TrimSpace(project))
	for _, e := range ledger {
		if strings.ToLower(strings.TrimSpace(e.Title)) == title && strings.ToLower(strings.TrimSpace(e.Project)) == project {
			return true
		}
	}
	return false
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
