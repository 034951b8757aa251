package app

import (
	"context"
	"errors"
	"fmt"
	"math"

	"teamdesk/api/internal/actor"
	"teamdesk/api/internal/metrics"
	"teamdesk/api/internal/notify"
	"teamdesk/api/internal/progress"
	"teamdesk/api/internal/realtime"
	"teamdesk/api/internal/store"
)

const EventProjectProgress = "project:progress"

// Recompute is the outcome of one progress aggregation.
type Recompute struct {
	ProjectID store.Ref `json:"project_id"`
	Old       int       `json:"old"`
	New       int       `json:"new"`
	Changed   bool      `json:"changed"`
	Tasks     int       `json:"tasks"`
}

// RecomputeProgress sets the project's progress to the rounded mean of its
// tasks' stored progress (0 without tasks). The project is written and
// project:progress emitted only when the value changes.
func (s *Service) RecomputeProgress(ctx context.Context, projectID store.Ref) (Recompute, error) {
	var effects Effects
	rc, err := s.recompute(ctx, projectID, false, &effects)
	s.finish("recompute", effects)
	return rc, err
}

// recompute reads tasks fresh on every call. With onlyWithTasks a project
// without tasks keeps its stored progress.
func (s *Service) recompute(ctx context.Context, projectID store.Ref, onlyWithTasks bool, effects *Effects) (Recompute, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Recompute{}, notFound("Project")
		}
		return Recompute{}, fmt.Errorf("load project: %w", err)
	}
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{ProjectID: projectID})
	if err != nil {
		return Recompute{}, fmt.Errorf("load tasks: %w", err)
	}

	rc := Recompute{ProjectID: projectID, Old: int(project.Progress), New: int(project.Progress), Tasks: len(tasks)}
	if onlyWithTasks && len(tasks) == 0 {
		return rc, nil
	}
	rc.New = meanProgress(tasks)
	if rc.New == rc.Old {
		metrics.RecordRecompute(false)
		return rc, nil
	}

	value := rc.New
	if err := s.store.UpdateProject(ctx, projectID, store.ProjectPatch{Progress: &value}); err != nil {
		return rc, fmt.Errorf("store progress: %w", err)
	}
	rc.Changed = true
	metrics.RecordRecompute(true)
	s.emit(ctx, effects, EventProjectProgress, map[string]any{
		"project_id": projectID.Hex(),
		"progress":   rc.New,
	}, realtime.ProjectRoom(projectID))
	return rc, nil
}

func meanProgress(tasks []store.Task) int {
	if len(tasks) == 0 {
		return 0
	}
	sum := 0
	for _, t := range tasks {
		sum += progress.Clamp(int(t.Progress))
	}
	return int(math.Round(float64(sum) / float64(len(tasks))))
}

// progressSnapshot is the part of a project compared before and after a
// write to decide on progress and completion notifications.
type progressSnapshot struct {
	Progress int
	Status   string
}

func snapshotOf(p store.Project) progressSnapshot {
	return progressSnapshot{Progress: int(p.Progress), Status: p.Status}
}

func becameComplete(before, after progressSnapshot) bool {
	if !progress.IsDone(before.Status) && progress.IsDone(after.Status) {
		return true
	}
	return before.Progress < 100 && after.Progress >= 100
}

// announceProgress notifies about a changed project progress and about the
// project reaching completion.
func (s *Service) announceProgress(ctx context.Context, project store.Project, before progressSnapshot, who actor.Actor, effects *Effects) {
	after := snapshotOf(project)
	name := project.Name
	data := map[string]any{
		"project_id":   project.ID.Hex(),
		"project_name": name,
		"from":         before.Progress,
		"to":           after.Progress,
	}

	if after.Progress != before.Progress {
		effects.notified(s.notifier.NotifyAdmins(ctx, notify.Message{
			Kind:  "project_progress_changed",
			Title: fmt.Sprintf("Project progress updated: %s", name),
			Body:  fmt.Sprintf("%s set progress to %d%% (was %d%%).", who.DisplayName(), after.Progress, before.Progress),
			Data:  data,
		}))

		teamMsg := notify.Message{
			Kind:  "project_progress_changed",
			Title: fmt.Sprintf("Project progress updated • %s", name),
			Body:  fmt.Sprintf("Progress to %d%% (was %d%%).", after.Progress, before.Progress),
			Data:  data,
		}
		if !project.LeaderID.IsZero() && !who.Is(project.LeaderID) {
			effects.notified(s.notifier.NotifyUsers(ctx, []store.Ref{project.LeaderID}, teamMsg))
		}
		if members := membersExcept(project.MemberIDs, project.LeaderID, who.ID); len(members) > 0 {
			effects.notified(s.notifier.NotifyUsers(ctx, members, teamMsg))
		}
	}

	if becameComplete(before, after) {
		effects.notified(s.notifier.NotifyAdmins(ctx, notify.Message{
			Kind:  "project_completed",
			Title: fmt.Sprintf("Project completed: %s", name),
			Body:  fmt.Sprintf("%s marked the project complete.", who.DisplayName()),
			Data:  map[string]any{"project_id": project.ID.Hex(), "project_name": name},
		}))
	}
}

// membersExcept drops zero refs and every excluded id.
func membersExcept(members []store.Ref, exclude ...store.Ref) []store.Ref {
	out := make([]store.Ref, 0, len(members))
	for _, id := range store.UniqueRefs(members) {
		if id.IsZero() || store.ContainsRef(exclude, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
