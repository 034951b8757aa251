package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"teamdesk/api/internal/actor"
	"teamdesk/api/internal/notify"
	"teamdesk/api/internal/progress"
	"teamdesk/api/internal/realtime"
	"teamdesk/api/internal/search"
	"teamdesk/api/internal/store"
)

const (
	EventTaskCreated = "task:created"
	EventTaskUpdated = "task:updated"
	EventTaskDeleted = "task:deleted"
)

// TaskInput is a task write. Nil fields were absent from the request.
// ProjectID and CreatedBy are only read on creation.
type TaskInput struct {
	ProjectID   *string
	AssigneeID  *string
	Title       *string
	Description *string
	StartAt     *string
	EndAt       *string
	Status      *string
	Progress    *int
	ProjectRole *string
	CreatedBy   *string
}

type TaskResult struct {
	Task     store.Task
	Progress Recompute
	Effects  Effects
}

func (s *Service) GetTask(ctx context.Context, id store.Ref) (store.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Task{}, notFound("Task")
	}
	return task, err
}

func (s *Service) ListTasks(ctx context.Context, filter store.TaskFilter) ([]store.Task, error) {
	return s.store.ListTasks(ctx, filter)
}

func (s *Service) CreateTask(ctx context.Context, in TaskInput, who actor.Actor) (TaskResult, error) {
	projectID := store.ParseRef(deref(in.ProjectID))
	assigneeID := store.ParseRef(deref(in.AssigneeID))
	if projectID.IsZero() || assigneeID.IsZero() {
		return TaskResult{}, invalid("Invalid project_id or assignee_id")
	}
	title := strings.TrimSpace(deref(in.Title))
	if title == "" {
		return TaskResult{}, invalid("Task title is required")
	}
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return TaskResult{}, err
	}
	if !store.ContainsRef(project.MemberIDs, assigneeID) {
		return TaskResult{}, invalid("Assignee must be a member of this project")
	}

	state := progress.Couple(progress.TaskState{Status: progress.StatusTodo}, progress.TaskChange{Status: in.Status, Progress: in.Progress})
	createdBy := store.ParseRef(deref(in.CreatedBy))
	if createdBy.IsZero() {
		createdBy = who.ID
	}
	now := s.now()
	task := store.Task{
		ID:          store.NewRef(),
		ProjectID:   projectID,
		AssigneeID:  assigneeID,
		Title:       title,
		Description: strings.TrimSpace(deref(in.Description)),
		StartAt:     store.Stamp(strings.TrimSpace(deref(in.StartAt))),
		EndAt:       store.Stamp(strings.TrimSpace(deref(in.EndAt))),
		Status:      state.Status,
		Progress:    store.Percent(state.Progress),
		ProjectRole: strings.TrimSpace(deref(in.ProjectRole)),
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return TaskResult{}, fmt.Errorf("create task: %w", err)
	}

	result := TaskResult{Task: task}
	effects := &result.Effects
	s.emit(ctx, effects, EventTaskCreated, task, realtime.ProjectRoom(projectID))
	s.refreshProgress(ctx, project, who, &result)

	assigneeName := s.userName(ctx, assigneeID)
	if assigneeName == "" {
		assigneeName = "a member"
	}
	data := map[string]any{"project_id": projectID.Hex(), "task_id": task.ID.Hex()}
	effects.notified(s.notifier.NotifyAdmins(ctx, notify.Message{
		Kind:  "task_assigned",
		Title: fmt.Sprintf("Task assigned • %s", project.Name),
		Body:  fmt.Sprintf("%s assigned '%s' to %s.", who.DisplayName(), title, assigneeName),
		Data:  data,
	}))
	if !who.Is(assigneeID) {
		effects.notified(s.notifier.NotifyUsers(ctx, []store.Ref{assigneeID}, notify.Message{
			Kind:  "you_were_assigned",
			Title: fmt.Sprintf("New task in %s", project.Name),
			Body:  fmt.Sprintf("You were assigned: %s", title),
			Data:  data,
		}))
	}
	if leader := project.LeaderID; !leader.IsZero() && leader != assigneeID && !who.Is(leader) {
		effects.notified(s.notifier.NotifyUsers(ctx, []store.Ref{leader}, notify.Message{
			Kind:  "task_assigned_in_your_project",
			Title: fmt.Sprintf("Task assigned • %s", project.Name),
			Body:  fmt.Sprintf("%s was assigned: %s", assigneeName, title),
			Data:  data,
		}))
	}

	s.indexTask(task)
	s.finish("create task", *effects)
	return result, nil
}

// UpdateTask applies the status/progress coupling, persists, recomputes the
// project and notifies the team and admins about what changed.
func (s *Service) UpdateTask(ctx context.Context, id store.Ref, in TaskInput, who actor.Actor) (TaskResult, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return TaskResult{}, err
	}
	project, err := s.GetProject(ctx, task.ProjectID)
	if err != nil {
		return TaskResult{}, err
	}

	var patch store.TaskPatch
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return TaskResult{}, invalid("Title is required")
		}
		patch.Title = &title
	}
	if in.Description != nil {
		description := strings.TrimSpace(*in.Description)
		patch.Description = &description
	}
	if in.ProjectRole != nil {
		role := strings.TrimSpace(*in.ProjectRole)
		patch.ProjectRole = &role
	}
	if in.StartAt != nil {
		stamp := store.Stamp(strings.TrimSpace(*in.StartAt))
		patch.StartAt = &stamp
	}
	if in.EndAt != nil {
		stamp := store.Stamp(strings.TrimSpace(*in.EndAt))
		patch.EndAt = &stamp
	}
	if in.AssigneeID != nil {
		assignee := store.ParseRef(*in.AssigneeID)
		if assignee.IsZero() {
			return TaskResult{}, invalid("Invalid assignee_id")
		}
		if !store.ContainsRef(project.MemberIDs, assignee) {
			return TaskResult{}, invalid("Assignee must be a member of this project")
		}
		patch.AssigneeID = &assignee
	}

	prev := progress.TaskState{Status: task.Status, Progress: int(task.Progress)}
	next := prev
	touchesState := in.Status != nil || in.Progress != nil
	if touchesState {
		next = progress.Couple(prev, progress.TaskChange{Status: in.Status, Progress: in.Progress})
		patch.Status = &next.Status
		patch.Progress = &next.Progress
	}
	if patch == (store.TaskPatch{}) {
		return TaskResult{}, invalid("No changes")
	}

	if err := s.store.UpdateTask(ctx, id, patch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TaskResult{}, notFound("Task")
		}
		return TaskResult{}, fmt.Errorf("update task: %w", err)
	}
	updated, err := s.GetTask(ctx, id)
	if err != nil {
		return TaskResult{}, err
	}

	result := TaskResult{Task: updated}
	effects := &result.Effects
	s.emit(ctx, effects, EventTaskUpdated, updated, realtime.ProjectRoom(updated.ProjectID))
	s.refreshProgress(ctx, project, who, &result)

	progressChanged := next.Progress != prev.Progress
	statusChanged := next.Status != progress.CanonicalStatus(prev.Status)
	if touchesState && (progressChanged || statusChanged) {
		s.announceTaskChange(ctx, project, updated, who, effects)
	}

	data := map[string]any{
		"project_id": updated.ProjectID.Hex(),
		"task_id":    updated.ID.Hex(),
		"actor_id":   who.ID.Hex(),
		"actor_name": who.Name,
	}
	if progressChanged {
		effects.notified(s.notifier.NotifyAdminsExcludingActor(ctx, who.ID, notify.Message{
			Kind:  "task_progress_changed",
			Title: fmt.Sprintf("Task progress • %s", project.Name),
			Body:  fmt.Sprintf("%s set '%s' to %d%% (was %d%%).", who.DisplayName(), updated.Title, next.Progress, prev.Progress),
			Data:  data,
		}))
	}
	justCompleted := (prev.Progress < 100 && next.Progress >= 100) || (!progress.IsDone(prev.Status) && progress.IsDone(next.Status))
	if touchesState && justCompleted {
		completed := copyMap(data)
		completed["assignee_id"] = updated.AssigneeID.Hex()
		completed["assignee_name"] = s.userName(ctx, updated.AssigneeID)
		effects.notified(s.notifier.NotifyAdminsExcludingActor(ctx, who.ID, notify.Message{
			Kind:  "task_completed",
			Title: fmt.Sprintf("Task completed • %s", project.Name),
			Body:  fmt.Sprintf("%s marked '%s' as complete.", who.DisplayName(), updated.Title),
			Data:  completed,
		}))
	}

	s.indexTask(updated)
	s.finish("update task", *effects)
	return result, nil
}

// announceTaskChange tells the leader and the other members that a task's
// status or progress moved. The actor is never told about their own change.
func (s *Service) announceTaskChange(ctx context.Context, project store.Project, task store.Task, who actor.Actor, effects *Effects) {
	msg := notify.Message{
		Kind:  "member_task_progress_changed",
		Title: fmt.Sprintf("Task updated • %s", project.Name),
		Body:  fmt.Sprintf("%s set '%s' to %d%% (%s).", who.DisplayName(), task.Title, task.Progress, strings.ToLower(task.Status)),
		Data:  map[string]any{"project_id": task.ProjectID.Hex(), "task_id": task.ID.Hex()},
	}
	if !project.LeaderID.IsZero() && !who.Is(project.LeaderID) {
		effects.notified(s.notifier.NotifyUsers(ctx, []store.Ref{project.LeaderID}, msg))
	}
	exclude := []store.Ref{project.LeaderID, who.ID}
	if who.Is(task.AssigneeID) {
		exclude = append(exclude, task.AssigneeID)
	}
	if members := membersExcept(project.MemberIDs, exclude...); len(members) > 0 {
		effects.notified(s.notifier.NotifyUsers(ctx, members, msg))
	}
}

func (s *Service) DeleteTask(ctx context.Context, id store.Ref, who actor.Actor) (TaskResult, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return TaskResult{}, err
	}
	if err := s.store.DeleteTask(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TaskResult{}, notFound("Task")
		}
		return TaskResult{}, fmt.Errorf("delete task: %w", err)
	}

	result := TaskResult{Task: task}
	s.emit(ctx, &result.Effects, EventTaskDeleted, map[string]any{
		"_id":        id.Hex(),
		"project_id": task.ProjectID.Hex(),
	}, realtime.ProjectRoom(task.ProjectID))
	if project, err := s.store.GetProject(ctx, task.ProjectID); err == nil {
		s.refreshProgress(ctx, project, who, &result)
	} else {
		result.Effects.record("load project", err)
	}
	if s.search != nil {
		s.search.DeleteTask(id.Hex())
	}
	s.finish("delete task", result.Effects)
	return result, nil
}

// refreshProgress recomputes the task's project and announces a changed
// value against the project as it was before the task write.
func (s *Service) refreshProgress(ctx context.Context, before store.Project, who actor.Actor, result *TaskResult) {
	rc, err := s.recompute(ctx, before.ID, false, &result.Effects)
	result.Effects.record("recompute", err)
	if err != nil {
		return
	}
	result.Progress = rc
	after := before
	after.Progress = store.Percent(rc.New)
	if current, err := s.store.GetProject(ctx, before.ID); err == nil {
		after = current
	}
	s.announceProgress(ctx, after, snapshotOf(before), who, &result.Effects)
}

func (s *Service) indexTask(t store.Task) {
	if s.search == nil {
		return
	}
	s.search.IndexTask(search.TaskRecord{
		ID:          t.ID.Hex(),
		Title:       t.Title,
		Description: t.Description,
		ProjectID:   t.ProjectID.Hex(),
		AssigneeID:  t.AssigneeID.Hex(),
		Status:      t.Status,
	})
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}
