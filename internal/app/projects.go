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
	ProjectTodo       = "todo"
	ProjectInProgress = "in_progress"
	ProjectComplete   = "complete"

	EventMembersRemoved = "project:members-removed"
	EventProjectDeleted = "project:deleted"
)

// ProjectInput is a partial project write. Nil fields were absent from the
// request. An empty LeaderID clears the leader.
type ProjectInput struct {
	Name        *string
	Description *string
	LeaderID    *string
	MemberIDs   *[]string
	StartAt     *string
	EndAt       *string
	Progress    *int
	Status      *string
	Confirm     *int
}

type ProjectResult struct {
	Project store.Project
	Effects Effects
}

// ProjectUpdate reports a project write and everything it set off.
type ProjectUpdate struct {
	Project      store.Project
	Added        []store.Ref
	Removed      []store.Ref
	TasksDeleted int64
	Progress     Recompute
	Confirmed    bool
	Experience   int
	Effects      Effects
}

type ProjectDeletion struct {
	ProjectID    store.Ref
	TasksDeleted int64
	Effects      Effects
}

// ProjectStatus folds a requested status into the project vocabulary.
// Unknown values are rejected.
func ProjectStatus(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ProjectTodo:
		return ProjectTodo, true
	case ProjectInProgress:
		return ProjectInProgress, true
	case ProjectComplete, "completed", "done":
		return ProjectComplete, true
	default:
		return "", false
	}
}

func (s *Service) GetProject(ctx context.Context, id store.Ref) (store.Project, error) {
	project, err := s.store.GetProject(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Project{}, notFound("Project")
	}
	return project, err
}

func (s *Service) ListProjects(ctx context.Context, filter store.ProjectFilter) ([]store.Project, error) {
	return s.store.ListProjects(ctx, filter)
}

func (s *Service) CreateProject(ctx context.Context, in ProjectInput, who actor.Actor) (ProjectResult, error) {
	name := strings.TrimSpace(deref(in.Name))
	if name == "" {
		return ProjectResult{}, invalid("Project name is required")
	}

	var leader store.Ref
	if raw := strings.TrimSpace(deref(in.LeaderID)); raw != "" {
		if leader = store.ParseRef(raw); leader.IsZero() {
			return ProjectResult{}, invalid("Invalid leader_id")
		}
	}
	status := ProjectTodo
	if in.Status != nil {
		if st, ok := ProjectStatus(*in.Status); ok {
			status = st
		}
	}

	now := s.now()
	project := store.Project{
		ID:          store.NewRef(),
		Name:        name,
		Description: strings.TrimSpace(deref(in.Description)),
		LeaderID:    leader,
		MemberIDs:   []store.Ref{},
		StartAt:     store.Stamp(deref(in.StartAt)),
		EndAt:       store.Stamp(deref(in.EndAt)),
		Progress:    store.Percent(progress.Clamp(derefInt(in.Progress))),
		Status:      status,
		Confirm:     confirmFlag(derefInt(in.Confirm)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.MemberIDs != nil {
		project.MemberIDs = store.UniqueRefs(store.ParseRefs(*in.MemberIDs))
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return ProjectResult{}, fmt.Errorf("create project: %w", err)
	}

	var effects Effects
	if !leader.IsZero() {
		effects.notified(s.notifier.NotifyUsers(ctx, []store.Ref{leader}, notify.Message{
			Kind:  "you_were_made_leader",
			Title: fmt.Sprintf("You were assigned as leader • %s", name),
			Body:  "Admin made you the leader.",
			Data: map[string]any{
				"project_id":   project.ID.Hex(),
				"project_name": name,
				"actor_id":     who.ID.Hex(),
				"actor_name":   who.Name,
			},
		}))
	}
	if members := membersExcept(project.MemberIDs, leader, who.ID); len(members) > 0 {
		effects.notified(s.notifier.NotifyUsers(ctx, members, membershipMessage("added_to_project", project, who)))
	}
	s.indexProject(project)
	s.finish("create project", effects)
	return ProjectResult{Project: project, Effects: effects}, nil
}

// UpdateProject applies a partial write and then, in order: cascades
// removed members' tasks, handles confirmation, announces progress and
// completion, and announces a leader change. Notification failures are
// collected in the result.
func (s *Service) UpdateProject(ctx context.Context, id store.Ref, in ProjectInput, who actor.Actor) (ProjectUpdate, error) {
	before, err := s.GetProject(ctx, id)
	if err != nil {
		return ProjectUpdate{}, err
	}
	patch, err := projectPatch(in)
	if err != nil {
		return ProjectUpdate{}, err
	}
	if patch.Empty() {
		return ProjectUpdate{}, invalid("No changes")
	}

	result := ProjectUpdate{}
	if patch.MemberIDs != nil {
		result.Removed = refsMissing(before.MemberIDs, *patch.MemberIDs)
		result.Added = refsMissing(*patch.MemberIDs, before.MemberIDs)
	}

	if err := s.store.UpdateProject(ctx, id, patch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ProjectUpdate{}, notFound("Project")
		}
		return ProjectUpdate{}, fmt.Errorf("update project: %w", err)
	}
	effects := &result.Effects

	if len(result.Removed) > 0 {
		deleted, err := s.store.DeleteTasks(ctx, store.TaskFilter{ProjectID: id, AssigneeIn: result.Removed})
		effects.record("cascade member tasks", err)
		result.TasksDeleted = deleted
		s.emit(ctx, effects, EventMembersRemoved, map[string]any{
			"project_id":         id.Hex(),
			"removed_member_ids": refHexes(result.Removed),
			"tasks_deleted":      deleted,
		}, realtime.ProjectRoom(id))
		_, err = s.recompute(ctx, id, false, effects)
		effects.record("recompute after member removal", err)
	}

	current, err := s.GetProject(ctx, id)
	if err != nil {
		return ProjectUpdate{}, err
	}
	if len(result.Removed) > 0 {
		effects.notified(s.notifier.NotifyUsers(ctx, membersExcept(result.Removed, who.ID), membershipMessage("removed_from_project", current, who)))
	}
	if added := membersExcept(result.Added, who.ID); len(added) > 0 {
		effects.notified(s.notifier.NotifyUsers(ctx, added, membershipMessage("added_to_project", current, who)))
	}

	if before.Confirm != 1 && current.Confirm == 1 {
		result.Confirmed = true
		written, err := s.WriteExperience(ctx, id)
		effects.record("write experience", err)
		result.Experience = written
		s.announceConfirmed(ctx, current, effects)
	}

	final, err := s.recompute(ctx, id, true, effects)
	effects.record("recompute", err)
	if err == nil {
		result.Progress = final
		result.Progress.Old = int(before.Progress)
		current.Progress = store.Percent(final.New)
	}
	s.announceProgress(ctx, current, snapshotOf(before), who, effects)
	s.announceLeaderChange(ctx, before.LeaderID, current, who, effects)

	result.Project = current
	s.indexProject(current)
	s.finish("update project", *effects)
	return result, nil
}

func (s *Service) announceConfirmed(ctx context.Context, project store.Project, effects *Effects) {
	msg := notify.Message{
		Kind:  "project_confirmed",
		Title: fmt.Sprintf("Project approved • %s", project.Name),
		Body:  "Your whole project is complete and approved by company.",
		Data:  map[string]any{"project_id": project.ID.Hex(), "project_name": project.Name},
	}
	if members := membersExcept(project.MemberIDs, project.LeaderID); len(members) > 0 {
		effects.notified(s.notifier.NotifyUsers(ctx, members, msg))
	}
	if !project.LeaderID.IsZero() {
		effects.notified(s.notifier.NotifyUsers(ctx, []store.Ref{project.LeaderID}, msg))
	}
}

func (s *Service) announceLeaderChange(ctx context.Context, previous store.Ref, project store.Project, who actor.Actor, effects *Effects) {
	next := project.LeaderID
	if next == previous {
		return
	}
	data := map[string]any{"project_id": project.ID.Hex(), "project_name": project.Name}
	if !next.IsZero() {
		effects.notified(s.notifier.NotifyUsers(ctx, []store.Ref{next}, notify.Message{
			Kind:  "you_were_made_leader",
			Title: fmt.Sprintf("You were assigned as leader • %s", project.Name),
			Body:  fmt.Sprintf("%s assigned you as the project leader.", who.DisplayName()),
			Data:  data,
		}))
	}
	if !previous.IsZero() {
		effects.notified(s.notifier.NotifyUsers(ctx, []store.Ref{previous}, notify.Message{
			Kind:  "you_were_removed_as_leader",
			Title: fmt.Sprintf("Leadership changed • %s", project.Name),
			Body:  fmt.Sprintf("%s replaced you as the project leader.", who.DisplayName()),
			Data:  data,
		}))
	}
}

func (s *Service) DeleteProject(ctx context.Context, id store.Ref) (ProjectDeletion, error) {
	if _, err := s.GetProject(ctx, id); err != nil {
		return ProjectDeletion{}, err
	}
	if err := s.store.DeleteProject(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ProjectDeletion{}, notFound("Project")
		}
		return ProjectDeletion{}, fmt.Errorf("delete project: %w", err)
	}

	result := ProjectDeletion{ProjectID: id}
	deleted, err := s.store.DeleteTasks(ctx, store.TaskFilter{ProjectID: id})
	result.Effects.record("delete project tasks", err)
	result.TasksDeleted = deleted
	s.emit(ctx, &result.Effects, EventProjectDeleted, map[string]any{"project_id": id.Hex()}, realtime.ProjectRoom(id))
	if s.search != nil {
		s.search.DeleteProject(id.Hex())
	}
	s.finish("delete project", result.Effects)
	return result, nil
}

func projectPatch(in ProjectInput) (store.ProjectPatch, error) {
	var patch store.ProjectPatch
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return patch, invalid("Name cannot be empty")
		}
		patch.Name = &name
	}
	if in.Description != nil {
		description := strings.TrimSpace(*in.Description)
		patch.Description = &description
	}
	if in.StartAt != nil {
		stamp := store.Stamp(strings.TrimSpace(*in.StartAt))
		patch.StartAt = &stamp
	}
	if in.EndAt != nil {
		stamp := store.Stamp(strings.TrimSpace(*in.EndAt))
		patch.EndAt = &stamp
	}
	if in.LeaderID != nil {
		var leader store.Ref
		if raw := strings.TrimSpace(*in.LeaderID); raw != "" {
			if leader = store.ParseRef(raw); leader.IsZero() {
				return patch, invalid("Invalid leader_id")
			}
		}
		patch.LeaderID = &leader
	}
	if in.MemberIDs != nil {
		members := store.UniqueRefs(store.ParseRefs(*in.MemberIDs))
		patch.MemberIDs = &members
	}
	if in.Progress != nil {
		value := progress.Clamp(*in.Progress)
		patch.Progress = &value
	}
	if in.Status != nil {
		status, ok := ProjectStatus(*in.Status)
		if !ok {
			return patch, invalid("Invalid status")
		}
		patch.Status = &status
	}
	if in.Confirm != nil {
		confirm := confirmFlag(*in.Confirm)
		patch.Confirm = &confirm
	}
	return patch, nil
}

func membershipMessage(kind string, project store.Project, who actor.Actor) notify.Message {
	msg := notify.Message{
		Kind: kind,
		Data: map[string]any{"project_id": project.ID.Hex(), "project_name": project.Name},
	}
	if kind == "removed_from_project" {
		msg.Title = fmt.Sprintf("Removed from project • %s", project.Name)
		msg.Body = fmt.Sprintf("%s removed you from the project.", who.DisplayName())
	} else {
		msg.Title = fmt.Sprintf("Added to project • %s", project.Name)
		msg.Body = fmt.Sprintf("%s added you to the project.", who.DisplayName())
	}
	return msg
}

func (s *Service) indexProject(p store.Project) {
	if s.search == nil {
		return
	}
	s.search.IndexProject(search.ProjectRecord{
		ID:          p.ID.Hex(),
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status,
		LeaderID:    p.LeaderID.Hex(),
	})
}

// refsMissing returns the refs of from that are not in other.
func refsMissing(from, other []store.Ref) []store.Ref {
	var out []store.Ref
	for _, id := range store.UniqueRefs(from) {
		if !store.ContainsRef(other, id) {
			out = append(out, id)
		}
	}
	return out
}

func refHexes(refs []store.Ref) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Hex())
	}
	return out
}

func confirmFlag(v int) int {
	if v != 0 {
		return 1
	}
	return 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
