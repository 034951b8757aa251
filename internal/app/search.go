package app

import (
	"context"
	"fmt"

	"teamdesk/api/internal/search"
	"teamdesk/api/internal/store"
)

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}

// Reindex pushes every project, task and announcement to the search index.
// It does nothing while the index is unavailable.
func (s *Service) Reindex(ctx context.Context) error {
	projects, err := s.store.ListProjects(ctx, store.ProjectFilter{})
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{})
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	announcements, err := s.store.ListAnnouncements(ctx, 0)
	if err != nil {
		return fmt.Errorf("load announcements: %w", err)
	}

	projectRecords := make([]search.ProjectRecord, 0, len(projects))
	for _, p := range projects {
		projectRecords = append(projectRecords, search.ProjectRecord{
			ID: p.ID.Hex(), Name: p.Name, Description: p.Description, Status: p.Status, LeaderID: p.LeaderID.Hex(),
		})
	}
	taskRecords := make([]search.TaskRecord, 0, len(tasks))
	for _, t := range tasks {
		taskRecords = append(taskRecords, search.TaskRecord{
			ID: t.ID.Hex(), Title: t.Title, Description: t.Description, ProjectID: t.ProjectID.Hex(), AssigneeID: t.AssigneeID.Hex(), Status: t.Status,
		})
	}
	announcementRecords := make([]search.AnnouncementRecord, 0, len(announcements))
	for _, a := range announcements {
		announcementRecords = append(announcementRecords, search.AnnouncementRecord{
			ID: a.ID.Hex(), Title: a.Title, Message: a.Message, SendTo: a.SendTo,
		})
	}
	s.search.ReindexAll(projectRecords, taskRecords, announcementRecords)
	return nil
}
