package search

import (
	"context"
	"fmt"
	"strings"

	"teamdesk/api/internal/store"
)

// Source is the part of the document store the fallback searcher reads.
type Source interface {
	SearchProjects(ctx context.Context, text string, limit int) ([]store.Project, error)
	SearchTasks(ctx context.Context, text string, limit int) ([]store.Task, error)
	SearchAnnouncements(ctx context.Context, text string, limit int) ([]store.Announcement, error)
}

// StoreSearch answers queries with case-insensitive substring scans of the
// document store. It is used whenever Meilisearch is missing or unhealthy.
type StoreSearch struct {
	source Source
}

func NewStoreSearch(source Source) *StoreSearch {
	return &StoreSearch{source: source}
}

func (s *StoreSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" || s.source == nil {
		return nil, 0, nil
	}
	limit := limitOf(q) + max(q.Offset, 0)

	var results []Result
	if wants(q, ResultProject) {
		projects, err := s.source.SearchProjects(ctx, text, limit)
		if err != nil {
			return nil, 0, fmt.Errorf("search projects: %w", err)
		}
		for _, p := range projects {
			results = append(results, Result{
				Type:    ResultProject,
				ID:      p.ID.Hex(),
				Title:   p.Name,
				Snippet: snippet(p.Description),
				Status:  p.Status,
			})
		}
	}
	if wants(q, ResultTask) {
		tasks, err := s.source.SearchTasks(ctx, text, limit)
		if err != nil {
			return nil, 0, fmt.Errorf("search tasks: %w", err)
		}
		for _, t := range tasks {
			results = append(results, Result{
				Type:      ResultTask,
				ID:        t.ID.Hex(),
				Title:     t.Title,
				Snippet:   snippet(t.Description),
				ProjectID: t.ProjectID.Hex(),
				Status:    t.Status,
			})
		}
	}
	if wants(q, ResultAnnouncement) {
		items, err := s.source.SearchAnnouncements(ctx, text, limit)
		if err != nil {
			return nil, 0, fmt.Errorf("search announcements: %w", err)
		}
		for _, a := range items {
			results = append(results, Result{
				Type:    ResultAnnouncement,
				ID:      a.ID.Hex(),
				Title:   a.Title,
				Snippet: snippet(a.Message),
			})
		}
	}

	total := len(results)
	if q.Offset > 0 {
		if q.Offset >= len(results) {
			return []Result{}, total, nil
		}
		results = results[q.Offset:]
	}
	if len(results) > limitOf(q) {
		results = results[:limitOf(q)]
	}
	return results, total, nil
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= 160 {
		return text
	}
	return string(runes[:160]) + "…"
}
