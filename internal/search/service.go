package search

import (
	"context"

	"github.com/rs/zerolog"
)

// Service tries Meilisearch first and falls back to scanning the store.
// Index writes are fire-and-forget and skipped while Meilisearch is down.
type Service struct {
	meili    *Meili
	fallback *StoreSearch
	log      zerolog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback *StoreSearch, log zerolog.Logger) *Service {
	return &Service{meili: meili, fallback: fallback, log: log.With().Str("component", "search").Logger()}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexReady() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back to store scan")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text, Backend: "none"}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Error().Err(err).Msg("store search failed")
		return Response{Results: []Result{}, Query: q.Text, Backend: "store"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "store"}
}

// Backend names the backend that would answer a query right now.
func (s *Service) Backend() string {
	switch {
	case s.indexReady():
		return "meilisearch"
	case s != nil && s.fallback != nil:
		return "store"
	default:
		return "none"
	}
}

func (s *Service) indexReady() bool {
	return s != nil && s.meili != nil && s.meili.Healthy()
}

func (s *Service) IndexProject(r ProjectRecord) {
	s.async("index project", r.ID, func() error { return s.meili.IndexProjects(r) })
}

func (s *Service) IndexTask(r TaskRecord) {
	s.async("index task", r.ID, func() error { return s.meili.IndexTasks(r) })
}

func (s *Service) IndexAnnouncement(r AnnouncementRecord) {
	s.async("index announcement", r.ID, func() error { return s.meili.IndexAnnouncements(r) })
}

func (s *Service) DeleteProject(id string) {
	s.async("delete project", id, func() error { return s.meili.delete(idxProjects, id) })
}

func (s *Service) DeleteTask(id string) {
	s.async("delete task", id, func() error { return s.meili.delete(idxTasks, id) })
}

func (s *Service) DeleteAnnouncement(id string) {
	s.async("delete announcement", id, func() error { return s.meili.delete(idxAnnouncements, id) })
}

func (s *Service) async(op, id string, fn func() error) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := fn(); err != nil {
			s.log.Warn().Err(err).Str("op", op).Str("id", id).Msg("search index write failed")
		}
	}()
}

// ReindexAll pushes every record to Meilisearch. Called at startup when the
// index is healthy.
func (s *Service) ReindexAll(projects []ProjectRecord, tasks []TaskRecord, announcements []AnnouncementRecord) {
	if !s.indexReady() {
		return
	}
	if err := s.meili.IndexProjects(projects...); err != nil {
		s.log.Warn().Err(err).Msg("reindex projects")
	}
	if err := s.meili.IndexTasks(tasks...); err != nil {
		s.log.Warn().Err(err).Msg("reindex tasks")
	}
	if err := s.meili.IndexAnnouncements(announcements...); err != nil {
		s.log.Warn().Err(err).Msg("reindex announcements")
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
