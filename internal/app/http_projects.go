package app

import (
	"net/http"

	"teamdesk/api/internal/store"
)

// withWarnings adds the names of failed side effects to a response.
func withWarnings(response map[string]any, effects Effects) map[string]any {
	failed := effects.Failed()
	if len(failed) == 0 {
		return response
	}
	names := make([]string, 0, len(failed))
	for _, e := range failed {
		names = append(names, e.Name)
	}
	response["warnings"] = names
	return response
}

func (s *HTTPServer) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.service.ListProjects(r.Context(), store.ProjectFilter{
		LeaderID: queryRef(r, "leader_id"),
		MemberID: queryRef(r, "member_id"),
		ForUser:  queryRef(r, "for_user"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *HTTPServer) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "project")
	if !ok {
		return
	}
	project, err := s.service.GetProject(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *HTTPServer) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.CreateProject(r.Context(), projectInput(fields), s.actor(r, fields))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, withWarnings(map[string]any{"project": result.Project}, result.Effects))
}

func (s *HTTPServer) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "project")
	if !ok {
		return
	}
	fields, err := readFields(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.UpdateProject(r.Context(), id, projectInput(fields), s.actor(r, fields))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withWarnings(map[string]any{
		"project":            result.Project,
		"members_added":      refHexes(result.Added),
		"members_removed":    refHexes(result.Removed),
		"tasks_deleted":      result.TasksDeleted,
		"progress":           result.Progress,
		"confirmed":          result.Confirmed,
		"experience_written": result.Experience,
	}, result.Effects))
}

func (s *HTTPServer) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "project")
	if !ok {
		return
	}
	result, err := s.service.DeleteProject(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withWarnings(map[string]any{
		"deleted":       id.Hex(),
		"tasks_deleted": result.TasksDeleted,
	}, result.Effects))
}

func (s *HTTPServer) handleRecompute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "project")
	if !ok {
		return
	}
	rc, err := s.service.RecomputeProgress(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}
