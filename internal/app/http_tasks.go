package app

import (
	"net/http"
	"strings"

	"teamdesk/api/internal/store"
)

func (s *HTTPServer) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.service.ListTasks(r.Context(), store.TaskFilter{
		ProjectID:  queryRef(r, "project_id"),
		AssigneeID: queryRef(r, "assignee_id"),
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "task")
	if !ok {
		return
	}
	task, err := s.service.GetTask(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *HTTPServer) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.CreateTask(r.Context(), taskInput(fields), s.actor(r, fields))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, withWarnings(map[string]any{
		"task":     result.Task,
		"progress": result.Progress,
	}, result.Effects))
}

func (s *HTTPServer) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "task")
	if !ok {
		return
	}
	fields, err := readFields(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	in := taskInput(fields)
	in.ProjectID, in.CreatedBy = nil, nil
	result, err := s.service.UpdateTask(r.Context(), id, in, s.actor(r, fields))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withWarnings(map[string]any{
		"task":     result.Task,
		"progress": result.Progress,
	}, result.Effects))
}

func (s *HTTPServer) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "task")
	if !ok {
		return
	}
	result, err := s.service.DeleteTask(r.Context(), id, s.actor(r, nil))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withWarnings(map[string]any{
		"deleted":  id.Hex(),
		"progress": result.Progress,
	}, result.Effects))
}
