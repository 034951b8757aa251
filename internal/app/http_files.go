package app

import (
	"net/http"

	"teamdesk/api/internal/store"
)

type folderBody struct {
	Name      string `json:"name" validate:"required,max=200"`
	ProjectID string `json:"project_id" validate:"required,len=24,hexadecimal"`
}

// caller is the user a file-sharing request acts for.
func (s *HTTPServer) caller(r *http.Request) store.Ref {
	return s.actor(r, nil).ID
}

func (s *HTTPServer) handleFileProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.service.AccessibleProjects(r.Context(), s.caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		items = append(items, map[string]any{"_id": p.ID.Hex(), "name": p.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": items})
}

func (s *HTTPServer) handleListFolders(w http.ResponseWriter, r *http.Request) {
	projectID := queryRef(r, "project_id")
	if projectID.IsZero() {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid project id", nil)
		return
	}
	folders, err := s.service.ListFolders(r.Context(), s.caller(r), projectID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

func (s *HTTPServer) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var body folderBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if !s.check(w, &body) {
		return
	}
	result, err := s.service.CreateFolder(r.Context(), s.caller(r), store.ParseRef(body.ProjectID), body.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, withWarnings(map[string]any{"folder": result.Folder}, result.Effects))
}

func (s *HTTPServer) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "folder")
	if !ok {
		return
	}
	result, err := s.service.DeleteFolder(r.Context(), s.caller(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withWarnings(map[string]any{
		"deleted":       id.Hex(),
		"files_deleted": result.FilesDeleted,
	}, result.Effects))
}

func (s *HTTPServer) handleListFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "folder")
	if !ok {
		return
	}
	files, err := s.service.ListFiles(r.Context(), s.caller(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *HTTPServer) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "folder")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload()+1<<20)
	if err := r.ParseMultipartForm(s.maxUpload()); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid multipart form", nil)
		return
	}
	up, file, err := formUpload(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid file upload", nil)
		return
	}
	if up == nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "No file provided", nil)
		return
	}
	defer file.Close()

	result, err := s.service.UploadFile(r.Context(), s.caller(r), id, *up)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, withWarnings(map[string]any{"file": result.File}, result.Effects))
}

func (s *HTTPServer) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "file")
	if !ok {
		return
	}
	body, file, err := s.service.OpenFile(r.Context(), s.caller(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer body.Close()
	streamBlob(w, body, file.ContentType, file.Size, file.Name)
}

func (s *HTTPServer) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "file")
	if !ok {
		return
	}
	result, err := s.service.DeleteFile(r.Context(), s.caller(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withWarnings(map[string]any{"deleted": id.Hex()}, result.Effects))
}

func (s *HTTPServer) handleActivityLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.service.ActivityLogs(r.Context(), s.caller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
