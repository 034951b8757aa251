package app

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
)

const defaultMaxUpload = 25 << 20

func (s *HTTPServer) maxUpload() int64 {
	if n := s.service.cfg.MaxUploadBytes; n > 0 {
		return n
	}
	return defaultMaxUpload
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}

// formUpload returns the named file part, or nil when the form has none.
// The caller closes the returned file.
func formUpload(r *http.Request, field string) (*Upload, multipart.File, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	contentType := header.Header.Get("Content-Type")
	return &Upload{Name: header.Filename, ContentType: contentType, Size: header.Size, Body: file}, file, nil
}

// announcementForm reads an announcement write from either a multipart form
// (with an optional image part) or a JSON body.
func (s *HTTPServer) announcementForm(w http.ResponseWriter, r *http.Request) (AnnouncementInput, map[string]any, io.Closer, bool) {
	if !isMultipart(r) {
		fields, err := readFields(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return AnnouncementInput{}, nil, nil, false
		}
		return AnnouncementInput{
			Title:   textField(fields, "title"),
			Message: textField(fields, "message"),
			SendTo:  textField(fields, "sendTo"),
		}, fields, nil, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload())
	if err := r.ParseMultipartForm(s.maxUpload()); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid multipart form", nil)
		return AnnouncementInput{}, nil, nil, false
	}
	fields := map[string]any{}
	for key, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	image, file, err := formUpload(r, "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid image upload", nil)
		return AnnouncementInput{}, nil, nil, false
	}
	in := AnnouncementInput{
		Title:   textField(fields, "title"),
		Message: textField(fields, "message"),
		SendTo:  textField(fields, "sendTo"),
		Image:   image,
	}
	return in, fields, file, true
}

func (s *HTTPServer) handleListAnnouncements(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListAnnouncements(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]AnnouncementView, 0, len(items))
	for _, a := range items {
		views = append(views, ViewAnnouncement(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"announcements": views})
}

func (s *HTTPServer) handleGetAnnouncement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "announcement")
	if !ok {
		return
	}
	a, err := s.service.GetAnnouncement(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ViewAnnouncement(a))
}

func (s *HTTPServer) handleCreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	in, fields, closer, ok := s.announcementForm(w, r)
	if !ok {
		return
	}
	if closer != nil {
		defer closer.Close()
	}
	result, err := s.service.CreateAnnouncement(r.Context(), in, s.actor(r, fields).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, withWarnings(map[string]any{
		"announcement": ViewAnnouncement(result.Announcement),
	}, result.Effects))
}

func (s *HTTPServer) handleUpdateAnnouncement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "announcement")
	if !ok {
		return
	}
	in, _, closer, ok := s.announcementForm(w, r)
	if !ok {
		return
	}
	if closer != nil {
		defer closer.Close()
	}
	result, err := s.service.UpdateAnnouncement(r.Context(), id, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withWarnings(map[string]any{
		"announcement": ViewAnnouncement(result.Announcement),
	}, result.Effects))
}

func (s *HTTPServer) handleDeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "announcement")
	if !ok {
		return
	}
	result, err := s.service.DeleteAnnouncement(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withWarnings(map[string]any{"deleted": id.Hex()}, result.Effects))
}

func (s *HTTPServer) handleAnnouncementImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "announcement")
	if !ok {
		return
	}
	body, info, err := s.service.AnnouncementImage(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer body.Close()
	streamBlob(w, body, info.ContentType, info.Size, "")
}

// streamBlob copies stored bytes to the response. A non-empty filename is
// sent as an attachment.
func streamBlob(w http.ResponseWriter, body io.Reader, contentType string, size int64, filename string) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := w.Header()
	header.Set("Content-Type", contentType)
	if size > 0 {
		header.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if filename != "" {
		header.Set("Content-Disposition", "attachment; filename="+strconv.Quote(filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}
