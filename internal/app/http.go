package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"teamdesk/api/internal/actor"
	"teamdesk/api/internal/metrics"
	"teamdesk/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	metrics    bool
	log        zerolog.Logger
	validate   *validator.Validate
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		metrics:    service.cfg.MetricsEnabled,
		log:        service.log.With().Str("component", "http").Logger(),
		validate:   validator.New(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimid.RequestID)
	r.Use(chimid.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimid.Recoverer)
	if s.metrics {
		r.Use(metrics.PrometheusMiddleware)
	}
	r.Use(s.cors)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	if s.metrics {
		r.Handle("/metrics", metrics.Handler())
	}
	r.Get("/api/rt/stream", s.handleStream)

	r.Route("/api", func(r chi.Router) {
		r.Post("/signin", s.handleSignIn)
		r.Post("/members", s.handleAddMember)
		r.Get("/members", s.handleListMembers)
		r.Get("/registered-members", s.handleRegisteredMembers)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleUsersByIDs)
			r.Get("/{id}", s.handleGetUser)
			r.Patch("/{id}", s.handleUpdateProfile)
			r.Delete("/{id}", s.handleDeleteUser)
			r.Put("/{id}/password", s.handleChangePassword)
		})

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)
			r.Get("/{id}", s.handleGetProject)
			r.Patch("/{id}", s.handleUpdateProject)
			r.Delete("/{id}", s.handleDeleteProject)
			r.Post("/{id}/recompute", s.handleRecompute)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)
			r.Get("/{id}", s.handleGetTask)
			r.Patch("/{id}", s.handleUpdateTask)
			r.Delete("/{id}", s.handleDeleteTask)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Get("/unread_count", s.handleUnreadCount)
			r.Post("/mark_all_read", s.handleMarkAllRead)
			r.Post("/{id}/read", s.handleMarkRead)
			r.Delete("/{id}", s.handleDeleteNotification)
		})
		r.Post("/deadlines/scan", s.handleDeadlineScan)

		r.Route("/announcements", func(r chi.Router) {
			r.Get("/", s.handleListAnnouncements)
			r.Post("/", s.handleCreateAnnouncement)
			r.Get("/{id}", s.handleGetAnnouncement)
			r.Put("/{id}", s.handleUpdateAnnouncement)
			r.Delete("/{id}", s.handleDeleteAnnouncement)
			r.Get("/{id}/image", s.handleAnnouncementImage)
		})

		r.Get("/files/projects", s.handleFileProjects)
		r.Get("/files/logs", s.handleActivityLogs)
		r.Get("/files/{id}", s.handleDownloadFile)
		r.Delete("/files/{id}", s.handleDeleteFile)
		r.Get("/folders", s.handleListFolders)
		r.Post("/folders", s.handleCreateFolder)
		r.Delete("/folders/{id}", s.handleDeleteFolder)
		r.Get("/folders/{id}/files", s.handleListFiles)
		r.Post("/folders/{id}/files", s.handleUploadFile)

		r.Get("/search", s.handleSearch)
	})
	return r
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimid.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("request_id", chimid.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

func (s *HTTPServer) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w.Header(), s.corsOrigin)
		if id := chimid.GetReqID(r.Context()); id != "" {
			w.Header().Set("X-Request-ID", id)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type pinger interface {
	Ping(context.Context) error
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	// The broker and search index degrade features but do not fail readiness.
	if p, ok := s.service.rt.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			checks["realtime"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks["realtime"] = map[string]any{"status": "ok"}
		}
	}
	checks["search"] = map[string]any{"status": "ok", "backend": s.service.search.Backend()}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// actor identifies the caller from the decoded body, headers or cookies.
func (s *HTTPServer) actor(r *http.Request, body map[string]any) actor.Actor {
	return actor.Resolve(r.Context(), r, body, s.service.store)
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("request_id", chimid.GetReqID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

// check runs struct validation and writes a 400 listing the failed fields.
func (s *HTTPServer) check(w http.ResponseWriter, target any) bool {
	err := s.validate.Struct(target)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return false
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", fields)
	return false
}

func pathRef(w http.ResponseWriter, r *http.Request, what string) (store.Ref, bool) {
	id := store.ParseRef(chi.URLParam(r, "id"))
	if id.IsZero() {
		writeError(w, http.StatusBadRequest, "INVALID_ID", fmt.Sprintf("Invalid %s id", what), nil)
		return id, false
	}
	return id, true
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-User-Id, X-Actor-Id, X-Actor-Name")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
