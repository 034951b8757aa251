package app

import (
	"net/http"
)

type deadlineScanBody struct {
	Days          *int  `json:"days" validate:"omitempty,min=1,max=365"`
	LookbackHours *int  `json:"lookback_hours" validate:"omitempty,min=0,max=720"`
	IncludeLeader *bool `json:"include_leader"`
}

type markAllReadBody struct {
	ForUser string `json:"for_user"`
}

func (s *HTTPServer) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListNotifications(r.Context(), queryRef(r, "for_user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (s *HTTPServer) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.service.UnreadCount(r.Context(), queryRef(r, "for_user"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (s *HTTPServer) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	var body markAllReadBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user := queryRef(r, "for_user")
	if user.IsZero() {
		user = s.actor(r, map[string]any{"user_id": body.ForUser}).ID
	}
	updated, err := s.service.MarkAllRead(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (s *HTTPServer) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "notification")
	if !ok {
		return
	}
	if err := s.service.MarkRead(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRef(w, r, "notification")
	if !ok {
		return
	}
	if err := s.service.DeleteNotification(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id.Hex()})
}

func (s *HTTPServer) handleDeadlineScan(w http.ResponseWriter, r *http.Request) {
	var body deadlineScanBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if !s.check(w, &body) {
		return
	}
	cfg := s.service.cfg
	scan := DeadlineScan{
		Days:          cfg.DeadlineWindowDays,
		LookbackHours: cfg.DeadlineLookbackHours,
		IncludeLeader: cfg.DeadlineIncludeLeader,
	}
	if body.Days != nil {
		scan.Days = *body.Days
	}
	if body.LookbackHours != nil {
		scan.LookbackHours = *body.LookbackHours
	}
	if body.IncludeLeader != nil {
		scan.IncludeLeader = *body.IncludeLeader
	}
	result, err := s.service.ScanDeadlines(r.Context(), scan)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
