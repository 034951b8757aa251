package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"teamdesk/api/internal/realtime"
	"teamdesk/api/internal/store"
)

const streamHeartbeat = 25 * time.Second

// handleStream relays realtime events as server-sent events. A client joins
// the rooms of the projects and user it names plus the announcements room.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "Streaming unsupported", nil)
		return
	}

	rooms := []string{realtime.AnnouncementsRoom}
	for _, raw := range r.URL.Query()["project"] {
		for _, id := range store.ParseRefs(splitList(raw)) {
			rooms = append(rooms, realtime.ProjectRoom(id))
		}
	}
	if user := queryRef(r, "user"); !user.IsZero() {
		rooms = append(rooms, realtime.UserRoom(user))
	}

	messages, cancel, err := s.service.Realtime().Subscribe(r.Context(), rooms...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer cancel()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": joined %s\n\n", strings.Join(rooms, ","))
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, open := <-messages:
			if !open {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, data)
			flusher.Flush()
		}
	}
}
