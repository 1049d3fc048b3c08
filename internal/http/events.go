package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

type eventPayload struct {
	Entity   string `json:"entity"`
	Op       string `json:"op"`
	PersonID int64  `json:"personId,omitempty"`
}

// handleEvents streams ledger changes as server-sent events. Clients use it
// to keep person lists and balances live without polling.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	changes := s.repo.Watch(16)
	defer s.repo.Unwatch(changes)

	slog.DebugContext(r.Context(), "Event stream opened", "client", r.RemoteAddr)

	for {
		select {
		case <-r.Context().Done():
			slog.DebugContext(r.Context(), "Event stream closed", "client", r.RemoteAddr)
			return
		case change, open := <-changes:
			if !open {
				return
			}
			body, err := json.Marshal(eventPayload{
				Entity:   string(change.Entity),
				Op:       string(change.Op),
				PersonID: change.PersonID,
			})
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: change\ndata: %s\n\n", body); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
