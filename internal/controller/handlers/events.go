package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/keinar/Agnox-sub002/internal/controller/middleware"
)

// keepAliveInterval is how often an SSE comment is written to hold idle
// connections open through proxies.
const keepAliveInterval = 15 * time.Second

// StreamEvents handles GET /events.
// It serves the organization's live channel over Server-Sent Events:
// execution-log events carry output chunks, execution-updated events carry
// status transitions. Subscribers only ever see their own organization's
// events; the hub groups by organization, not by task.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	org, ok := middleware.OrganizationFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.httpError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.hub.Subscribe(org.ID)
	defer h.hub.Unsubscribe(sub)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
