package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/keinar/Agnox-sub002/internal/controller/middleware"
	"github.com/keinar/Agnox-sub002/internal/store"
	"github.com/keinar/Agnox-sub002/pkg/api"
)

// GetExecutionLogs handles GET /executions/{taskId}/logs.
// This is the reconnect-recovery read: a viewer that missed live events
// catches up from the buffer while the run is in progress, or from the
// durable record once it is terminal.
func (h *Handlers) GetExecutionLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID := r.PathValue("taskId")

	org, ok := middleware.OrganizationFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	content, source, err := h.live.ReadBuffered(ctx, taskID, org.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Execution not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to read logs", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.GetLogsResponse{
		TaskID:  taskID,
		Source:  source,
		Content: content,
	})
}

// InternalAddLogs handles POST /internal/executions/{taskId}/logs.
// Called by the Worker to publish a captured log chunk into the live
// channel (reconnect buffer + subscriber fan-out).
func (h *Handlers) InternalAddLogs(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskId")

	var req api.AddLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OrganizationID == "" {
		h.httpError(w, "organization_id is required", http.StatusBadRequest)
		return
	}

	h.live.Publish(taskID, req.OrganizationID, req.Content)

	w.WriteHeader(http.StatusAccepted)
}

// InternalStatusEvent handles POST /internal/executions/{taskId}/events.
// Called by the Worker after each persisted status transition so live
// subscribers see it in real time.
func (h *Handlers) InternalStatusEvent(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskId")

	var req api.StatusEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OrganizationID == "" || req.Status == "" {
		h.httpError(w, "organization_id and status are required", http.StatusBadRequest)
		return
	}

	h.live.BroadcastStatus(taskID, req.OrganizationID, req.Status)

	w.WriteHeader(http.StatusAccepted)
}

// InternalDropBuffer handles DELETE /internal/executions/{taskId}/buffer.
// Called by the Worker after a terminal transition; from then on the
// durable record serves reads.
func (h *Handlers) InternalDropBuffer(w http.ResponseWriter, r *http.Request) {
	h.live.Drop(r.PathValue("taskId"))
	w.WriteHeader(http.StatusAccepted)
}
