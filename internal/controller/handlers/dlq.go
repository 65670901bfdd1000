package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/keinar/Agnox-sub002/internal/controller/middleware"
	"github.com/keinar/Agnox-sub002/internal/store"
	"github.com/keinar/Agnox-sub002/pkg/api"
)

// ListDLQ handles GET /dlq.
// Returns the organization's dead-lettered tasks, newest first.
func (h *Handlers) ListDLQ(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	org, ok := middleware.OrganizationFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query()
	limit := 50
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	offset := 0
	if o := query.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	entries, err := h.store.ListDLQ(ctx, org.ID, limit, offset)
	if err != nil {
		h.httpError(w, "Failed to list dead-letter queue", http.StatusInternalServerError)
		return
	}

	resp := make([]api.DLQEntryResponse, len(entries))
	for i, entry := range entries {
		resp[i] = api.DLQEntryResponse{
			TaskID:   entry.TaskID,
			Attempts: entry.Attempts,
		}
		if entry.ErrorMessage != nil {
			resp[i].ErrorMessage = *entry.ErrorMessage
		}
		failedAt := entry.FailedAt
		resp[i].FailedAt = &failedAt
	}

	h.respondJson(w, http.StatusOK, resp)
}

// RetryDLQ handles POST /dlq/{taskId}/retry.
// Moves a dead-lettered task back onto the queue with a fresh delivery
// budget and resets the execution to PENDING.
func (h *Handlers) RetryDLQ(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID := r.PathValue("taskId")

	org, ok := middleware.OrganizationFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.store.RetryFromDLQ(ctx, taskID, org.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Dead-lettered task not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to retry task", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.RetryDLQResponse{TaskID: taskID})
}
