package handlers

import (
	"errors"
	"net/http"

	"github.com/keinar/Agnox-sub002/internal/controller/middleware"
	"github.com/keinar/Agnox-sub002/internal/store"
	"github.com/keinar/Agnox-sub002/pkg/api"

	"github.com/google/uuid"
)

// GetCycle handles GET /cycles/{cycleId}.
// Returns the cycle's aggregate summary and its items.
func (h *Handlers) GetCycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cycleID, err := uuid.Parse(r.PathValue("cycleId"))
	if err != nil {
		h.httpError(w, "Invalid cycle id", http.StatusBadRequest)
		return
	}

	org, ok := middleware.OrganizationFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	cycle, err := h.store.GetCycle(ctx, cycleID, org.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Cycle not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to fetch cycle", http.StatusInternalServerError)
		return
	}

	items, err := h.store.ListCycleItems(ctx, cycleID, org.ID)
	if err != nil {
		h.httpError(w, "Failed to fetch cycle items", http.StatusInternalServerError)
		return
	}

	resp := api.CycleResponse{
		ID:              cycle.ID.String(),
		Name:            cycle.Name,
		Completed:       cycle.Completed,
		PassedCount:     cycle.PassedCount,
		FailedCount:     cycle.FailedCount,
		ErrorCount:      cycle.ErrorCount,
		PendingCount:    cycle.PendingCount,
		AutomationRatio: cycle.AutomationRatio,
	}
	for _, item := range items {
		it := api.CycleItemResponse{
			ID:        item.ID.String(),
			Name:      item.Name,
			Automated: item.Automated,
			Status:    string(item.Status),
		}
		if item.TaskID != nil {
			it.TaskID = *item.TaskID
		}
		resp.Items = append(resp.Items, it)
	}

	h.respondJson(w, http.StatusOK, resp)
}
