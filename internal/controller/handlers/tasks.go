package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/keinar/Agnox-sub002/internal/controller/middleware"
	"github.com/keinar/Agnox-sub002/internal/store"
	"github.com/keinar/Agnox-sub002/pkg/api"

	"github.com/google/uuid"
)

// SubmitTask handles POST /tasks.
// TaskID is the caller-supplied idempotency key: the execution record and
// the queue message are created in one transaction, and resubmitting the
// same TaskID returns the existing execution instead of running it twice.
func (h *Handlers) SubmitTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.TaskID == "" || req.Image == "" {
		h.httpError(w, "task_id and image are required", http.StatusBadRequest)
		return
	}

	trigger := store.Trigger(req.Trigger)
	switch trigger {
	case store.TriggerManual, store.TriggerCron, store.TriggerCI:
	case "":
		trigger = store.TriggerManual
	default:
		h.httpError(w, "trigger must be one of manual, cron, ci", http.StatusBadRequest)
		return
	}

	org, ok := middleware.OrganizationFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	cycleID, cycleItemID, err := parseCycleLink(req.CycleID, req.CycleItemID)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	prio := h.priority.Estimate(ctx, org.ID)

	exec := &store.Execution{
		TaskID:         req.TaskID,
		OrganizationID: org.ID,
		Image:          req.Image,
		Command:        req.Command,
		Folder:         req.Folder,
		Tests:          req.Tests,
		GroupName:      req.GroupName,
		BatchID:        req.BatchID,
		Trigger:        trigger,
		Status:         store.StatusPending,
		CycleID:        cycleID,
		CycleItemID:    cycleItemID,
		CreatedAt:      time.Now().UTC(),
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := h.store.UpsertPending(ctx, tx, exec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The task_id exists under another organization.
			h.httpError(w, "Task id is not available", http.StatusConflict)
			return
		}
		h.httpError(w, "Failed to create execution", http.StatusInternalServerError)
		return
	}

	// Only a PENDING record needs a queue message; a resubmission of a
	// task that already progressed gets the existing state back.
	if exec.Status == store.StatusPending {
		env := store.Envelope{
			TaskID:         exec.TaskID,
			OrganizationID: exec.OrganizationID,
			Image:          exec.Image,
			Command:        exec.Command,
			Folder:         exec.Folder,
			Tests:          exec.Tests,
			GroupName:      exec.GroupName,
			BatchID:        exec.BatchID,
			Trigger:        exec.Trigger,
			Priority:       prio,
		}
		if _, err := h.store.Enqueue(ctx, tx, &env); err != nil {
			h.httpError(w, "Failed to enqueue", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		h.httpError(w, "Failed to commit transaction", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusAccepted, api.SubmitTaskResponse{
		TaskID:   exec.TaskID,
		Status:   string(exec.Status),
		Priority: prio,
	})
}

// GetExecution handles GET /executions/{taskId}.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID := r.PathValue("taskId")

	org, ok := middleware.OrganizationFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	exec, err := h.store.GetExecution(ctx, taskID, org.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Execution not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to fetch execution", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, executionResponse(exec))
}

// DeleteExecution handles DELETE /executions/{taskId}. The record is
// soft-deleted; history and billing keep it.
func (h *Handlers) DeleteExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	taskID := r.PathValue("taskId")

	org, ok := middleware.OrganizationFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.store.SoftDeleteExecution(ctx, taskID, org.ID, org.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Execution not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to delete execution", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func executionResponse(exec *store.Execution) api.ExecutionResponse {
	resp := api.ExecutionResponse{
		TaskID:    exec.TaskID,
		Status:    string(exec.Status),
		Image:     exec.Image,
		Trigger:   string(exec.Trigger),
		GroupName: exec.GroupName,
		BatchID:   exec.BatchID,
		EndTime:   exec.EndTime,
		Output:    exec.Output,
	}
	if !exec.StartTime.IsZero() {
		start := exec.StartTime
		resp.StartTime = &start
	}
	return resp
}

// parseCycleLink validates the optional review cycle link. The two
// identifiers come as a pair or not at all.
func parseCycleLink(cycleID, cycleItemID string) (*uuid.UUID, *uuid.UUID, error) {
	if cycleID == "" && cycleItemID == "" {
		return nil, nil, nil
	}
	if cycleID == "" || cycleItemID == "" {
		return nil, nil, errors.New("cycle_id and cycle_item_id must be provided together")
	}

	cid, err := uuid.Parse(cycleID)
	if err != nil {
		return nil, nil, errors.New("invalid cycle_id")
	}
	iid, err := uuid.Parse(cycleItemID)
	if err != nil {
		return nil, nil, errors.New("invalid cycle_item_id")
	}
	return &cid, &iid, nil
}
