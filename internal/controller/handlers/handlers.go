// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/keinar/Agnox-sub002/internal/livelog"
	"github.com/keinar/Agnox-sub002/internal/store"
	"github.com/keinar/Agnox-sub002/pkg/api"
)

// StoreFactory combines the store interfaces the controller needs.
type StoreFactory interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.ExecutionStore
	store.OrganizationStore
	store.CycleStore
	store.Queue
}

// PriorityEstimator computes the queue priority for an intake request.
type PriorityEstimator interface {
	Estimate(ctx context.Context, organizationID string) int
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store    StoreFactory
	priority PriorityEstimator
	live     *livelog.Channel
	hub      *livelog.Hub
	logger   *slog.Logger
}

// New creates a Handlers instance with the given dependencies.
func New(s StoreFactory, priority PriorityEstimator, live *livelog.Channel, hub *livelog.Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:    s,
		priority: priority,
		live:     live,
		hub:      hub,
		logger:   logger,
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}
