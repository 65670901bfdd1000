// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/keinar/Agnox-sub002/internal/controller/handlers"
	"github.com/keinar/Agnox-sub002/internal/controller/middleware"
)

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new controller server. metricsHandler serves the
// Prometheus scrape endpoint and may be nil.
func New(addr string, h *handlers.Handlers, store handlers.StoreFactory, internalSecret string, metricsHandler http.Handler, logger *slog.Logger) *Server {
	authMW := middleware.AuthMiddleware(store)
	rateMW := middleware.RateLimitMiddleware()
	internalMW := middleware.RequireInternalAuth(internalSecret)

	authed := func(hf http.HandlerFunc) http.Handler {
		return authMW(rateMW(hf))
	}

	mux := http.NewServeMux()

	// Public authenticated apis
	mux.Handle("POST /tasks", authed(h.SubmitTask))
	mux.Handle("GET /executions/{taskId}", authed(h.GetExecution))
	mux.Handle("GET /executions/{taskId}/logs", authed(h.GetExecutionLogs))
	mux.Handle("DELETE /executions/{taskId}", authed(h.DeleteExecution))
	mux.Handle("GET /events", authed(h.StreamEvents))
	mux.Handle("GET /cycles/{cycleId}", authed(h.GetCycle))
	mux.Handle("GET /dlq", authed(h.ListDLQ))
	mux.Handle("POST /dlq/{taskId}/retry", authed(h.RetryDLQ))

	// Internal endpoints, called by the Worker.
	// These should run on a separate port or strict network rules.
	mux.Handle("POST /internal/executions/{taskId}/logs", internalMW(http.HandlerFunc(h.InternalAddLogs)))
	mux.Handle("POST /internal/executions/{taskId}/events", internalMW(http.HandlerFunc(h.InternalStatusEvent)))
	mux.Handle("DELETE /internal/executions/{taskId}/buffer", internalMW(http.HandlerFunc(h.InternalDropBuffer)))

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: mux,
			// No WriteTimeout: /events holds its connection open for the
			// lifetime of the subscription.
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		s.logger.Info("controller listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
