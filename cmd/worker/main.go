// Package main is the entry point for the Agnox worker.
// The worker pulls one task at a time from the durable queue, runs it in a
// sandbox and reports progress back to the controller.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keinar/Agnox-sub002/internal/config"
	"github.com/keinar/Agnox-sub002/internal/fanout"
	"github.com/keinar/Agnox-sub002/internal/logger"
	"github.com/keinar/Agnox-sub002/internal/observability"
	"github.com/keinar/Agnox-sub002/internal/orchestrator"
	"github.com/keinar/Agnox-sub002/internal/sandbox"
	"github.com/keinar/Agnox-sub002/internal/store/postgres"

	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: agnox.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "agnox-worker", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metrics, metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Select runtime based on configuration
	var rt sandbox.Runtime
	switch cfg.Runtime {
	case "exec":
		rt = sandbox.NewExecRuntime()
		log.Println("Using exec runtime")
	case "docker":
		fallthrough
	default:
		dockerRT, err := sandbox.NewDockerRuntime()
		if err != nil {
			log.Fatalf("Failed to create Docker runtime: %v", err)
		}
		rt = dockerRT
		log.Println("Using docker runtime")
	}

	controllerClient := orchestrator.NewControllerClient(cfg.ControllerURL, cfg.InternalSecret)

	// Status fan-out: live broadcast, webhook, cycle sync, buffer teardown.
	dispatcher := fanout.New(controllerClient, fanout.NewWebhookNotifier(), store, store, logg)

	workspace := orchestrator.NewWorkspace(cfg.ReportsRoot)

	orch := orchestrator.New(
		store, store, rt, workspace,
		controllerClient, dispatcher, metrics,
		orchestrator.Config{
			ID:                "worker-" + uuid.NewString()[:8],
			PollInterval:      cfg.WorkerPollInterval,
			MaxBackoff:        cfg.WorkerMaxBackoff,
			HeartbeatInterval: cfg.HeartbeatInterval,
			TaskTimeout:       cfg.TaskTimeout,
		},
		logg,
	)

	go func() {
		if err := orch.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Orchestrator stopped: %v", err)
		}
	}()

	// Start a dedicated metrics server on port 6162
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		log.Println("Worker metrics listening on :6162")
		if err := http.ListenAndServe(":6162", mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	<-orch.Done()

	// Let detached fan-out effects (webhooks, cycle syncs) finish.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	if err := dispatcher.Drain(drainCtx); err != nil {
		log.Printf("Fan-out drain cut short: %v", err)
	}

	log.Println("Worker exited properly")
}
