// Package main is the entry point for the Agnox controller.
// The controller owns intake, the live log channel and every tenant-facing
// read; the worker talks to it only through the /internal endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keinar/Agnox-sub002/internal/config"
	"github.com/keinar/Agnox-sub002/internal/controller"
	"github.com/keinar/Agnox-sub002/internal/controller/handlers"
	"github.com/keinar/Agnox-sub002/internal/livelog"
	"github.com/keinar/Agnox-sub002/internal/logger"
	"github.com/keinar/Agnox-sub002/internal/observability"
	"github.com/keinar/Agnox-sub002/internal/priority"
	"github.com/keinar/Agnox-sub002/internal/store/postgres"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: agnox.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.New()

	ctx := context.Background()
	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "agnox-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	_, metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Use an Observable Gauge (Async) that queries the DB only when scraped.
	meter := otel.Meter("agnox-controller")
	_, err = meter.Int64ObservableGauge("agnox_queue_depth_current",
		metric.WithDescription("Current number of tasks in the queue"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := store.Depth(ctx)
			if err != nil {
				log.Printf("Failed to count queue depth: %v", err)
				return nil // Don't crash metrics scrape on DB error
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register queue depth metric: %v", err)
	}

	// Live log channel: reconnect buffer + subscriber hub.
	buffer := livelog.NewBuffer(cfg.LogBufferTTL)
	hub := livelog.NewHub(logg)
	channel := livelog.NewChannel(buffer, hub, store, logg)

	estimator := priority.New(store, logg)

	h := handlers.New(store, estimator, channel, hub, logg)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, h, store, cfg.InternalSecret, metricsHandler, logg)

	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down controller...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited properly")
}
