package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// PipelineMetrics holds the counters and gauges of the execution pipeline.
type PipelineMetrics struct {
	// TasksProcessed counts tasks that reached a terminal status, tagged
	// by status.
	TasksProcessed metric.Int64Counter

	// LogChunksPublished counts chunks forwarded to the live log channel.
	LogChunksPublished metric.Int64Counter

	// QueueDepth tracks the number of queued tasks.
	QueueDepth metric.Int64UpDownCounter
}

// InitMetrics initializes the OpenTelemetry metrics provider with a
// Prometheus exporter. It returns the pipeline instruments, the HTTP
// handler for the /metrics endpoint and a shutdown function.
func InitMetrics() (*PipelineMetrics, http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("agnox-pipeline")

	processed, err := meter.Int64Counter("agnox_tasks_processed_total")
	if err != nil {
		return nil, nil, nil, err
	}
	chunks, err := meter.Int64Counter("agnox_log_chunks_published_total")
	if err != nil {
		return nil, nil, nil, err
	}
	depth, err := meter.Int64UpDownCounter("agnox_queue_depth")
	if err != nil {
		return nil, nil, nil, err
	}

	m := &PipelineMetrics{
		TasksProcessed:     processed,
		LogChunksPublished: chunks,
		QueueDepth:         depth,
	}

	return m, promhttp.Handler(), provider.Shutdown, nil
}
