// Package orchestrator contains the worker-side execution pipeline: it
// dequeues one task at a time, drives the sandbox lifecycle for it and
// acknowledges the queue message exactly once.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/keinar/Agnox-sub002/internal/observability"
	"github.com/keinar/Agnox-sub002/internal/sandbox"
	"github.com/keinar/Agnox-sub002/internal/store"
)

// Config holds configuration for the orchestrator worker.
type Config struct {
	ID                  string
	PollInterval        time.Duration // minimum delay between queue polls (default: 1s)
	MaxBackoff          time.Duration // maximum backoff when queue is empty (default: 30s)
	HeartbeatInterval   time.Duration // interval between visibility extensions (default: 2m)
	VisibilityExtension time.Duration // how far each heartbeat pushes redelivery out (default: 5m)
	TaskTimeout         time.Duration // hard deadline on sandbox acquire+run (default: 30m)
}

// ExecutionStore is the slice of the store the orchestrator mutates while
// a task is in flight. Every method is scoped by both task and
// organization.
type ExecutionStore interface {
	GetExecution(ctx context.Context, taskID, organizationID string) (*store.Execution, error)
	MarkRunning(ctx context.Context, taskID, organizationID string, startTime time.Time) error
	MarkAnalyzing(ctx context.Context, taskID, organizationID string) error
	FinishExecution(ctx context.Context, taskID, organizationID string, status store.Status, endTime time.Time, output string) error
}

// LogSink receives captured output chunks as they are produced.
type LogSink interface {
	Publish(ctx context.Context, taskID, organizationID, chunk string) error
}

// StatusDispatcher is invoked after each persisted status transition. The
// execution is passed by value so the dispatcher works on a snapshot of
// the transition, decoupled from the caller's mutable record.
type StatusDispatcher interface {
	StatusChanged(exec store.Execution)
}

// Orchestrator is the worker loop. Each worker process consumes exactly
// one task at a time; horizontal throughput comes from running more
// workers, never from raising per-worker concurrency.
type Orchestrator struct {
	queue      store.Queue
	executions ExecutionStore
	runtime    sandbox.Runtime
	workspace  *Workspace
	logs       LogSink
	dispatcher StatusDispatcher
	metrics    *observability.PipelineMetrics
	config     Config
	logger     *slog.Logger
	done       chan struct{}
}

func New(
	queue store.Queue,
	executions ExecutionStore,
	runtime sandbox.Runtime,
	workspace *Workspace,
	logs LogSink,
	dispatcher StatusDispatcher,
	metrics *observability.PipelineMetrics,
	config Config,
	logger *slog.Logger,
) *Orchestrator {
	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 2 * time.Minute
	}
	if config.VisibilityExtension <= 0 {
		config.VisibilityExtension = 5 * time.Minute
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = 30 * time.Minute
	}

	return &Orchestrator{
		queue:      queue,
		executions: executions,
		runtime:    runtime,
		workspace:  workspace,
		logs:       logs,
		dispatcher: dispatcher,
		metrics:    metrics,
		config:     config,
		logger:     logger,
	}
}

// Run starts the pull loop. It blocks until the context is cancelled; an
// in-flight task is allowed to finish before Run returns (graceful drain),
// because its lifecycle runs on an independent deadline.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.done = make(chan struct{})
	defer close(o.done)

	o.logger.Info("orchestrator starting", "worker_id", o.config.ID)

	backoff := o.config.PollInterval
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopping", "worker_id", o.config.ID)
			return ctx.Err()
		case <-time.After(backoff):
		}

		delivery, swept, err := o.queue.Dequeue(ctx)
		for _, s := range swept {
			o.reportDeadLettered(ctx, s)
		}
		if err != nil {
			o.logger.Warn("dequeue failed", "error", err)
			backoff = growBackoff(backoff, o.config.MaxBackoff)
			continue
		}
		if delivery == nil {
			backoff = growBackoff(backoff, o.config.MaxBackoff)
			continue
		}

		// Found work; reset to the minimum poll delay.
		backoff = o.config.PollInterval
		o.processTask(ctx, delivery)
	}
}

// Done returns a channel closed once the loop and its in-flight task have
// fully stopped.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// reportDeadLettered routes an execution the dead-letter sweep closed as
// ERROR through the regular status fan-out. The sweep persists the
// terminal state in SQL; without this dispatch the transition would never
// reach subscribers, the webhook or a linked review cycle.
func (o *Orchestrator) reportDeadLettered(ctx context.Context, swept store.SweptTask) {
	exec, err := o.executions.GetExecution(ctx, swept.TaskID, swept.OrganizationID)
	if err != nil {
		o.logger.Warn("dead-lettered execution lookup failed",
			"task_id", swept.TaskID, "organization_id", swept.OrganizationID, "error", err)
		return
	}
	o.logger.Info("task dead-lettered after exhausting its delivery budget",
		"task_id", swept.TaskID, "organization_id", swept.OrganizationID)
	o.dispatcher.StatusChanged(*exec)
}

func growBackoff(current, max time.Duration) time.Duration {
	current *= 2
	if current > max {
		return max
	}
	return current
}

// runHeartbeat extends the queue visibility timeout periodically while a
// task is executing, so a long run is not redelivered to another worker.
func (o *Orchestrator) runHeartbeat(ctx context.Context, taskID string) {
	ticker := time.NewTicker(o.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			visibleAfter := time.Now().Add(o.config.VisibilityExtension)
			if err := o.queue.ExtendVisibility(context.Background(), taskID, visibleAfter); err != nil {
				o.logger.Warn("heartbeat failed", "task_id", taskID, "error", err)
			}
		}
	}
}
