package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	logpkg "github.com/keinar/Agnox-sub002/internal/logger"
	"github.com/keinar/Agnox-sub002/internal/sandbox"
	"github.com/keinar/Agnox-sub002/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// runResult is what the run phase hands to the cleanup phase.
type runResult struct {
	exitCode int
	err      error
}

// processTask drives one delivery end to end. Every path through it ends
// in an acknowledgment or in a deliberate requeue-by-silence; nothing
// escapes as a panic or an unhandled error.
func (o *Orchestrator) processTask(ctx context.Context, delivery *store.Delivery) {
	env := delivery.Envelope
	log := logpkg.ForTask(o.logger, env.TaskID, env.OrganizationID)

	tracer := otel.Tracer("agnox-worker")
	ctx, span := tracer.Start(ctx, "process_task",
		trace.WithAttributes(
			attribute.String("task.id", env.TaskID),
			attribute.String("organization.id", env.OrganizationID),
			attribute.String("task.image", env.Image),
			attribute.Int("task.attempt", delivery.Attempt),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	exec, err := o.executions.GetExecution(ctx, env.TaskID, env.OrganizationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// No record under this organization: either the envelope is
			// malformed or it points across tenants. Reject and close.
			log.Error("delivery without a matching execution record, acking")
			o.ack(env.TaskID, log)
		} else {
			log.Warn("execution lookup failed, leaving message for redelivery", "error", err)
		}
		return
	}

	if exec.Status.Terminal() {
		// Redelivered after a crash between persist and ack. The stored
		// status is authoritative; this is a no-op success.
		log.Info("task already terminal, absorbing redelivery", "status", exec.Status)
		o.ack(env.TaskID, log)
		return
	}

	startTime := time.Now().UTC()
	if err := o.executions.MarkRunning(ctx, env.TaskID, env.OrganizationID, startTime); err != nil {
		log.Warn("failed to mark running, leaving message for redelivery", "error", err)
		return
	}
	exec.Status = store.StatusRunning
	exec.StartTime = startTime
	o.dispatcher.StatusChanged(*exec)

	heartbeatCtx, cancelHeartbeat := context.WithCancel(context.Background())
	defer cancelHeartbeat()
	go o.runHeartbeat(heartbeatCtx, env.TaskID)

	collector := &outputCollector{}
	res := o.runSandbox(&env, collector, log)

	output := collector.String()
	status := o.resolveStatus(ctx, exec, &env, res, &output, log)

	span.SetAttributes(
		attribute.String("task.final_status", string(status)),
		attribute.Int("task.exit_code", res.exitCode),
	)
	if res.err != nil {
		span.RecordError(res.err)
	}

	endTime := time.Now().UTC()
	if err := o.executions.FinishExecution(ctx, env.TaskID, env.OrganizationID, status, endTime, output); err != nil {
		log.Error("failed to persist terminal status, leaving message for redelivery", "error", err)
		return
	}

	exec.Status = status
	exec.EndTime = &endTime
	exec.Output = output
	o.dispatcher.StatusChanged(*exec)

	if o.metrics != nil {
		o.metrics.TasksProcessed.Add(ctx, 1,
			metric.WithAttributes(attribute.String("status", string(status))))
	}

	// Ack strictly after the terminal state is durable.
	o.ack(env.TaskID, log)
	log.Info("task finished", "status", status, "attempt", delivery.Attempt)
}

// runSandbox executes the container phase. The sandbox is force-removed
// exactly once before this function returns, on every path including
// acquire-then-fail, timeout and panic; the hard deadline wraps both
// acquisition and the wait, since a hung container cannot be trusted to
// yield.
func (o *Orchestrator) runSandbox(env *store.Envelope, collector *outputCollector, log *slog.Logger) (res runResult) {
	defer func() {
		if r := recover(); r != nil {
			res = runResult{exitCode: -1, err: fmt.Errorf("panic during task run: %v", r)}
		}
	}()

	workdir, err := o.workspace.Prepare(env.OrganizationID, env.TaskID)
	if err != nil {
		return runResult{exitCode: -1, err: err}
	}

	// Independent of the poll context: SIGTERM drains the in-flight task
	// instead of killing it.
	runCtx, cancel := context.WithTimeout(context.Background(), o.config.TaskTimeout)
	defer cancel()

	inst, err := o.runtime.Acquire(runCtx, sandbox.Options{
		Image:   env.Image,
		Command: env.Command,
		Env: map[string]string{
			"AGNOX_TASK_ID":         env.TaskID,
			"AGNOX_ORGANIZATION_ID": env.OrganizationID,
			"AGNOX_FOLDER":          env.Folder,
			"AGNOX_TESTS":           strings.Join(env.Tests, ","),
		},
		WorkspaceDir: workdir,
	})
	if err != nil {
		return runResult{exitCode: -1, err: fmt.Errorf("failed to acquire sandbox: %w", err)}
	}

	defer func() {
		removeCtx, removeCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer removeCancel()
		if err := inst.ForceRemove(removeCtx); err != nil {
			log.Warn("sandbox removal failed", "error", err)
		}
	}()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		o.pumpLogs(runCtx, env, inst, collector, log)
	}()

	exit, waitErr := inst.Wait(runCtx)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		inst.Stop(stopCtx)
		stopCancel()
		<-pumpDone
		return runResult{exitCode: -1, err: fmt.Errorf("task timed out after %v", o.config.TaskTimeout)}
	}

	<-pumpDone

	if waitErr != nil {
		return runResult{exitCode: -1, err: waitErr}
	}
	if exit.Error != nil {
		return runResult{exitCode: exit.ExitCode, err: exit.Error}
	}
	return runResult{exitCode: exit.ExitCode}
}

// resolveStatus maps the run outcome onto the terminal vocabulary. A clean
// exit with a result artifact goes through the ANALYZING pass; analysis
// trouble falls back to exit semantics rather than failing the task.
func (o *Orchestrator) resolveStatus(ctx context.Context, exec *store.Execution, env *store.Envelope, res runResult, output *string, log *slog.Logger) store.Status {
	if res.err != nil {
		*output = appendLine(*output, "execution error: "+res.err.Error())
		return store.StatusError
	}
	if res.exitCode != 0 {
		return store.StatusFailed
	}

	workdir := o.workspace.Dir(env.OrganizationID, env.TaskID)
	if !hasReport(workdir) {
		return store.StatusPassed
	}

	if err := o.executions.MarkAnalyzing(ctx, env.TaskID, env.OrganizationID); err != nil {
		log.Warn("failed to mark analyzing", "error", err)
	} else {
		analyzing := *exec
		analyzing.Status = store.StatusAnalyzing
		o.dispatcher.StatusChanged(analyzing)
	}

	status, err := analyzeReport(workdir)
	if err != nil {
		log.Warn("report analysis failed, falling back to exit status", "error", err)
		return store.StatusPassed
	}
	return status
}

func (o *Orchestrator) ack(taskID string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.queue.Ack(ctx, taskID); err != nil {
		log.Warn("ack failed, redelivery will be absorbed as a no-op", "error", err)
	}
}

// pumpLogs forwards sandbox output to the live log channel in batches
// while accumulating it for the durable record. Shipping is fire-and-
// forget relative to the running container: a slow or unreachable
// controller costs live delivery, never container progress.
func (o *Orchestrator) pumpLogs(ctx context.Context, env *store.Envelope, inst sandbox.Instance, collector *outputCollector, log *slog.Logger) {
	const (
		batchSize     = 100         // max lines per shipped chunk
		flushInterval = time.Second // flush at least this often
	)

	rc, err := inst.Logs(ctx)
	if err != nil {
		log.Warn("failed to open log stream", "error", err)
		return
	}
	defer rc.Close()

	lineChan := make(chan string, 100)
	go func() {
		defer close(lineChan)
		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			// Strip null bytes; Postgres rejects \x00 in text.
			line := strings.ReplaceAll(scanner.Text(), "\x00", "")
			select {
			case lineChan <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	var batch []string
	flushTicker := time.NewTicker(flushInterval)
	defer flushTicker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		chunk := strings.Join(batch, "\n") + "\n"
		collector.Append(chunk)

		shipCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.logs.Publish(shipCtx, env.TaskID, env.OrganizationID, chunk); err != nil {
			log.Warn("failed to ship log chunk", "error", err)
		}
		cancel()

		if o.metrics != nil {
			o.metrics.LogChunksPublished.Add(context.Background(), 1)
		}
		batch = batch[:0]
	}

	for {
		select {
		case line, ok := <-lineChan:
			if !ok {
				flush()
				return
			}
			batch = append(batch, line)
			if len(batch) >= batchSize {
				flush()
			}
		case <-flushTicker.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}

// outputCollector accumulates the durable output across the pump
// goroutine and the cleanup phase.
type outputCollector struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (c *outputCollector) Append(chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.WriteString(chunk)
}

func (c *outputCollector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func appendLine(s, line string) string {
	if s == "" {
		return line + "\n"
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s + line + "\n"
}
