package livelog

import (
	"context"
	"log/slog"

	"github.com/keinar/Agnox-sub002/internal/store"
	"github.com/keinar/Agnox-sub002/pkg/api"
)

// Event types emitted on the live channel.
const (
	EventExecutionLog     = "execution-log"
	EventExecutionUpdated = "execution-updated"
)

// ExecutionReader is the slice of the store the channel needs to verify
// ownership and fall back to the durable record.
type ExecutionReader interface {
	GetExecution(ctx context.Context, taskID, organizationID string) (*store.Execution, error)
}

// Channel ties the reconnect buffer and the subscriber hub together behind
// the publish/read contract of the live log path.
type Channel struct {
	buffer *Buffer
	hub    *Hub
	store  ExecutionReader
	logger *slog.Logger
}

func NewChannel(buffer *Buffer, hub *Hub, reader ExecutionReader, logger *slog.Logger) *Channel {
	return &Channel{buffer: buffer, hub: hub, store: reader, logger: logger}
}

// Publish records a log chunk for reconnect recovery and pushes it to the
// organization's live subscribers. Both effects are best-effort and
// independent; neither can fail the caller.
func (c *Channel) Publish(taskID, organizationID, chunk string) {
	c.buffer.Append(taskID, chunk)
	c.hub.Publish(organizationID, api.Event{
		Type:    EventExecutionLog,
		TaskID:  taskID,
		Payload: chunk,
	})
}

// BroadcastStatus pushes a status transition to the organization's live
// subscribers.
func (c *Channel) BroadcastStatus(taskID, organizationID, status string) {
	c.hub.Publish(organizationID, api.Event{
		Type:    EventExecutionUpdated,
		TaskID:  taskID,
		Payload: status,
	})
}

// ReadBuffered serves the reconnect-recovery read. The caller's
// organization must own the execution; otherwise the read is rejected with
// store.ErrNotFound. Non-terminal executions read from the buffer,
// terminal ones from the durable output.
func (c *Channel) ReadBuffered(ctx context.Context, taskID, organizationID string) (content, source string, err error) {
	exec, err := c.store.GetExecution(ctx, taskID, organizationID)
	if err != nil {
		return "", "", err
	}

	if exec.Status.Terminal() {
		return exec.Output, "record", nil
	}

	buffered, _ := c.buffer.Read(taskID)
	return buffered, "buffer", nil
}

// Drop tears the task's buffer down after a terminal transition. This is a
// cleanliness optimization, not a correctness requirement.
func (c *Channel) Drop(taskID string) {
	c.buffer.Drop(taskID)
}
