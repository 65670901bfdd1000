package store

import (
	"context"
	"time"
)

// Queue defines the interface for the durable task queue.
//
// Delivery is at-least-once: a claimed message whose visibility timeout
// expires becomes claimable again, so consumers must absorb redelivery.
// Ordering is priority first, then FIFO within equal priority.
// Implementations must use SELECT ... FOR UPDATE SKIP LOCKED semantics.
type Queue interface {
	// Enqueue adds a task envelope to the queue.
	Enqueue(ctx context.Context, tx DBTransaction, env *Envelope) (int64, error)

	// Dequeue claims the single highest-priority visible message, or nil
	// when the queue is empty. Messages that exhausted their delivery
	// budget are moved to the dead-letter table instead of being returned;
	// the executions the sweep closed as ERROR come back as swept tasks so
	// the caller can dispatch their terminal transition.
	Dequeue(ctx context.Context) (*Delivery, []SweptTask, error)

	// Ack removes the message for the given task. Called exactly once per
	// processed delivery, strictly after the terminal state is persisted.
	Ack(ctx context.Context, taskID string) error

	// ExtendVisibility pushes the redelivery deadline out (heartbeat).
	ExtendVisibility(ctx context.Context, taskID string, visibleAfter time.Time) error

	// Depth returns the number of messages currently queued.
	Depth(ctx context.Context) (int64, error)

	// ListDLQ returns dead-lettered tasks for the organization.
	ListDLQ(ctx context.Context, organizationID string, limit, offset int) ([]DLQEntry, error)

	// RetryFromDLQ moves a dead-lettered task back onto the queue.
	RetryFromDLQ(ctx context.Context, taskID, organizationID string) error
}

// Delivery is a claimed queue message.
type Delivery struct {
	QueueID  int64
	Attempt  int
	Envelope Envelope
}

// SweptTask identifies an execution the dead-letter sweep forced to ERROR.
type SweptTask struct {
	TaskID         string
	OrganizationID string
}
