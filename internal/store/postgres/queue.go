package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/keinar/Agnox-sub002/internal/store"
)

// Delivery policy. A message claimed more than MaxDeliveries times without
// an ack is moved to the dead-letter table instead of being redelivered
// forever.
const (
	MaxDeliveries     = 5
	VisibilityTimeout = 5 * time.Minute
)

// Enqueue adds a task envelope to the queue. The task_id uniqueness
// constraint makes enqueue idempotent: re-submitting an already-queued task
// is a no-op.
func (s *Store) Enqueue(ctx context.Context, tx store.DBTransaction, env *store.Envelope) (int64, error) {
	executor := s.getExecutor(tx)

	payload, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	query := `
		INSERT INTO task_queue (task_id, organization_id, payload, priority, visible_after)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (task_id) DO NOTHING
		RETURNING id
	`

	var id int64
	err = executor.QueryRowContext(ctx, query, env.TaskID, env.OrganizationID, payload, env.Priority).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Already queued.
			return 0, nil
		}
		return 0, fmt.Errorf("failed to enqueue task %s: %w", env.TaskID, err)
	}

	return id, nil
}

// Dequeue claims the single highest-priority visible message using
// SELECT ... FOR UPDATE SKIP LOCKED. The in-flight cap of one per worker is
// enforced here by LIMIT 1; messages over their delivery budget are swept
// to the DLQ first so they are never handed out again.
func (s *Store) Dequeue(ctx context.Context) (*store.Delivery, []store.SweptTask, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	swept, err := s.deadLetterExpired(ctx, tx)
	if err != nil {
		return nil, nil, err
	}

	var delivery store.Delivery
	var payload json.RawMessage
	err = tx.QueryRowContext(ctx, `
		SELECT id, payload, attempt + 1
		FROM task_queue
		WHERE visible_after <= NOW()
		ORDER BY priority DESC, enqueued_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&delivery.QueueID, &payload, &delivery.Attempt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, swept, tx.Commit()
		}
		return nil, nil, fmt.Errorf("dequeue query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE task_queue
		SET visible_after = NOW() + ($1 * INTERVAL '1 second'),
		    attempt = attempt + 1
		WHERE id = $2
	`, VisibilityTimeout.Seconds(), delivery.QueueID)
	if err != nil {
		return nil, nil, fmt.Errorf("visibility update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	if err := json.Unmarshal(payload, &delivery.Envelope); err != nil {
		return nil, swept, fmt.Errorf("invalid envelope for queue row %d: %w", delivery.QueueID, err)
	}

	return &delivery, swept, nil
}

// deadLetterExpired moves messages that exhausted their delivery budget to
// task_dlq and closes their executions as ERROR in the same statement. The
// executions it closed come back so the caller can route the forced
// terminal transition through the status fan-out; an already-terminal
// execution produces no row, its transition was dispatched when it
// happened.
func (s *Store) deadLetterExpired(ctx context.Context, tx store.DBTransaction) ([]store.SweptTask, error) {
	rows, err := tx.QueryContext(ctx, `
		WITH doomed AS (
			DELETE FROM task_queue
			WHERE attempt >= $1 AND visible_after <= NOW()
			RETURNING task_id, organization_id, payload, attempt
		),
		buried AS (
			INSERT INTO task_dlq (task_id, organization_id, payload, error_message, attempts)
			SELECT task_id, organization_id, payload, 'delivery budget exhausted', attempt
			FROM doomed
		)
		UPDATE executions e
		SET status = 'ERROR', end_time = NOW()
		FROM doomed d
		WHERE e.task_id = d.task_id AND e.organization_id = d.organization_id
		  AND e.status NOT IN `+terminalStatuses+`
		RETURNING e.task_id, e.organization_id`, MaxDeliveries)
	if err != nil {
		return nil, fmt.Errorf("dead-letter sweep failed: %w", err)
	}
	defer rows.Close()

	var swept []store.SweptTask
	for rows.Next() {
		var t store.SweptTask
		if err := rows.Scan(&t.TaskID, &t.OrganizationID); err != nil {
			return nil, err
		}
		swept = append(swept, t)
	}
	return swept, rows.Err()
}

// Ack removes the queue message for a processed task.
func (s *Store) Ack(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM task_queue WHERE task_id = $1", taskID)
	if err != nil {
		return fmt.Errorf("failed to ack task %s: %w", taskID, err)
	}
	return nil
}

// ExtendVisibility pushes the redelivery deadline out (heartbeat).
func (s *Store) ExtendVisibility(ctx context.Context, taskID string, visibleAfter time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE task_queue
		SET visible_after = $1
		WHERE task_id = $2
	`, visibleAfter, taskID)
	return err
}

// Depth returns the number of queued messages.
func (s *Store) Depth(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM task_queue").Scan(&count)
	return count, err
}

// ListDLQ returns dead-lettered tasks for the organization.
func (s *Store) ListDLQ(ctx context.Context, organizationID string, limit, offset int) ([]store.DLQEntry, error) {
	query := `
		SELECT id, task_id, organization_id, payload, error_message, attempts, failed_at
		FROM task_dlq
		WHERE organization_id = $1
		ORDER BY failed_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, organizationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []store.DLQEntry
	for rows.Next() {
		var e store.DLQEntry
		if err := rows.Scan(
			&e.ID, &e.TaskID, &e.OrganizationID, &e.Payload,
			&e.ErrorMessage, &e.Attempts, &e.FailedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// RetryFromDLQ moves a dead-lettered task back onto the queue with a fresh
// delivery budget and resets its execution to PENDING.
func (s *Store) RetryFromDLQ(ctx context.Context, taskID, organizationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var payload json.RawMessage
	err = tx.QueryRowContext(ctx, `
		SELECT payload FROM task_dlq
		WHERE task_id = $1 AND organization_id = $2
	`, taskID, organizationID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	var env store.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("invalid DLQ payload for %s: %w", taskID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE executions
		SET status = $3, end_time = NULL, output = ''
		WHERE task_id = $1 AND organization_id = $2
	`, taskID, organizationID, store.StatusPending)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_queue (task_id, organization_id, payload, priority, visible_after)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (task_id) DO NOTHING
	`, taskID, organizationID, payload, env.Priority)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM task_dlq WHERE task_id = $1 AND organization_id = $2
	`, taskID, organizationID)
	if err != nil {
		return err
	}

	return tx.Commit()
}
