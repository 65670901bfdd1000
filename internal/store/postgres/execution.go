package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keinar/Agnox-sub002/internal/store"

	"github.com/lib/pq"
)

// terminalStatuses is the SQL list used by forward-only status guards.
const terminalStatuses = "('PASSED', 'FAILED', 'ERROR', 'UNSTABLE')"

// UpsertPending creates the initial PENDING record for a task. The insert is
// keyed by task_id, so a redelivered or duplicate submission leaves the
// existing row untouched. If the task_id already exists under a different
// organization the caller gets ErrNotFound; the conflicting row is never
// read or modified.
func (s *Store) UpsertPending(ctx context.Context, tx store.DBTransaction, exec *store.Execution) error {
	executor := s.getExecutor(tx)

	query := `
		INSERT INTO executions
			(task_id, organization_id, image, command, folder, tests, group_name, batch_id, trigger, status, cycle_id, cycle_item_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (task_id) DO NOTHING
	`

	_, err := executor.ExecContext(ctx, query,
		exec.TaskID, exec.OrganizationID, exec.Image,
		pq.Array(exec.Command), exec.Folder, pq.Array(exec.Tests),
		exec.GroupName, exec.BatchID, exec.Trigger, store.StatusPending,
		exec.CycleID, exec.CycleItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert execution %s: %w", exec.TaskID, err)
	}

	// Confirm this organization owns the row, whether we just inserted it
	// or it already existed.
	var status store.Status
	err = executor.QueryRowContext(ctx,
		"SELECT status FROM executions WHERE task_id = $1 AND organization_id = $2",
		exec.TaskID, exec.OrganizationID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	exec.Status = status
	return nil
}

// MarkRunning transitions the execution to RUNNING. The guard keeps the
// state machine forward-only: a terminal row is never pulled back.
func (s *Store) MarkRunning(ctx context.Context, taskID, organizationID string, startTime time.Time) error {
	query := `
		UPDATE executions
		SET status = $3, start_time = COALESCE(start_time, $4)
		WHERE task_id = $1 AND organization_id = $2
		  AND status NOT IN ` + terminalStatuses

	res, err := s.db.ExecContext(ctx, query, taskID, organizationID, store.StatusRunning, startTime)
	if err != nil {
		return fmt.Errorf("failed to mark %s running: %w", taskID, err)
	}

	return s.checkAffected(ctx, res, taskID, organizationID)
}

// MarkAnalyzing transitions the execution to ANALYZING during the post-run
// report pass.
func (s *Store) MarkAnalyzing(ctx context.Context, taskID, organizationID string) error {
	query := `
		UPDATE executions
		SET status = $3
		WHERE task_id = $1 AND organization_id = $2 AND status = $4
	`

	res, err := s.db.ExecContext(ctx, query, taskID, organizationID, store.StatusAnalyzing, store.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark %s analyzing: %w", taskID, err)
	}

	return s.checkAffected(ctx, res, taskID, organizationID)
}

// FinishExecution persists the terminal status, end time and aggregated
// output. A redelivered message for an already-terminal task matches zero
// rows and is treated as a no-op success.
func (s *Store) FinishExecution(ctx context.Context, taskID, organizationID string, status store.Status, endTime time.Time, output string) error {
	query := `
		UPDATE executions
		SET status = $3, end_time = $4, output = $5
		WHERE task_id = $1 AND organization_id = $2
		  AND status NOT IN ` + terminalStatuses

	res, err := s.db.ExecContext(ctx, query, taskID, organizationID, status, endTime, output)
	if err != nil {
		return fmt.Errorf("failed to finish %s: %w", taskID, err)
	}

	return s.checkAffected(ctx, res, taskID, organizationID)
}

// GetExecution returns the execution owned by the given organization.
// Soft-deleted rows are invisible.
func (s *Store) GetExecution(ctx context.Context, taskID, organizationID string) (*store.Execution, error) {
	query := `
		SELECT task_id, organization_id, image, command, folder, tests,
		       group_name, batch_id, trigger, status, start_time, end_time,
		       output, cycle_id, cycle_item_id, created_at
		FROM executions
		WHERE task_id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`

	var exec store.Execution
	var startTime sql.NullTime

	err := s.db.QueryRowContext(ctx, query, taskID, organizationID).Scan(
		&exec.TaskID, &exec.OrganizationID, &exec.Image,
		pq.Array(&exec.Command), &exec.Folder, pq.Array(&exec.Tests),
		&exec.GroupName, &exec.BatchID, &exec.Trigger, &exec.Status,
		&startTime, &exec.EndTime, &exec.Output,
		&exec.CycleID, &exec.CycleItemID, &exec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if startTime.Valid {
		exec.StartTime = startTime.Time
	}

	return &exec, nil
}

// SoftDeleteExecution marks the record deleted. Executions are never hard
// deleted so billing stays accurate.
func (s *Store) SoftDeleteExecution(ctx context.Context, taskID, organizationID, deletedBy string) error {
	query := `
		UPDATE executions
		SET deleted_at = NOW(), deleted_by = $3
		WHERE task_id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`

	res, err := s.db.ExecContext(ctx, query, taskID, organizationID, deletedBy)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", taskID, err)
	}

	return s.checkAffected(ctx, res, taskID, organizationID)
}

// checkAffected distinguishes a missing/cross-organization row from a
// transition that matched zero rows because the execution is already
// terminal. The latter is absorbed as an idempotent no-op.
func (s *Store) checkAffected(ctx context.Context, res sql.Result, taskID, organizationID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var status store.Status
	err = s.db.QueryRowContext(ctx,
		"SELECT status FROM executions WHERE task_id = $1 AND organization_id = $2",
		taskID, organizationID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	if status.Terminal() {
		return nil
	}
	return store.ErrNotFound
}
