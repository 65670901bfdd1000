package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keinar/Agnox-sub002/internal/store"

	"github.com/google/uuid"
)

func (s *Store) GetCycle(ctx context.Context, cycleID uuid.UUID, organizationID string) (*store.Cycle, error) {
	query := `
		SELECT id, organization_id, name, completed,
		       passed_count, failed_count, error_count, pending_count,
		       automation_ratio, created_at
		FROM cycles
		WHERE id = $1 AND organization_id = $2
	`

	var c store.Cycle
	err := s.db.QueryRowContext(ctx, query, cycleID, organizationID).Scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.Completed,
		&c.PassedCount, &c.FailedCount, &c.ErrorCount, &c.PendingCount,
		&c.AutomationRatio, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	return &c, nil
}

func (s *Store) ListCycleItems(ctx context.Context, cycleID uuid.UUID, organizationID string) ([]store.CycleItem, error) {
	query := `
		SELECT id, cycle_id, organization_id, name, automated, status, task_id
		FROM cycle_items
		WHERE cycle_id = $1 AND organization_id = $2
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, cycleID, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []store.CycleItem
	for rows.Next() {
		var item store.CycleItem
		if err := rows.Scan(
			&item.ID, &item.CycleID, &item.OrganizationID,
			&item.Name, &item.Automated, &item.Status, &item.TaskID,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// SyncCycleItem reflects an execution result into its parent review cycle.
//
// The item update targets exactly the row matching (id, cycle_id,
// organization_id); zero matched rows means the identifier is invalid or
// belongs to another organization, and the cycle is left unmodified. The
// aggregate summary is then recomputed from the full item set rather than
// incremented, which makes a redelivered sync converge to the same counts.
func (s *Store) SyncCycleItem(ctx context.Context, organizationID string, cycleID, itemID uuid.UUID, status store.CycleItemStatus, taskID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE cycle_items
		SET status = $4, task_id = $5
		WHERE id = $3 AND cycle_id = $2 AND organization_id = $1
	`, organizationID, cycleID, itemID, status, taskID)
	if err != nil {
		return fmt.Errorf("cycle item update failed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}

	// Recompute the aggregate from current item state. Completed flips
	// when no pending item remains.
	_, err = tx.ExecContext(ctx, `
		UPDATE cycles c
		SET passed_count     = agg.passed,
		    failed_count     = agg.failed,
		    error_count      = agg.errored,
		    pending_count    = agg.pending,
		    automation_ratio = CASE WHEN agg.total = 0 THEN 0
		                            ELSE agg.automated::double precision / agg.total END,
		    completed        = (agg.pending = 0)
		FROM (
			SELECT COUNT(*) FILTER (WHERE status = 'PASSED')  AS passed,
			       COUNT(*) FILTER (WHERE status = 'FAILED')  AS failed,
			       COUNT(*) FILTER (WHERE status = 'ERROR')   AS errored,
			       COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
			       COUNT(*) FILTER (WHERE automated)          AS automated,
			       COUNT(*)                                   AS total
			FROM cycle_items
			WHERE cycle_id = $1 AND organization_id = $2
		) agg
		WHERE c.id = $1 AND c.organization_id = $2
	`, cycleID, organizationID)
	if err != nil {
		return fmt.Errorf("cycle summary recompute failed: %w", err)
	}

	return tx.Commit()
}
