package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist for the given
// identity, or exists under a different organization. The two cases are
// deliberately indistinguishable to callers.
var ErrNotFound = errors.New("store: not found")

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows passing either a connection pool or an active transaction to
// the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// ExecutionStore handles the persistence of execution records.
//
// Every write is an idempotent upsert keyed by task_id and is always
// filtered by organization_id as well; a bare task_id filter is never used.
// Status moves forward only: a terminal row is never downgraded.
type ExecutionStore interface {
	// UpsertPending creates the PENDING record at intake, or returns the
	// existing record untouched when the task_id was already submitted.
	UpsertPending(ctx context.Context, tx DBTransaction, exec *Execution) error

	// MarkRunning transitions the execution to RUNNING and stamps StartTime.
	MarkRunning(ctx context.Context, taskID, organizationID string, startTime time.Time) error

	// MarkAnalyzing transitions the execution to ANALYZING.
	MarkAnalyzing(ctx context.Context, taskID, organizationID string) error

	// FinishExecution persists the terminal status, EndTime and the
	// aggregated output. Re-applying the same terminal state is a no-op.
	FinishExecution(ctx context.Context, taskID, organizationID string, status Status, endTime time.Time, output string) error

	// GetExecution returns the execution owned by the given organization.
	GetExecution(ctx context.Context, taskID, organizationID string) (*Execution, error)

	// SoftDeleteExecution marks the record deleted without removing it.
	SoftDeleteExecution(ctx context.Context, taskID, organizationID, deletedBy string) error
}

// OrganizationStore handles tenant lookups for authentication and the
// priority estimator.
type OrganizationStore interface {
	GetOrganizationByID(ctx context.Context, id string) (*Organization, error)
	GetOrganizationByAPIKeyHash(ctx context.Context, hash string) (*Organization, error)

	// CountActiveExecutions returns the number of PENDING or RUNNING
	// executions for the organization.
	CountActiveExecutions(ctx context.Context, organizationID string) (int64, error)
}

// CycleStore handles review cycles and their synchronization with
// execution results.
type CycleStore interface {
	GetCycle(ctx context.Context, cycleID uuid.UUID, organizationID string) (*Cycle, error)
	ListCycleItems(ctx context.Context, cycleID uuid.UUID, organizationID string) ([]CycleItem, error)

	// SyncCycleItem updates exactly the item matching (cycleID, itemID,
	// organizationID), recomputes the cycle's aggregate summary from the
	// full item set and marks the cycle completed when every item is
	// terminal. A non-matching or cross-organization identifier leaves the
	// cycle unmodified and returns ErrNotFound.
	SyncCycleItem(ctx context.Context, organizationID string, cycleID, itemID uuid.UUID, status CycleItemStatus, taskID string) error
}
