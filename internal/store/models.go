// Package store contains the database layer for the Agnox execution core.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the tenant boundary. Every record and every mutation in
// the system is scoped to exactly one organization.
type Organization struct {
	ID         string
	Name       string
	PlanTier   PlanTier
	WebhookURL *string // optional outbound notification target
	RateLimit  int     // requests/second, 0 = unlimited
	RateBurst  int
	APIKeyHash string
	CreatedAt  time.Time
}

// PlanTier is the organization's subscription tier, consulted by the
// priority estimator.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanTeam       PlanTier = "team"
	PlanEnterprise PlanTier = "enterprise"
)

// Execution is the unit of work: one request to run a test suite, tracked
// from intake to a terminal status. TaskID is caller-supplied and globally
// unique; it is the idempotency boundary for queue redelivery.
type Execution struct {
	TaskID         string
	OrganizationID string

	Image     string
	Command   []string
	Folder    string
	Tests     []string
	GroupName string
	BatchID   string
	Trigger   Trigger

	Status    Status
	StartTime time.Time
	EndTime   *time.Time
	Output    string

	// Optional link to the review cycle item this execution automates.
	CycleID     *uuid.UUID
	CycleItemID *uuid.UUID

	// Soft delete only; executions are never hard-deleted.
	DeletedAt *time.Time
	DeletedBy *string

	CreatedAt time.Time
}

// Trigger identifies what started the execution.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerCron   Trigger = "cron"
	TriggerCI     Trigger = "ci"
)

// Status is the execution lifecycle state. Transitions are strictly
// forward-only: PENDING -> RUNNING -> (ANALYZING)? -> terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusAnalyzing Status = "ANALYZING"
	StatusPassed    Status = "PASSED"
	StatusFailed    Status = "FAILED"
	StatusError     Status = "ERROR"
	StatusUnstable  Status = "UNSTABLE"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusError, StatusUnstable:
		return true
	}
	return false
}

// Envelope is the message placed on the durable queue: a snapshot of the
// execution's creation-time fields plus the computed priority. It is
// consumed exactly once logically; the orchestrator must tolerate physical
// redelivery.
type Envelope struct {
	TaskID         string   `json:"task_id"`
	OrganizationID string   `json:"organization_id"`
	Image          string   `json:"image"`
	Command        []string `json:"command,omitempty"`
	Folder         string   `json:"folder,omitempty"`
	Tests          []string `json:"tests,omitempty"`
	GroupName      string   `json:"group_name,omitempty"`
	BatchID        string   `json:"batch_id,omitempty"`
	Trigger        Trigger  `json:"trigger"`
	Priority       int      `json:"priority"`
}

// Cycle is a parent review unit containing manual and/or automated items.
type Cycle struct {
	ID             uuid.UUID
	OrganizationID string
	Name           string
	Completed      bool

	// Aggregate summary, recomputed from the full item set on every sync.
	PassedCount     int
	FailedCount     int
	ErrorCount      int
	PendingCount    int
	AutomationRatio float64

	CreatedAt time.Time
}

// CycleItem is a single item inside a review cycle. An execution carrying a
// cycle link is the automated result for exactly one item.
type CycleItem struct {
	ID             uuid.UUID
	CycleID        uuid.UUID
	OrganizationID string
	Name           string
	Automated      bool
	Status         CycleItemStatus
	TaskID         *string
}

// CycleItemStatus is the cycle item's coarser status vocabulary.
type CycleItemStatus string

const (
	CycleItemPending CycleItemStatus = "PENDING"
	CycleItemPassed  CycleItemStatus = "PASSED"
	CycleItemFailed  CycleItemStatus = "FAILED"
	CycleItemError   CycleItemStatus = "ERROR"
)

// CycleItemStatusFor maps an execution's terminal status onto the cycle
// item vocabulary. UNSTABLE counts as FAILED for review purposes.
func CycleItemStatusFor(s Status) CycleItemStatus {
	switch s {
	case StatusPassed:
		return CycleItemPassed
	case StatusError:
		return CycleItemError
	default:
		return CycleItemFailed
	}
}

// DLQEntry is a task whose queue message exhausted its delivery budget.
type DLQEntry struct {
	ID             int64
	TaskID         string
	OrganizationID string
	Payload        []byte
	ErrorMessage   *string
	Attempts       int
	FailedAt       time.Time
}
