// Package api contains shared JSON request/response structs.
// This package is shared between the CLI, the Controller and the Worker.
package api

import "time"

// SubmitTaskRequest is the request body for submitting a test-suite run.
// TaskID is caller-supplied and acts as the idempotency key: submitting the
// same TaskID twice returns the existing execution instead of a new one.
type SubmitTaskRequest struct {
	TaskID    string   `json:"task_id"`
	Image     string   `json:"image"`
	Command   []string `json:"command,omitempty"`
	Folder    string   `json:"folder,omitempty"`
	Tests     []string `json:"tests,omitempty"`
	GroupName string   `json:"group_name,omitempty"`
	BatchID   string   `json:"batch_id,omitempty"`
	// Trigger must be one of "manual", "cron" or "ci".
	Trigger string `json:"trigger"`
	// CycleID/CycleItemID link this execution to a review cycle item.
	CycleID     string `json:"cycle_id,omitempty"`
	CycleItemID string `json:"cycle_item_id,omitempty"`
}

// SubmitTaskResponse is the response body after submitting a task.
type SubmitTaskResponse struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Priority int    `json:"priority"`
}

// ExecutionResponse represents an execution in API responses.
type ExecutionResponse struct {
	TaskID    string     `json:"task_id"`
	Status    string     `json:"status"`
	Image     string     `json:"image"`
	Trigger   string     `json:"trigger"`
	GroupName string     `json:"group_name,omitempty"`
	BatchID   string     `json:"batch_id,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Output    string     `json:"output,omitempty"`
}

// GetLogsResponse is the response body of the reconnect-recovery read.
// Source is "buffer" while the execution is still running and "record"
// once it has reached a terminal status.
type GetLogsResponse struct {
	TaskID  string `json:"task_id"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

// AddLogRequest is the log chunk payload shipped by the Worker.
type AddLogRequest struct {
	OrganizationID string `json:"organization_id"`
	Content        string `json:"content"`
}

// StatusEventRequest is the status transition payload shipped by the Worker
// so the controller can broadcast it to live subscribers.
type StatusEventRequest struct {
	OrganizationID string `json:"organization_id"`
	Status         string `json:"status"`
}

// Event is a single server-sent event on the live channel.
type Event struct {
	Type    string `json:"type"` // "execution-updated" or "execution-log"
	TaskID  string `json:"task_id"`
	Payload string `json:"payload"`
}

// NotificationPayload is the summary POSTed to an organization's webhook
// when an execution reaches a terminal status.
type NotificationPayload struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Trigger   string    `json:"trigger"`
	Image     string    `json:"image"`
	GroupName string    `json:"group_name,omitempty"`
	Excerpt   string    `json:"excerpt,omitempty"`
	EndTime   time.Time `json:"end_time"`
}

// CycleResponse represents a review cycle and its aggregate summary.
type CycleResponse struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Completed       bool                `json:"completed"`
	PassedCount     int                 `json:"passed_count"`
	FailedCount     int                 `json:"failed_count"`
	ErrorCount      int                 `json:"error_count"`
	PendingCount    int                 `json:"pending_count"`
	AutomationRatio float64             `json:"automation_ratio"`
	Items           []CycleItemResponse `json:"items,omitempty"`
}

// CycleItemResponse represents a single item inside a review cycle.
type CycleItemResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Automated bool   `json:"automated"`
	Status    string `json:"status"`
	TaskID    string `json:"task_id,omitempty"`
}

// DLQEntryResponse represents a dead-lettered task.
type DLQEntryResponse struct {
	TaskID       string     `json:"task_id"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Attempts     int        `json:"attempts"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
}

// RetryDLQResponse is returned after requeueing a dead-lettered task.
type RetryDLQResponse struct {
	TaskID string `json:"task_id"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Priority bounds for queue admission.
const (
	PriorityLow      = 0
	PriorityNormal   = 50
	PriorityHigh     = 75
	PriorityCritical = 100

	PriorityMin = 0
	PriorityMax = 100
)
