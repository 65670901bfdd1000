package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/keinar/Agnox-sub002/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func TestUpsertPending_NewTask(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	exec := &store.Execution{
		TaskID:         "t1",
		OrganizationID: "org-abc",
		Image:          "node:20",
		Trigger:        store.TriggerManual,
	}

	mock.ExpectExec(`INSERT INTO executions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT status FROM executions WHERE task_id = \$1 AND organization_id = \$2`).
		WithArgs("t1", "org-abc").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))

	if err := s.UpsertPending(context.Background(), nil, exec); err != nil {
		t.Fatalf("UpsertPending failed: %v", err)
	}
	if exec.Status != store.StatusPending {
		t.Errorf("expected PENDING, got %s", exec.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpsertPending_ResubmissionReturnsExistingState(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	exec := &store.Execution{TaskID: "t1", OrganizationID: "org-abc"}

	// The conflicting insert touches nothing; the ownership read returns
	// the progressed state.
	mock.ExpectExec(`INSERT INTO executions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM executions`).
		WithArgs("t1", "org-abc").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("RUNNING"))

	if err := s.UpsertPending(context.Background(), nil, exec); err != nil {
		t.Fatalf("UpsertPending failed: %v", err)
	}
	if exec.Status != store.StatusRunning {
		t.Errorf("expected the existing RUNNING state, got %s", exec.Status)
	}
}

func TestUpsertPending_TaskIDOwnedByAnotherOrganization(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	exec := &store.Execution{TaskID: "t1", OrganizationID: "org-intruder"}

	mock.ExpectExec(`INSERT INTO executions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM executions`).
		WithArgs("t1", "org-intruder").
		WillReturnError(sql.ErrNoRows)

	err := s.UpsertPending(context.Background(), nil, exec)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a foreign task id, got %v", err)
	}
}

func TestMarkRunning_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	start := time.Now().UTC()
	mock.ExpectExec(`UPDATE executions`).
		WithArgs("t1", "org-abc", store.StatusRunning, start).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.MarkRunning(context.Background(), "t1", "org-abc", start); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
}

func TestMarkRunning_AlreadyTerminalIsNoOp(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	// The forward-only guard matches zero rows; the follow-up read shows
	// a terminal status, so the call is absorbed.
	mock.ExpectExec(`UPDATE executions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM executions`).
		WithArgs("t1", "org-abc").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PASSED"))

	if err := s.MarkRunning(context.Background(), "t1", "org-abc", time.Now()); err != nil {
		t.Errorf("terminal row must absorb MarkRunning as a no-op, got %v", err)
	}
}

func TestMarkRunning_CrossOrganizationIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`UPDATE executions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM executions`).
		WillReturnError(sql.ErrNoRows)

	err := s.MarkRunning(context.Background(), "t1", "org-other", time.Now())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFinishExecution_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	end := time.Now().UTC()
	mock.ExpectExec(`UPDATE executions`).
		WithArgs("t1", "org-abc", store.StatusPassed, end, "output\n").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.FinishExecution(context.Background(), "t1", "org-abc", store.StatusPassed, end, "output\n"); err != nil {
		t.Fatalf("FinishExecution failed: %v", err)
	}
}

func TestFinishExecution_RedeliveryIsNoOp(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`UPDATE executions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM executions`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("FAILED"))

	err := s.FinishExecution(context.Background(), "t1", "org-abc", store.StatusFailed, time.Now(), "")
	if err != nil {
		t.Errorf("re-finishing a terminal execution must be a no-op, got %v", err)
	}
}

func TestGetExecution_FiltersByBothIdentifiers(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	columns := []string{
		"task_id", "organization_id", "image", "command", "folder", "tests",
		"group_name", "batch_id", "trigger", "status", "start_time", "end_time",
		"output", "cycle_id", "cycle_item_id", "created_at",
	}
	mock.ExpectQuery(`WHERE task_id = \$1 AND organization_id = \$2 AND deleted_at IS NULL`).
		WithArgs("t1", "org-abc").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"t1", "org-abc", "node:20", "{npm,test}", "", "{}",
			"", "", "manual", "RUNNING", time.Now(), nil,
			"", nil, nil, time.Now(),
		))

	exec, err := s.GetExecution(context.Background(), "t1", "org-abc")
	if err != nil {
		t.Fatalf("GetExecution failed: %v", err)
	}
	if exec.TaskID != "t1" || exec.Status != store.StatusRunning {
		t.Errorf("unexpected execution: %+v", exec)
	}
	if len(exec.Command) != 2 {
		t.Errorf("command array not decoded: %v", exec.Command)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetExecution_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT`).WillReturnError(sql.ErrNoRows)

	_, err := s.GetExecution(context.Background(), "ghost", "org-abc")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSoftDeleteExecution(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`UPDATE executions`).
		WithArgs("t1", "org-abc", "org-abc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.SoftDeleteExecution(context.Background(), "t1", "org-abc", "org-abc"); err != nil {
		t.Fatalf("SoftDeleteExecution failed: %v", err)
	}
}
