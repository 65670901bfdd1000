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

func organizationRows() *sqlmock.Rows {
	webhook := "http://hooks.example.com/x"
	return sqlmock.NewRows(
		[]string{"id", "name", "plan_tier", "webhook_url", "rate_limit", "rate_burst", "api_key_hash", "created_at"}).
		AddRow("org-abc", "Acme", "team", webhook, 10, 20, "hash-1", time.Now())
}

func TestGetOrganizationByAPIKeyHash(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`FROM organizations WHERE api_key_hash = \$1`).
		WithArgs("hash-1").
		WillReturnRows(organizationRows())

	org, err := s.GetOrganizationByAPIKeyHash(context.Background(), "hash-1")
	if err != nil {
		t.Fatalf("GetOrganizationByAPIKeyHash failed: %v", err)
	}
	if org.ID != "org-abc" || org.PlanTier != store.PlanTeam {
		t.Errorf("unexpected organization: %+v", org)
	}
	if org.WebhookURL == nil || *org.WebhookURL != "http://hooks.example.com/x" {
		t.Errorf("webhook url not decoded: %v", org.WebhookURL)
	}
}

func TestGetOrganizationByAPIKeyHash_UnknownKey(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`FROM organizations`).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetOrganizationByAPIKeyHash(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetOrganizationByID(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`FROM organizations WHERE id = \$1`).
		WithArgs("org-abc").
		WillReturnRows(organizationRows())

	org, err := s.GetOrganizationByID(context.Background(), "org-abc")
	if err != nil {
		t.Fatalf("GetOrganizationByID failed: %v", err)
	}
	if org.RateLimit != 10 || org.RateBurst != 20 {
		t.Errorf("unexpected limits: %+v", org)
	}
}

func TestCountActiveExecutions(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM executions`).
		WithArgs("org-abc", store.StatusPending, store.StatusRunning).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))

	count, err := s.CountActiveExecutions(context.Background(), "org-abc")
	if err != nil {
		t.Fatalf("CountActiveExecutions failed: %v", err)
	}
	if count != 4 {
		t.Errorf("expected count 4, got %d", count)
	}
}

func TestCreateOrganization(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`INSERT INTO organizations`).
		WithArgs("org-abc", "Acme", store.PlanTeam, nil, 10, 20, "hash-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	org := &store.Organization{
		ID:         "org-abc",
		Name:       "Acme",
		PlanTier:   store.PlanTeam,
		RateLimit:  10,
		RateBurst:  20,
		APIKeyHash: "hash-1",
	}
	if err := s.CreateOrganization(context.Background(), org); err != nil {
		t.Fatalf("CreateOrganization failed: %v", err)
	}
}
