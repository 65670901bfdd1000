package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/keinar/Agnox-sub002/internal/store"
)

const organizationColumns = "id, name, plan_tier, webhook_url, rate_limit, rate_burst, api_key_hash, created_at"

func (s *Store) GetOrganizationByID(ctx context.Context, id string) (*store.Organization, error) {
	query := "SELECT " + organizationColumns + " FROM organizations WHERE id = $1"
	return s.scanOrganization(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) GetOrganizationByAPIKeyHash(ctx context.Context, hash string) (*store.Organization, error) {
	query := "SELECT " + organizationColumns + " FROM organizations WHERE api_key_hash = $1"
	return s.scanOrganization(s.db.QueryRowContext(ctx, query, hash))
}

// CreateOrganization inserts a new organization with a hashed API key.
func (s *Store) CreateOrganization(ctx context.Context, org *store.Organization) error {
	query := `
		INSERT INTO organizations (id, name, plan_tier, webhook_url, rate_limit, rate_burst, api_key_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		org.ID, org.Name, org.PlanTier, org.WebhookURL,
		org.RateLimit, org.RateBurst, org.APIKeyHash,
	)
	return err
}

// CountActiveExecutions returns the number of PENDING or RUNNING executions
// for the organization. Consulted by the priority estimator on the intake
// path, so it stays a single indexed count.
func (s *Store) CountActiveExecutions(ctx context.Context, organizationID string) (int64, error) {
	query := `
		SELECT COUNT(*) FROM executions
		WHERE organization_id = $1 AND status IN ($2, $3) AND deleted_at IS NULL
	`

	var count int64
	err := s.db.QueryRowContext(ctx, query, organizationID, store.StatusPending, store.StatusRunning).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (s *Store) scanOrganization(row *sql.Row) (*store.Organization, error) {
	var org store.Organization
	err := row.Scan(
		&org.ID, &org.Name, &org.PlanTier, &org.WebhookURL,
		&org.RateLimit, &org.RateBurst, &org.APIKeyHash, &org.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}
