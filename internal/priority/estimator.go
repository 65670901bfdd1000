// Package priority computes queue admission priority for an organization.
//
// Higher plan tiers and lower recent consumption yield higher priority, so
// a single heavy organization cannot starve the workers for everyone else.
package priority

import (
	"context"
	"log/slog"

	"github.com/keinar/Agnox-sub002/internal/store"
	"github.com/keinar/Agnox-sub002/pkg/api"
)

// loadPenalty is subtracted per active (pending or running) execution the
// organization already has, capped so a backlog can lower but never invert
// a tier advantage entirely.
const (
	loadPenalty    = 2
	maxLoadPenalty = 30
)

// Lookups is the single fast read the estimator is allowed on the intake
// path.
type Lookups interface {
	GetOrganizationByID(ctx context.Context, id string) (*store.Organization, error)
	CountActiveExecutions(ctx context.Context, organizationID string) (int64, error)
}

// Estimator computes priorities from plan tier and recent usage.
type Estimator struct {
	lookups Lookups
	logger  *slog.Logger
}

func New(lookups Lookups, logger *slog.Logger) *Estimator {
	return &Estimator{lookups: lookups, logger: logger}
}

// Estimate returns the priority for the organization's next task.
// On any lookup failure it fails open with the normal default rather than
// blocking or failing the enqueue.
func (e *Estimator) Estimate(ctx context.Context, organizationID string) int {
	org, err := e.lookups.GetOrganizationByID(ctx, organizationID)
	if err != nil {
		e.logger.Warn("priority lookup failed, using default",
			"organization_id", organizationID, "error", err)
		return api.PriorityNormal
	}

	active, err := e.lookups.CountActiveExecutions(ctx, organizationID)
	if err != nil {
		e.logger.Warn("active count lookup failed, using tier base",
			"organization_id", organizationID, "error", err)
		active = 0
	}

	penalty := int(active) * loadPenalty
	if penalty > maxLoadPenalty {
		penalty = maxLoadPenalty
	}

	return clamp(tierBase(org.PlanTier) - penalty)
}

func tierBase(tier store.PlanTier) int {
	switch tier {
	case store.PlanEnterprise:
		return api.PriorityCritical
	case store.PlanTeam:
		return api.PriorityHigh
	default:
		return api.PriorityNormal
	}
}

func clamp(p int) int {
	if p < api.PriorityMin {
		return api.PriorityMin
	}
	if p > api.PriorityMax {
		return api.PriorityMax
	}
	return p
}
