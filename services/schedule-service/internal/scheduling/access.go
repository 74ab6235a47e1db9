package scheduling

import (
	"context"
	"errors"
	"slices"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
)

// Actor is the authenticated caller.
type Actor struct {
	UserID     int64
	TenantIDs  []int64
	SuperAdmin bool
}

func (a Actor) CanAccess(tenantID int64) bool {
	return a.SuperAdmin || slices.Contains(a.TenantIDs, tenantID)
}

// VisibleTenants is the tenant filter for listings; nil means all.
func (a Actor) VisibleTenants() []int64 {
	if a.SuperAdmin {
		return nil
	}
	if a.TenantIDs == nil {
		return []int64{}
	}
	return a.TenantIDs
}

// RequireTenant fails with ErrForbidden when the actor has no access and
// with a NotFoundError when the tenant is missing or inactive.
func (s *Service) RequireTenant(ctx context.Context, actor Actor, tenantID int64) error {
	if !actor.CanAccess(tenantID) {
		return ErrForbidden
	}
	t, err := s.repo.GetTenant(ctx, tenantID)
	if errors.Is(err, model.ErrNotFound) || (err == nil && !t.IsActive) {
		return notFound("tenant")
	}
	return err
}
