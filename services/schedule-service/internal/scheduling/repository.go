package scheduling

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
)

// Filter narrows List. Zero values mean "any". TenantIDs nil means every
// tenant; an empty non-nil slice matches nothing.
type Filter struct {
	TenantIDs  []int64
	Status     model.Status
	ProviderID int64
	UserID     int64
	CategoryID int64
	ProductID  int64
	From       *time.Time // start >= From
	To         *time.Time // end <= To
	Skip       int
	Limit      int
}

// Reader is the read side shared by the repository and its transactions.
// Lookups of missing rows return model.ErrNotFound.
type Reader interface {
	GetTenant(ctx context.Context, id int64) (model.Tenant, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetCategory(ctx context.Context, id int64) (model.Category, error)
	GetProduct(ctx context.Context, id int64) (model.Product, error)

	// HasOverlap reports whether a non-deleted occupying schedule of the
	// provider overlaps [start,end), ignoring excludeID.
	HasOverlap(ctx context.Context, providerID int64, start, end time.Time, excludeID string) (bool, error)
	Get(ctx context.Context, id string) (model.Schedule, error)
	List(ctx context.Context, f Filter) ([]model.Schedule, error)
	ListInstances(ctx context.Context, parentID string) ([]model.RecurringInstance, error)
}

// Tx is one unit of work. Inserts and updates that would overlap an
// occupying schedule fail with model.ErrSlotTaken.
type Tx interface {
	HasOverlap(ctx context.Context, providerID int64, start, end time.Time, excludeID string) (bool, error)
	GetForUpdate(ctx context.Context, id string) (model.Schedule, error)
	InsertSchedule(ctx context.Context, s model.Schedule) error
	UpdateSchedule(ctx context.Context, s model.Schedule) error
	InsertInstances(ctx context.Context, instances []model.RecurringInstance) error
	GetInstanceForUpdate(ctx context.Context, parentID, instanceID string) (model.RecurringInstance, error)
	UpdateInstanceStatus(ctx context.Context, instanceID string, status model.Status) error
	AppendEvent(ctx context.Context, e Event) error
}

type Repository interface {
	Reader
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Tx) error) error
}
