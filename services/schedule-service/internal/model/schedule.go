package model

import (
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrSlotTaken = errors.New("slot already taken")
)

// Status is the lifecycle state of a schedule. Soft deletion is tracked
// separately through Schedule.DeletedAt.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Occupying reports whether a schedule in this status blocks its
// provider's time window.
func (s Status) Occupying() bool {
	return s == StatusActive
}

// OccupyingStatuses is the set Occupying accepts, for use in queries.
var OccupyingStatuses = []Status{StatusActive}

type Schedule struct {
	ID           string
	TenantID     int64
	ProviderID   int64
	UserID       int64
	CategoryID   int64
	ProductID    int64
	Start        time.Time
	End          time.Time
	Status       Status
	ServicePrice *int64 // minor units
	Notes        string
	Recurrence   Recurrence
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CreatedByID  int64
	UpdatedByID  int64
	DeletedAt    *time.Time
}

func (s Schedule) Deleted() bool {
	return s.DeletedAt != nil
}

// Blocks reports whether s occupies [start,end) for its provider.
func (s Schedule) Blocks(start, end time.Time) bool {
	return !s.Deleted() && s.Status.Occupying() && s.Start.Before(end) && s.End.After(start)
}

// RecurringInstance is one materialized occurrence of a recurring
// schedule. Its status changes independently of the parent.
type RecurringInstance struct {
	ID           string
	ParentID     string
	InstanceDate time.Time
	Status       Status
	Notes        string
	CreatedAt    time.Time
}

// CalendarDay groups the schedules starting on Date. Never persisted.
type CalendarDay struct {
	Date      time.Time
	Schedules []Schedule
}
