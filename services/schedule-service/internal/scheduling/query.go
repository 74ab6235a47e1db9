package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/calendar"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// List returns non-deleted schedules matching f, ordered by start.
func (s *Service) List(ctx context.Context, f Filter) ([]model.Schedule, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("unknown status %q", f.Status)
	}
	if f.Skip < 0 {
		return nil, invalid("skip must not be negative")
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.TenantIDs != nil && len(f.TenantIDs) == 0 {
		return []model.Schedule{}, nil
	}
	return s.repo.List(ctx, f)
}

// ByDateRange lists a tenant's schedules lying within [from, to].
func (s *Service) ByDateRange(ctx context.Context, tenantID int64, from, to time.Time, providerID int64) ([]model.Schedule, error) {
	if to.Before(from) {
		return nil, invalid("end_date must not be before start_date")
	}
	return s.repo.List(ctx, Filter{
		TenantIDs:  []int64{tenantID},
		ProviderID: providerID,
		From:       &from,
		To:         &to,
	})
}

// ByProvider lists a provider's schedules, optionally bounded.
func (s *Service) ByProvider(ctx context.Context, tenantIDs []int64, providerID int64, from, to *time.Time) ([]model.Schedule, error) {
	return s.List(ctx, Filter{
		TenantIDs:  tenantIDs,
		ProviderID: providerID,
		From:       from,
		To:         to,
		Limit:      MaxLimit,
	})
}

// Upcoming lists the tenant's schedules from now through the next days.
func (s *Service) Upcoming(ctx context.Context, tenantID int64, days int) ([]model.Schedule, error) {
	if days <= 0 || days > 366 {
		return nil, invalid("days must be between 1 and 366")
	}
	from := s.now()
	return s.ByDateRange(ctx, tenantID, from, from.AddDate(0, 0, days), 0)
}

// Calendar buckets the tenant's schedules into the days of one month.
func (s *Service) Calendar(ctx context.Context, tenantID int64, year int, month time.Month, providerID int64) ([]model.CalendarDay, error) {
	from, to, err := calendar.MonthRange(year, month, s.loc)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	schedules, err := s.ByDateRange(ctx, tenantID, from, to, providerID)
	if err != nil {
		return nil, err
	}
	return calendar.Build(year, month, s.loc, schedules)
}

type FreeSlotsInput struct {
	ProviderID int64
	Day        time.Time
	Duration   time.Duration
	Step       time.Duration
	From       availability.ClockTime
	To         availability.ClockTime
}

// FreeSlots lists start times on one day where the provider could take a
// booking of the given duration.
func (s *Service) FreeSlots(ctx context.Context, in FreeSlotsInput) ([]time.Time, error) {
	if in.Duration <= 0 {
		return nil, invalid("duration must be positive")
	}
	if in.Step <= 0 {
		in.Step = in.Duration
	}
	if !in.From.Before(in.To) {
		return nil, invalid("workday_start must be before workday_end")
	}
	window := availability.DayWindow(in.Day, in.From, in.To, s.loc)

	occupied, err := s.repo.List(ctx, Filter{
		ProviderID: in.ProviderID,
		Status:     model.StatusActive,
		// List bounds contain whole schedules; widen and filter below.
		From:  ptrTime(window.Start.AddDate(0, 0, -1)),
		To:    ptrTime(window.End.AddDate(0, 0, 1)),
		Limit: MaxLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list provider schedules: %w", err)
	}
	busy := make([]availability.Interval, 0, len(occupied))
	for _, o := range occupied {
		iv := availability.Interval{Start: o.Start, End: o.End}
		if availability.Overlaps(iv, window) {
			busy = append(busy, iv)
		}
	}
	return availability.AvailableSlots(window.Start, window.End, in.Duration, in.Step, busy, s.now()), nil
}

func ptrTime(t time.Time) *time.Time { return &t }

// Instances lists the materialized occurrences of a recurring schedule.
func (s *Service) Instances(ctx context.Context, parentID string) ([]model.RecurringInstance, error) {
	if _, err := s.Get(ctx, parentID); err != nil {
		return nil, err
	}
	return s.repo.ListInstances(ctx, parentID)
}

// CancelInstance cancels one occurrence without touching the parent or
// its siblings.
func (s *Service) CancelInstance(ctx context.Context, actor Actor, parentID, instanceID string) (model.RecurringInstance, error) {
	now := s.now()
	var out model.RecurringInstance
	err := s.repo.InTx(ctx, func(tx Tx) error {
		parent, err := tx.GetForUpdate(ctx, parentID)
		if err != nil {
			return lookup(err, "schedule")
		}
		inst, err := tx.GetInstanceForUpdate(ctx, parentID, instanceID)
		if err != nil {
			return lookup(err, "instance")
		}
		if inst.Status == model.StatusCancelled {
			out = inst
			return nil
		}
		if err := tx.UpdateInstanceStatus(ctx, inst.ID, model.StatusCancelled); err != nil {
			return fmt.Errorf("cancel instance: %w", err)
		}
		inst.Status = model.StatusCancelled
		out = inst
		return tx.AppendEvent(ctx, Event{
			Topic:       TopicInstanceCancelled,
			AggregateID: parent.ID,
			Payload: InstancePayload{
				ScheduleID:   parent.ID,
				InstanceID:   inst.ID,
				TenantID:     parent.TenantID,
				InstanceDate: inst.InstanceDate.UTC().Format(time.RFC3339),
				ActorID:      actor.UserID,
				OccurredAt:   now.UTC(),
			},
		})
	})
	if err != nil {
		return model.RecurringInstance{}, err
	}
	return out, nil
}
