// Package scheduling validates, books and mutates schedules while keeping
// every provider free of overlapping occupying bookings.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/recurrence"
)

type Options struct {
	// Location interprets wall clock input such as bulk HH:MM windows and
	// calendar months. Defaults to UTC.
	Location *time.Location
	// MaxInstances caps recurrence expansion. Zero means 1000.
	MaxInstances int
	Now          func() time.Time
	Metrics      *metrics.Metrics
}

type Service struct {
	repo    Repository
	logger  *slog.Logger
	loc     *time.Location
	max     int
	now     func() time.Time
	metrics *metrics.Metrics
}

func NewService(repo Repository, logger *slog.Logger, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxInstances <= 0 {
		opts.MaxInstances = 1000
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:    repo,
		logger:  logger,
		loc:     opts.Location,
		max:     opts.MaxInstances,
		now:     opts.Now,
		metrics: opts.Metrics,
	}
}

func (s *Service) Location() *time.Location { return s.loc }

type CreateInput struct {
	TenantID     int64
	ProviderID   int64
	UserID       int64
	CategoryID   int64
	ProductID    int64
	Start        time.Time
	End          time.Time
	ServicePrice *int64
	Notes        string
	Recurrence   model.Recurrence
}

// IsAvailable reports whether the provider has no occupying schedule
// overlapping [start,end). excludeID skips one schedule, for updates.
func (s *Service) IsAvailable(ctx context.Context, providerID int64, start, end time.Time, excludeID string) (bool, error) {
	if !start.Before(end) {
		return false, invalid("start must be before end")
	}
	busy, err := s.repo.HasOverlap(ctx, providerID, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return !busy, nil
}

// Create books a single schedule, or a recurring parent plus all of its
// instances in one transaction.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (model.Schedule, error) {
	sched, n, err := s.create(ctx, actor, in)
	if err != nil {
		if IsConflict(err) {
			s.metrics.Conflict("create")
		}
		return model.Schedule{}, err
	}
	kind := "recurring"
	if sched.Recurrence.IsNone() {
		kind = "single"
	}
	s.metrics.Created(kind, 1)
	s.logger.Info("schedule created",
		"schedule_id", sched.ID,
		"tenant_id", sched.TenantID,
		"provider_id", sched.ProviderID,
		"recurrence", string(sched.Recurrence.Type),
		"instances", n,
	)
	return sched, nil
}

func (s *Service) create(ctx context.Context, actor Actor, in CreateInput) (model.Schedule, int, error) {
	now := s.now()
	if err := s.validateCreate(ctx, in, now); err != nil {
		return model.Schedule{}, 0, err
	}

	rec := in.Recurrence
	if rec.Type == "" {
		rec.Type = model.RecurrenceNone
	}
	sched := model.Schedule{
		ID:           uuid.NewString(),
		TenantID:     in.TenantID,
		ProviderID:   in.ProviderID,
		UserID:       in.UserID,
		CategoryID:   in.CategoryID,
		ProductID:    in.ProductID,
		Start:        in.Start,
		End:          in.End,
		Status:       model.StatusActive,
		ServicePrice: in.ServicePrice,
		Notes:        in.Notes,
		Recurrence:   rec,
		CreatedAt:    now,
		UpdatedAt:    now,
		CreatedByID:  actor.UserID,
		UpdatedByID:  actor.UserID,
	}
	conflict := &ConflictError{ProviderID: in.ProviderID, Start: in.Start, End: in.End}

	var instances []model.RecurringInstance
	err := s.repo.InTx(ctx, func(tx Tx) error {
		busy, err := tx.HasOverlap(ctx, sched.ProviderID, sched.Start, sched.End, "")
		if err != nil {
			return err
		}
		if busy {
			return conflict
		}

		if !rec.IsNone() {
			instances, err = recurrence.Materialize(sched, s.max, now)
			if err != nil {
				return recurrenceError(err)
			}
		}

		if err := tx.InsertSchedule(ctx, sched); err != nil {
			if errors.Is(err, model.ErrSlotTaken) {
				return conflict
			}
			return fmt.Errorf("insert schedule: %w", err)
		}
		if len(instances) > 0 {
			if err := tx.InsertInstances(ctx, instances); err != nil {
				return fmt.Errorf("insert instances: %w", err)
			}
		}
		return tx.AppendEvent(ctx, scheduleEvent(TopicScheduleCreated, sched, len(instances), actor, now))
	})
	if err != nil {
		return model.Schedule{}, 0, err
	}
	return sched, len(instances), nil
}

func recurrenceError(err error) error {
	switch {
	case errors.Is(err, recurrence.ErrMissingEndDate),
		errors.Is(err, recurrence.ErrEndNotAfterStart),
		errors.Is(err, recurrence.ErrTooManyInstances):
		return &ValidationError{Reason: err.Error()}
	default:
		return err
	}
}

// validateCreate checks references in a fixed order so callers always see
// the first failing one.
func (s *Service) validateCreate(ctx context.Context, in CreateInput, now time.Time) error {
	provider, err := s.repo.GetUser(ctx, in.ProviderID)
	if err := lookup(err, "provider"); err != nil {
		return err
	}
	if provider.Deleted() || provider.UserType != model.UserTypeProvider {
		return notFound("provider")
	}

	user, err := s.repo.GetUser(ctx, in.UserID)
	if err := lookup(err, "user"); err != nil {
		return err
	}
	if user.Deleted() {
		return notFound("user")
	}

	category, err := s.repo.GetCategory(ctx, in.CategoryID)
	if err := lookup(err, "category"); err != nil {
		return err
	}
	if category.Deleted() {
		return notFound("category")
	}

	product, err := s.repo.GetProduct(ctx, in.ProductID)
	if err := lookup(err, "product"); err != nil {
		return err
	}
	if product.Deleted() {
		return notFound("product")
	}

	tenant, err := s.repo.GetTenant(ctx, in.TenantID)
	if err := lookup(err, "tenant"); err != nil {
		return err
	}
	if !tenant.IsActive {
		return notFound("tenant")
	}

	if !in.Start.Before(in.End) {
		return invalid("start must be before end")
	}
	if in.Start.Before(now) {
		return invalid("cannot schedule in the past")
	}
	return nil
}

func lookup(err error, entity string) error {
	if errors.Is(err, model.ErrNotFound) {
		return notFound(entity)
	}
	return err
}

func (s *Service) Get(ctx context.Context, id string) (model.Schedule, error) {
	sched, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Schedule{}, lookup(err, "schedule")
	}
	return sched, nil
}

type UpdateInput struct {
	Start        *time.Time
	End          *time.Time
	Status       *model.Status
	CategoryID   *int64
	ProductID    *int64
	ServicePrice *int64
	Notes        *string
}

func (in UpdateInput) timeChanged() bool {
	return in.Start != nil || in.End != nil
}

// Update applies a partial change. The availability check runs again only
// when the window moves.
func (s *Service) Update(ctx context.Context, actor Actor, id string, in UpdateInput) (model.Schedule, error) {
	if in.Status != nil && !in.Status.Valid() {
		return model.Schedule{}, invalid("unknown status %q", *in.Status)
	}
	if in.CategoryID != nil {
		c, err := s.repo.GetCategory(ctx, *in.CategoryID)
		if err := lookup(err, "category"); err != nil {
			return model.Schedule{}, err
		}
		if c.Deleted() {
			return model.Schedule{}, notFound("category")
		}
	}
	if in.ProductID != nil {
		p, err := s.repo.GetProduct(ctx, *in.ProductID)
		if err := lookup(err, "product"); err != nil {
			return model.Schedule{}, err
		}
		if p.Deleted() {
			return model.Schedule{}, notFound("product")
		}
	}

	now := s.now()
	var updated model.Schedule
	err := s.repo.InTx(ctx, func(tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return lookup(err, "schedule")
		}
		next := cur
		if in.Start != nil {
			next.Start = *in.Start
		}
		if in.End != nil {
			next.End = *in.End
		}
		if !next.Start.Before(next.End) {
			return invalid("start must be before end")
		}
		if in.Status != nil {
			next.Status = *in.Status
		}
		if in.CategoryID != nil {
			next.CategoryID = *in.CategoryID
		}
		if in.ProductID != nil {
			next.ProductID = *in.ProductID
		}
		if in.ServicePrice != nil {
			next.ServicePrice = in.ServicePrice
		}
		if in.Notes != nil {
			next.Notes = *in.Notes
		}
		next.UpdatedAt = now
		next.UpdatedByID = actor.UserID

		conflict := &ConflictError{ProviderID: next.ProviderID, Start: next.Start, End: next.End}
		if in.timeChanged() {
			busy, err := tx.HasOverlap(ctx, next.ProviderID, next.Start, next.End, next.ID)
			if err != nil {
				return err
			}
			if busy {
				return conflict
			}
		}
		if err := tx.UpdateSchedule(ctx, next); err != nil {
			if errors.Is(err, model.ErrSlotTaken) {
				return conflict
			}
			return fmt.Errorf("update schedule: %w", err)
		}
		updated = next
		return tx.AppendEvent(ctx, scheduleEvent(TopicScheduleUpdated, next, 0, actor, now))
	})
	if err != nil {
		if IsConflict(err) {
			s.metrics.Conflict("update")
		}
		return model.Schedule{}, err
	}
	return updated, nil
}

// Cancel moves a schedule to cancelled, freeing its window. Cancelling an
// already cancelled schedule returns it unchanged.
func (s *Service) Cancel(ctx context.Context, actor Actor, id string) (model.Schedule, error) {
	now := s.now()
	var out model.Schedule
	err := s.repo.InTx(ctx, func(tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return lookup(err, "schedule")
		}
		if cur.Status == model.StatusCancelled {
			out = cur
			return nil
		}
		cur.Status = model.StatusCancelled
		cur.UpdatedAt = now
		cur.UpdatedByID = actor.UserID
		if err := tx.UpdateSchedule(ctx, cur); err != nil {
			return fmt.Errorf("cancel schedule: %w", err)
		}
		out = cur
		return tx.AppendEvent(ctx, scheduleEvent(TopicScheduleCancelled, cur, 0, actor, now))
	})
	if err != nil {
		return model.Schedule{}, err
	}
	return out, nil
}

// Delete tombstones a schedule. The row stays but disappears from every
// query and stops blocking availability.
func (s *Service) Delete(ctx context.Context, actor Actor, id string) error {
	now := s.now()
	return s.repo.InTx(ctx, func(tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return lookup(err, "schedule")
		}
		cur.DeletedAt = &now
		cur.UpdatedAt = now
		cur.UpdatedByID = actor.UserID
		if err := tx.UpdateSchedule(ctx, cur); err != nil {
			return fmt.Errorf("delete schedule: %w", err)
		}
		return tx.AppendEvent(ctx, scheduleEvent(TopicScheduleDeleted, cur, 0, actor, now))
	})
}
