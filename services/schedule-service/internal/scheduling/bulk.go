package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/batch"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
)

// MaxBulkDays bounds the date range of one bulk request.
const MaxBulkDays = 366

type BulkInput struct {
	TenantID     int64
	ProviderID   int64
	UserID       int64
	CategoryID   int64
	ProductID    int64
	Days         model.Weekdays
	StartTime    availability.ClockTime
	EndTime      availability.ClockTime
	StartDate    time.Time
	EndDate      *time.Time // defaults to StartDate + 365 days
	ServicePrice *int64
}

type BulkResult struct {
	Schedules []model.Schedule `json:"schedules"`
	Ledger    *batch.Ledger    `json:"ledger"`
}

// CreateBulk books one single schedule per matching weekday in the date
// range. Each day goes through Create; a failing day lands in the ledger
// and the loop moves on.
func (s *Service) CreateBulk(ctx context.Context, actor Actor, in BulkInput) (BulkResult, error) {
	if len(in.Days) == 0 {
		return BulkResult{}, invalid("at least one weekday is required")
	}
	if !in.StartTime.Before(in.EndTime) {
		return BulkResult{}, invalid("start_time must be before end_time")
	}
	first := dateOnly(in.StartDate, s.loc)
	last := first.AddDate(0, 0, 365)
	if in.EndDate != nil {
		last = dateOnly(*in.EndDate, s.loc)
	}
	if last.Before(first) {
		return BulkResult{}, invalid("end_date must not be before start_date")
	}
	if last.After(first.AddDate(0, 0, MaxBulkDays)) {
		return BulkResult{}, invalid("date range must not exceed %d days", MaxBulkDays)
	}

	res := BulkResult{Schedules: []model.Schedule{}, Ledger: batch.NewLedger()}
	row := 0
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if !in.Days.Contains(day.Weekday()) {
			continue
		}
		row++
		if err := ctx.Err(); err != nil {
			return res, err
		}

		window := availability.DayWindow(day, in.StartTime, in.EndTime, s.loc)
		data := map[string]string{"date": day.Format(time.DateOnly)}
		sched, _, err := s.create(ctx, actor, CreateInput{
			TenantID:     in.TenantID,
			ProviderID:   in.ProviderID,
			UserID:       in.UserID,
			CategoryID:   in.CategoryID,
			ProductID:    in.ProductID,
			Start:        window.Start,
			End:          window.End,
			ServicePrice: in.ServicePrice,
			Recurrence:   model.Recurrence{Type: model.RecurrenceNone},
		})
		switch {
		case err == nil:
			res.Schedules = append(res.Schedules, sched)
			res.Ledger.Created()
			s.metrics.BulkDay("created")
		case IsConflict(err):
			res.Ledger.Conflict(row, err.Error(), data)
			s.metrics.BulkDay("conflict")
		case IsNotFound(err), IsValidation(err):
			res.Ledger.Error(row, err.Error(), data)
			s.metrics.BulkDay("error")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return res, err
		default:
			s.logger.Error("bulk day failed", "date", data["date"], "err", err)
			res.Ledger.Error(row, "internal error", data)
			s.metrics.BulkDay("error")
		}
	}

	s.metrics.Created("bulk", len(res.Schedules))
	s.logger.Info("bulk schedules created",
		"tenant_id", in.TenantID,
		"provider_id", in.ProviderID,
		"created", len(res.Schedules),
		"failed", res.Ledger.Failed(),
	)
	return res, nil
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
