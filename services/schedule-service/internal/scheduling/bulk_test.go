package scheduling_test

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling"
)

func bulkInput(t *testing.T, days ...string) scheduling.BulkInput {
	t.Helper()
	wd, err := model.ParseWeekdays(days)
	if err != nil {
		t.Fatalf("ParseWeekdays: %v", err)
	}
	from, _ := availability.ParseClock("09:00")
	to, _ := availability.ParseClock("10:00")
	end := at(15, 0, 0) // 14 days starting on monday June 2
	return scheduling.BulkInput{
		TenantID:   tenantID,
		ProviderID: providerID,
		UserID:     clientID,
		CategoryID: categoryID,
		ProductID:  productID,
		Days:       wd,
		StartTime:  from,
		EndTime:    to,
		StartDate:  at(2, 0, 0),
		EndDate:    &end,
	}
}

func TestCreateBulkTwoWeeks(t *testing.T) {
	svc, _ := newFixture(t)

	res, err := svc.CreateBulk(context.Background(), actor, bulkInput(t, "monday", "wednesday"))
	if err != nil {
		t.Fatalf("CreateBulk: %v", err)
	}
	if len(res.Schedules) != 4 {
		t.Fatalf("expected 4 schedules, got %d", len(res.Schedules))
	}
	for _, s := range res.Schedules {
		wd := s.Start.Weekday()
		if wd != time.Monday && wd != time.Wednesday {
			t.Fatalf("unexpected weekday %s", wd)
		}
		if s.Start.Hour() != 9 || s.End.Hour() != 10 || !s.Recurrence.IsNone() {
			t.Fatalf("unexpected schedule %+v", s)
		}
	}
	if res.Ledger.NewRecords != 4 || res.Ledger.Failed() != 0 {
		t.Fatalf("unexpected ledger %+v", res.Ledger)
	}
}

func TestCreateBulkRecordsConflicts(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	// occupy wednesday June 4
	if _, err := svc.Create(ctx, actor, input(at(4, 9, 30), at(4, 10, 30))); err != nil {
		t.Fatalf("seed: %v", err)
	}
	res, err := svc.CreateBulk(ctx, actor, bulkInput(t, "monday", "wednesday"))
	if err != nil {
		t.Fatalf("CreateBulk: %v", err)
	}
	if len(res.Schedules) != 3 {
		t.Fatalf("expected 3 schedules, got %d", len(res.Schedules))
	}
	if len(res.Ledger.ConflictsFound) != 1 || res.Ledger.ConflictsFound[0].Data["date"] != "2025-06-04" {
		t.Fatalf("expected conflict on 2025-06-04, got %+v", res.Ledger.ConflictsFound)
	}
	if res.Ledger.TotalRecords != 4 {
		t.Fatalf("expected 4 total, got %d", res.Ledger.TotalRecords)
	}
}

func TestCreateBulkPastDaysGoToLedger(t *testing.T) {
	svc, _ := newFixture(t)
	in := bulkInput(t, "thursday")
	in.StartDate = time.Date(2025, 4, 24, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 5, 8, 0, 0, 0, 0, time.UTC)
	in.EndDate = &end

	res, err := svc.CreateBulk(context.Background(), actor, in)
	if err != nil {
		t.Fatalf("CreateBulk: %v", err)
	}
	// April 24 is past; May 1 09:00 is an hour after now
	if len(res.Schedules) != 2 || len(res.Ledger.Errors) != 1 {
		t.Fatalf("expected 2 created and 1 error, got %d / %+v", len(res.Schedules), res.Ledger.Errors)
	}
}

func TestCreateBulkValidation(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	in := bulkInput(t)
	if _, err := svc.CreateBulk(ctx, actor, in); !scheduling.IsValidation(err) {
		t.Fatalf("expected validation error without weekdays, got %v", err)
	}

	in = bulkInput(t, "monday")
	in.StartTime, in.EndTime = in.EndTime, in.StartTime
	if _, err := svc.CreateBulk(ctx, actor, in); !scheduling.IsValidation(err) {
		t.Fatalf("expected validation error for inverted times, got %v", err)
	}

	in = bulkInput(t, "monday")
	far := in.StartDate.AddDate(2, 0, 0)
	in.EndDate = &far
	if _, err := svc.CreateBulk(ctx, actor, in); !scheduling.IsValidation(err) {
		t.Fatalf("expected validation error for long range, got %v", err)
	}
}

func TestCreateBulkDefaultRange(t *testing.T) {
	svc, _ := newFixture(t)
	in := bulkInput(t, "sunday")
	in.EndDate = nil

	res, err := svc.CreateBulk(context.Background(), actor, in)
	if err != nil {
		t.Fatalf("CreateBulk: %v", err)
	}
	if n := len(res.Schedules); n < 52 || n > 53 {
		t.Fatalf("expected a year of sundays, got %d", n)
	}
}
