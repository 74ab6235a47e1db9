package scheduling_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling/schedulingtest"
)

const (
	tenantID   int64 = 1
	providerID int64 = 10
	clientID   int64 = 20
	categoryID int64 = 30
	productID  int64 = 40
)

var (
	now   = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	actor = scheduling.Actor{UserID: 99, TenantIDs: []int64{tenantID}}
)

func newFixture(t *testing.T) (*scheduling.Service, *schedulingtest.Store) {
	t.Helper()
	store := schedulingtest.New()
	store.AddTenant(model.Tenant{ID: tenantID, Name: "Clinic", IsActive: true})
	store.AddTenant(model.Tenant{ID: 2, Name: "Closed", IsActive: false})
	store.AddUser(model.User{ID: providerID, Email: "dr@clinic.test", UserType: model.UserTypeProvider, IsActive: true})
	store.AddUser(model.User{ID: clientID, Email: "pat@clinic.test", UserType: model.UserTypeClient, IsActive: true})
	store.AddCategory(model.Category{ID: categoryID, TenantID: tenantID, Name: "Dental"})
	store.AddProduct(model.Product{ID: productID, TenantID: tenantID, CategoryID: categoryID, Name: "Cleaning", Price: 40000})

	svc := scheduling.NewService(store, nil, scheduling.Options{
		Now:          func() time.Time { return now },
		MaxInstances: 500,
	})
	return svc, store
}

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 6, day, hour, minute, 0, 0, time.UTC)
}

func input(start, end time.Time) scheduling.CreateInput {
	return scheduling.CreateInput{
		TenantID:   tenantID,
		ProviderID: providerID,
		UserID:     clientID,
		CategoryID: categoryID,
		ProductID:  productID,
		Start:      start,
		End:        end,
	}
}

func TestCreateConflict(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, actor, input(at(1, 9, 0), at(1, 10, 0)))
	if err != nil {
		t.Fatalf("create A: %v", err)
	}
	if a.Status != model.StatusActive || a.CreatedByID != actor.UserID || a.UpdatedByID != actor.UserID {
		t.Fatalf("unexpected schedule %+v", a)
	}

	_, err = svc.Create(ctx, actor, input(at(1, 9, 30), at(1, 10, 30)))
	var conflict *scheduling.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.ProviderID != providerID {
		t.Fatalf("unexpected conflict %+v", conflict)
	}
	if store.ScheduleCount() != 1 {
		t.Fatalf("conflicting schedule must not be stored")
	}
}

func TestCreateAdjacentAllowed(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, actor, input(at(1, 9, 0), at(1, 10, 0))); err != nil {
		t.Fatalf("create A: %v", err)
	}
	if _, err := svc.Create(ctx, actor, input(at(1, 10, 0), at(1, 11, 0))); err != nil {
		t.Fatalf("adjacent create B: %v", err)
	}
}

func TestCreateValidationOrder(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()
	deleted := now
	store.AddUser(model.User{ID: 11, UserType: model.UserTypeClient})
	store.AddUser(model.User{ID: 12, UserType: model.UserTypeProvider, DeletedAt: &deleted})
	store.AddCategory(model.Category{ID: 31, TenantID: tenantID, DeletedAt: &deleted})
	store.AddProduct(model.Product{ID: 41, TenantID: tenantID, CategoryID: categoryID, IsDeleted: true})

	cases := []struct {
		name   string
		mutate func(*scheduling.CreateInput)
		check  func(error) bool
		want   string
	}{
		{"missing provider", func(in *scheduling.CreateInput) { in.ProviderID = 404 }, scheduling.IsNotFound, "provider not found"},
		{"not a provider", func(in *scheduling.CreateInput) { in.ProviderID = 11 }, scheduling.IsNotFound, "provider not found"},
		{"deleted provider", func(in *scheduling.CreateInput) { in.ProviderID = 12 }, scheduling.IsNotFound, "provider not found"},
		{"provider checked before user", func(in *scheduling.CreateInput) { in.ProviderID = 404; in.UserID = 404 }, scheduling.IsNotFound, "provider not found"},
		{"missing user", func(in *scheduling.CreateInput) { in.UserID = 404 }, scheduling.IsNotFound, "user not found"},
		{"deleted category", func(in *scheduling.CreateInput) { in.CategoryID = 31 }, scheduling.IsNotFound, "category not found"},
		{"flagged product without timestamp", func(in *scheduling.CreateInput) { in.ProductID = 41 }, scheduling.IsNotFound, "product not found"},
		{"missing product", func(in *scheduling.CreateInput) { in.ProductID = 404 }, scheduling.IsNotFound, "product not found"},
		{"inactive tenant", func(in *scheduling.CreateInput) { in.TenantID = 2 }, scheduling.IsNotFound, "tenant not found"},
		{"missing tenant", func(in *scheduling.CreateInput) { in.TenantID = 404 }, scheduling.IsNotFound, "tenant not found"},
		{"equal bounds", func(in *scheduling.CreateInput) { in.End = in.Start }, scheduling.IsValidation, "start must be before end"},
		{"inverted bounds", func(in *scheduling.CreateInput) { in.End = in.Start.Add(-time.Hour) }, scheduling.IsValidation, "start must be before end"},
		{"past start", func(in *scheduling.CreateInput) {
			in.Start = now.Add(-time.Minute)
			in.End = now.Add(time.Hour)
		}, scheduling.IsValidation, "cannot schedule in the past"},
		{"tenant checked before dates", func(in *scheduling.CreateInput) { in.TenantID = 404; in.End = in.Start }, scheduling.IsNotFound, "tenant not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := input(at(2, 9, 0), at(2, 10, 0))
			tc.mutate(&in)
			_, err := svc.Create(ctx, actor, in)
			if err == nil || !tc.check(err) || err.Error() != tc.want {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
		})
	}
	if store.ScheduleCount() != 0 {
		t.Fatal("failed creations must not store anything")
	}
}

func TestCreateRecurringMaterializesInstances(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()

	end := at(8, 23, 0)
	in := input(at(2, 9, 0), at(2, 10, 0))
	in.Recurrence = model.Recurrence{Type: model.RecurrenceDaily, EndDate: &end}

	parent, err := svc.Create(ctx, actor, in)
	if err != nil {
		t.Fatalf("create recurring: %v", err)
	}
	instances, err := svc.Instances(ctx, parent.ID)
	if err != nil {
		t.Fatalf("instances: %v", err)
	}
	if len(instances) != 7 {
		t.Fatalf("expected 7 daily instances, got %d", len(instances))
	}
	for _, inst := range instances {
		if inst.Status != parent.Status || inst.ParentID != parent.ID {
			t.Fatalf("unexpected instance %+v", inst)
		}
	}
	events := store.Events()
	if len(events) != 1 || events[0].Topic != scheduling.TopicScheduleCreated {
		t.Fatalf("expected one created event, got %+v", events)
	}
}

func TestCreateRecurringValidation(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()

	in := input(at(2, 9, 0), at(2, 10, 0))
	in.Recurrence = model.Recurrence{Type: model.RecurrenceWeekly}
	if _, err := svc.Create(ctx, actor, in); !scheduling.IsValidation(err) {
		t.Fatalf("expected validation error for missing end date, got %v", err)
	}

	before := at(1, 9, 0)
	in.Recurrence.EndDate = &before
	if _, err := svc.Create(ctx, actor, in); !scheduling.IsValidation(err) {
		t.Fatalf("expected validation error for end before start, got %v", err)
	}

	far := at(2, 9, 0).AddDate(5, 0, 0)
	in.Recurrence = model.Recurrence{Type: model.RecurrenceDaily, EndDate: &far}
	if _, err := svc.Create(ctx, actor, in); !scheduling.IsValidation(err) {
		t.Fatalf("expected validation error for too many instances, got %v", err)
	}
	if store.ScheduleCount() != 0 || store.InstanceCount() != 0 {
		t.Fatal("nothing should be stored")
	}
}

func TestCreateRecurringRollsBack(t *testing.T) {
	svc, store := newFixture(t)
	store.FailInstances = errors.New("disk full")

	end := at(5, 23, 0)
	in := input(at(2, 9, 0), at(2, 10, 0))
	in.Recurrence = model.Recurrence{Type: model.RecurrenceDaily, EndDate: &end}
	if _, err := svc.Create(context.Background(), actor, in); err == nil {
		t.Fatal("expected failure")
	}
	if store.ScheduleCount() != 0 || store.InstanceCount() != 0 || len(store.Events()) != 0 {
		t.Fatal("parent, instances and events must roll back together")
	}
}

func TestCancelFreesSlotAndIsIdempotent(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, actor, input(at(3, 9, 0), at(3, 10, 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cancelled, err := svc.Cancel(ctx, actor, a.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	ok, err := svc.IsAvailable(ctx, providerID, at(3, 9, 0), at(3, 10, 0), "")
	if err != nil || !ok {
		t.Fatalf("cancelled schedule should free the slot: %v %v", ok, err)
	}

	again, err := svc.Cancel(ctx, actor, a.ID)
	if err != nil || again.Status != model.StatusCancelled {
		t.Fatalf("second cancel: %+v %v", again, err)
	}
	if n := len(store.Events()); n != 2 {
		t.Fatalf("expected created + cancelled events only, got %d", n)
	}

	if _, err := svc.Create(ctx, actor, input(at(3, 9, 0), at(3, 10, 0))); err != nil {
		t.Fatalf("rebooking freed slot: %v", err)
	}
	if _, err := svc.Cancel(ctx, actor, "missing"); !scheduling.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateRechecksOnlyWhenTimeChanges(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, actor, input(at(4, 9, 0), at(4, 10, 0)))
	if err != nil {
		t.Fatalf("create A: %v", err)
	}
	b, err := svc.Create(ctx, actor, input(at(4, 11, 0), at(4, 12, 0)))
	if err != nil {
		t.Fatalf("create B: %v", err)
	}

	// moving A within its own window does not conflict with itself
	newEnd := at(4, 10, 30)
	got, err := svc.Update(ctx, actor, a.ID, scheduling.UpdateInput{End: &newEnd})
	if err != nil || !got.End.Equal(newEnd) {
		t.Fatalf("extend A: %+v %v", got, err)
	}
	if got.UpdatedByID != actor.UserID {
		t.Fatalf("updated_by not stamped: %+v", got)
	}

	clash := at(4, 11, 30)
	if _, err := svc.Update(ctx, actor, a.ID, scheduling.UpdateInput{End: &clash}); !scheduling.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	notes := "bring x-rays"
	if _, err := svc.Update(ctx, actor, b.ID, scheduling.UpdateInput{Notes: &notes}); err != nil {
		t.Fatalf("notes-only update: %v", err)
	}

	early := at(4, 13, 0)
	if _, err := svc.Update(ctx, actor, b.ID, scheduling.UpdateInput{Start: &early}); !scheduling.IsValidation(err) {
		t.Fatalf("expected validation error for start after end, got %v", err)
	}
	if _, err := svc.Update(ctx, actor, "missing", scheduling.UpdateInput{Notes: &notes}); !scheduling.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReactivatingOverlappingScheduleConflicts(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	a, _ := svc.Create(ctx, actor, input(at(5, 9, 0), at(5, 10, 0)))
	if _, err := svc.Cancel(ctx, actor, a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Create(ctx, actor, input(at(5, 9, 0), at(5, 10, 0))); err != nil {
		t.Fatalf("rebook: %v", err)
	}
	active := model.StatusActive
	if _, err := svc.Update(ctx, actor, a.ID, scheduling.UpdateInput{Status: &active}); !scheduling.IsConflict(err) {
		t.Fatalf("expected conflict from storage rule, got %v", err)
	}
}

func TestDeleteHidesSchedule(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()

	a, _ := svc.Create(ctx, actor, input(at(6, 9, 0), at(6, 10, 0)))
	if err := svc.Delete(ctx, actor, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, a.ID); !scheduling.IsNotFound(err) {
		t.Fatalf("expected deleted schedule to be hidden, got %v", err)
	}
	if store.ScheduleCount() != 1 {
		t.Fatal("soft delete must keep the row")
	}
	ok, _ := svc.IsAvailable(ctx, providerID, at(6, 9, 0), at(6, 10, 0), "")
	if !ok {
		t.Fatal("deleted schedule must not block")
	}
}

func TestCancelInstance(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	end := at(23, 23, 0)
	in := input(at(2, 9, 0), at(2, 10, 0))
	in.Recurrence = model.Recurrence{Type: model.RecurrenceWeekly, EndDate: &end}
	parent, err := svc.Create(ctx, actor, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	instances, _ := svc.Instances(ctx, parent.ID)
	if len(instances) != 4 {
		t.Fatalf("expected 4 weekly instances, got %d", len(instances))
	}

	got, err := svc.CancelInstance(ctx, actor, parent.ID, instances[1].ID)
	if err != nil || got.Status != model.StatusCancelled {
		t.Fatalf("cancel instance: %+v %v", got, err)
	}
	after, _ := svc.Instances(ctx, parent.ID)
	for i, inst := range after {
		want := model.StatusActive
		if i == 1 {
			want = model.StatusCancelled
		}
		if inst.Status != want {
			t.Fatalf("instance %d status %s, want %s", i, inst.Status, want)
		}
	}
	p, _ := svc.Get(ctx, parent.ID)
	if p.Status != model.StatusActive {
		t.Fatal("parent must be untouched")
	}
	if _, err := svc.CancelInstance(ctx, actor, parent.ID, "missing"); !scheduling.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRequireTenant(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	if err := svc.RequireTenant(ctx, actor, tenantID); err != nil {
		t.Fatalf("member access: %v", err)
	}
	if err := svc.RequireTenant(ctx, actor, 3); !errors.Is(err, scheduling.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	admin := scheduling.Actor{UserID: 1, SuperAdmin: true}
	if err := svc.RequireTenant(ctx, admin, 2); !scheduling.IsNotFound(err) {
		t.Fatalf("expected inactive tenant to be not found, got %v", err)
	}
}

func TestCreatedMetricFollowsRecurrenceType(t *testing.T) {
	_, store := newFixture(t)
	m := metrics.New(prometheus.NewRegistry())
	svc := scheduling.NewService(store, nil, scheduling.Options{
		Now:     func() time.Time { return now },
		Metrics: m,
	})
	ctx := context.Background()

	// Monday start with a Sunday-only filter ending Friday expands to nothing.
	in := input(at(2, 9, 0), at(2, 10, 0))
	end := at(6, 23, 0)
	in.Recurrence = model.Recurrence{Type: model.RecurrenceWeekly, EndDate: &end, Days: model.Weekdays{time.Sunday}}
	if _, err := svc.Create(ctx, actor, in); err != nil {
		t.Fatalf("create recurring: %v", err)
	}
	if _, err := svc.Create(ctx, actor, input(at(3, 9, 0), at(3, 10, 0))); err != nil {
		t.Fatalf("create single: %v", err)
	}

	if got := testutil.ToFloat64(m.SchedulesCreated.WithLabelValues("recurring")); got != 1 {
		t.Fatalf("expected 1 recurring, got %v", got)
	}
	if got := testutil.ToFloat64(m.SchedulesCreated.WithLabelValues("single")); got != 1 {
		t.Fatalf("expected 1 single, got %v", got)
	}
}
