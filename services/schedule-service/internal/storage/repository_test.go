package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/storage/migrations"
)

type fixture struct {
	tenantID, providerID, clientID, categoryID, productID int64
}

func openTestRepo(t *testing.T) (*Repository, *db.Pool, fixture) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := db.Migrate(url, migrations.FS, "."); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.Options{MaxConns: 4})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(pool.Close)

	var fx fixture
	suffix := uuid.NewString()[:8]
	steps := []struct {
		sql  string
		args []any
		dst  *int64
	}{
		{`INSERT INTO tenants (name) VALUES ($1) RETURNING id`, []any{"clinic-" + suffix}, &fx.tenantID},
		{`INSERT INTO users (email, username, hashed_password, user_type) VALUES ($1, $1, 'x', 'provider') RETURNING id`, []any{"prov-" + suffix + "@example.com"}, &fx.providerID},
		{`INSERT INTO users (email, username, hashed_password) VALUES ($1, $1, 'x') RETURNING id`, []any{"client-" + suffix + "@example.com"}, &fx.clientID},
	}
	for _, s := range steps {
		if err := pool.QueryRow(ctx, s.sql, s.args...).Scan(s.dst); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := pool.QueryRow(ctx, `INSERT INTO categories (tenant_id, name) VALUES ($1, 'Therapy') RETURNING id`, fx.tenantID).Scan(&fx.categoryID); err != nil {
		t.Fatalf("seed category: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO products (tenant_id, category_id, name, price) VALUES ($1, $2, 'Session', 15000) RETURNING id
	`, fx.tenantID, fx.categoryID).Scan(&fx.productID); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return NewRepository(pool, outbox.NewRepository()), pool, fx
}

func (fx fixture) schedule(start time.Time, d time.Duration) model.Schedule {
	now := time.Now().UTC()
	return model.Schedule{
		ID:         uuid.NewString(),
		TenantID:   fx.tenantID,
		ProviderID: fx.providerID,
		UserID:     fx.clientID,
		CategoryID: fx.categoryID,
		ProductID:  fx.productID,
		Start:      start,
		End:        start.Add(d),
		Status:     model.StatusActive,
		Recurrence: model.Recurrence{Type: model.RecurrenceWeekly, Days: model.Weekdays{time.Wednesday, time.Monday}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestExclusionConstraintRejectsOverlap(t *testing.T) {
	repo, _, fx := openTestRepo(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)

	first := fx.schedule(start, time.Hour)
	if err := repo.InTx(ctx, func(tx scheduling.Tx) error { return tx.InsertSchedule(ctx, first) }); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Recurrence.Days) != 2 || got.Recurrence.Days[0] != time.Monday {
		t.Fatalf("recurrence days not round-tripped: %v", got.Recurrence.Days)
	}

	// Skips HasOverlap on purpose: the constraint alone must reject it.
	second := fx.schedule(start.Add(30*time.Minute), time.Hour)
	err = repo.InTx(ctx, func(tx scheduling.Tx) error { return tx.InsertSchedule(ctx, second) })
	if !errors.Is(err, model.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}

	adjacent := fx.schedule(start.Add(time.Hour), time.Hour)
	if err := repo.InTx(ctx, func(tx scheduling.Tx) error { return tx.InsertSchedule(ctx, adjacent) }); err != nil {
		t.Fatalf("adjacent insert should succeed: %v", err)
	}
}

func TestConcurrentCreatesOneWins(t *testing.T) {
	repo, _, fx := openTestRepo(t)
	now := time.Now().UTC()
	svc := scheduling.NewService(repo, nil, scheduling.Options{Now: func() time.Time { return now }})
	start := now.Add(72 * time.Hour).Truncate(time.Hour)
	actor := scheduling.Actor{UserID: fx.providerID, SuperAdmin: true}

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), actor, scheduling.CreateInput{
				TenantID:   fx.tenantID,
				ProviderID: fx.providerID,
				UserID:     fx.clientID,
				CategoryID: fx.categoryID,
				ProductID:  fx.productID,
				Start:      start,
				End:        start.Add(time.Hour),
			})
		}(i)
	}
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case scheduling.IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d/%d", n-1, ok, conflicts)
	}
}

func TestCompleteEndedAndOutbox(t *testing.T) {
	repo, pool, fx := openTestRepo(t)
	ctx := context.Background()
	past := fx.schedule(time.Now().UTC().Add(-3*time.Hour), time.Hour)
	err := repo.InTx(ctx, func(tx scheduling.Tx) error {
		if err := tx.InsertSchedule(ctx, past); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, scheduling.Event{Topic: scheduling.TopicScheduleCreated, AggregateID: past.ID, Payload: map[string]string{"schedule_id": past.ID}})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	var pending int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM outbox_events WHERE aggregate_id = $1 AND published_at IS NULL`, past.ID).Scan(&pending); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected 1 pending outbox row, got %d", pending)
	}

	if _, err := repo.CompleteEnded(ctx, time.Now().UTC(), 1000); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := repo.Get(ctx, past.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestFilterClause(t *testing.T) {
	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	where, args := filterClause(scheduling.Filter{TenantIDs: []int64{1, 2}, ProviderID: 10, From: &from})
	want := "NOT is_deleted AND tenant_id = ANY($1) AND provider_id = $2 AND start_time >= $3"
	if where != want {
		t.Fatalf("unexpected where:\n got %s\nwant %s", where, want)
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(args))
	}
}
