package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, ob *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: ob}
}

var _ scheduling.Repository = (*Repository)(nil)

func (r *Repository) InTx(ctx context.Context, fn func(scheduling.Tx) error) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&txRepo{tx: tx, outbox: r.outbox})
	})
}

func (r *Repository) GetTenant(ctx context.Context, id int64) (model.Tenant, error) {
	var t model.Tenant
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(subdomain, ''), is_active
		FROM tenants
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Subdomain, &t.IsActive)
	return t, translate(err)
}

const userColumns = `id, email, username, full_name, user_type, is_active, is_super_admin, is_deleted, deleted_at`

// notDeleted matches model.*.Deleted for reference rows.
const notDeleted = `NOT is_deleted AND deleted_at IS NULL`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	var userType string
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &userType, &u.IsActive, &u.IsSuperAdmin, &u.IsDeleted, &u.DeletedAt)
	u.UserType = model.UserType(userType)
	return u, translate(err)
}

func (r *Repository) GetUser(ctx context.Context, id int64) (model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *Repository) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE lower(email) = lower($1) AND `+notDeleted+`
	`, strings.TrimSpace(email)))
}

func scanCategory(row pgx.Row) (model.Category, error) {
	var c model.Category
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.IsDeleted, &c.DeletedAt)
	return c, translate(err)
}

func (r *Repository) GetCategory(ctx context.Context, id int64) (model.Category, error) {
	return scanCategory(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, is_deleted, deleted_at FROM categories WHERE id = $1
	`, id))
}

func (r *Repository) FindCategoryByName(ctx context.Context, tenantID int64, name string) (model.Category, error) {
	return scanCategory(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, is_deleted, deleted_at
		FROM categories
		WHERE tenant_id = $1 AND lower(name) = lower($2) AND `+notDeleted+`
		ORDER BY id
		LIMIT 1
	`, tenantID, strings.TrimSpace(name)))
}

func scanProduct(row pgx.Row) (model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.TenantID, &p.CategoryID, &p.Name, &p.Price, &p.DurationMinutes, &p.IsDeleted, &p.DeletedAt)
	return p, translate(err)
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (model.Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, category_id, name, price, duration_minutes, is_deleted, deleted_at
		FROM products WHERE id = $1
	`, id))
}

func (r *Repository) FindProductByName(ctx context.Context, tenantID int64, name string) (model.Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, category_id, name, price, duration_minutes, is_deleted, deleted_at
		FROM products
		WHERE tenant_id = $1 AND lower(name) = lower($2) AND `+notDeleted+`
		ORDER BY id
		LIMIT 1
	`, tenantID, strings.TrimSpace(name)))
}

func (r *Repository) HasOverlap(ctx context.Context, providerID int64, start, end time.Time, excludeID string) (bool, error) {
	return hasOverlap(ctx, r.pool, providerID, start, end, excludeID)
}

func (r *Repository) Get(ctx context.Context, id string) (model.Schedule, error) {
	return getSchedule(ctx, r.pool, id, false)
}

func (r *Repository) List(ctx context.Context, f scheduling.Filter) ([]model.Schedule, error) {
	if f.TenantIDs != nil && len(f.TenantIDs) == 0 {
		return nil, nil
	}
	where, args := filterClause(f)
	sql := `SELECT ` + scheduleColumns + ` FROM schedules WHERE ` + where + ` ORDER BY start_time ASC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Skip > 0 {
		args = append(args, f.Skip)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Schedule, error) {
		return scanSchedule(row)
	})
}

// filterClause renders the WHERE clause for f. Soft-deleted rows never
// match.
func filterClause(f scheduling.Filter) (string, []any) {
	conds := []string{"NOT is_deleted"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.TenantIDs != nil {
		add("tenant_id = ANY($%d)", f.TenantIDs)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.ProviderID != 0 {
		add("provider_id = $%d", f.ProviderID)
	}
	if f.UserID != 0 {
		add("user_id = $%d", f.UserID)
	}
	if f.CategoryID != 0 {
		add("category_id = $%d", f.CategoryID)
	}
	if f.ProductID != 0 {
		add("product_id = $%d", f.ProductID)
	}
	if f.From != nil {
		add("start_time >= $%d", *f.From)
	}
	if f.To != nil {
		add("end_time <= $%d", *f.To)
	}
	return strings.Join(conds, " AND "), args
}

func (r *Repository) ListInstances(ctx context.Context, parentID string) ([]model.RecurringInstance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, parent_schedule_id::text, instance_date, status, notes, created_at
		FROM recurring_schedule_instances
		WHERE parent_schedule_id = $1
		ORDER BY instance_date ASC
	`, parentID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RecurringInstance, error) {
		return scanInstance(row)
	})
}

// CompleteEnded marks up to limit active schedules that ended at or before
// cutoff as completed and returns how many changed.
func (r *Repository) CompleteEnded(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET status = 'completed', updated_at = now()
		WHERE id IN (
			SELECT id FROM schedules
			WHERE status = 'active' AND NOT is_deleted AND end_time <= $1
			ORDER BY end_time
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
	`, cutoff, limit)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

type txRepo struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *txRepo) HasOverlap(ctx context.Context, providerID int64, start, end time.Time, excludeID string) (bool, error) {
	return hasOverlap(ctx, t.tx, providerID, start, end, excludeID)
}

func (t *txRepo) GetForUpdate(ctx context.Context, id string) (model.Schedule, error) {
	return getSchedule(ctx, t.tx, id, true)
}

func (t *txRepo) InsertSchedule(ctx context.Context, s model.Schedule) error {
	days, err := encodeDays(s.Recurrence.Days)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO schedules
			(id, tenant_id, provider_id, user_id, category_id, product_id, start_time, end_time, status,
			 service_price, notes, recurrence_type, recurrence_end_date, recurrence_days,
			 created_at, updated_at, created_by_id, updated_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, s.ID, s.TenantID, s.ProviderID, s.UserID, s.CategoryID, s.ProductID, s.Start, s.End, string(s.Status),
		s.ServicePrice, s.Notes, string(recurrenceType(s.Recurrence)), s.Recurrence.EndDate, days,
		s.CreatedAt, s.UpdatedAt, nullID(s.CreatedByID), nullID(s.UpdatedByID))
	return translate(err)
}

func (t *txRepo) UpdateSchedule(ctx context.Context, s model.Schedule) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE schedules
		SET start_time = $2,
			end_time = $3,
			status = $4,
			category_id = $5,
			product_id = $6,
			service_price = $7,
			notes = $8,
			updated_at = $9,
			updated_by_id = $10,
			is_deleted = $11,
			deleted_at = $12
		WHERE id = $1
	`, s.ID, s.Start, s.End, string(s.Status), s.CategoryID, s.ProductID, s.ServicePrice, s.Notes,
		s.UpdatedAt, nullID(s.UpdatedByID), s.Deleted(), s.DeletedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertInstances(ctx context.Context, instances []model.RecurringInstance) error {
	if len(instances) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(instances))
	for _, in := range instances {
		rows = append(rows, []any{in.ID, in.ParentID, in.InstanceDate, string(in.Status), in.Notes, in.CreatedAt})
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"recurring_schedule_instances"},
		[]string{"id", "parent_schedule_id", "instance_date", "status", "notes", "created_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (t *txRepo) GetInstanceForUpdate(ctx context.Context, parentID, instanceID string) (model.RecurringInstance, error) {
	return scanInstance(t.tx.QueryRow(ctx, `
		SELECT id::text, parent_schedule_id::text, instance_date, status, notes, created_at
		FROM recurring_schedule_instances
		WHERE id = $1 AND parent_schedule_id = $2
		FOR UPDATE
	`, instanceID, parentID))
}

func (t *txRepo) UpdateInstanceStatus(ctx context.Context, instanceID string, status model.Status) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE recurring_schedule_instances SET status = $2 WHERE id = $1
	`, instanceID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *txRepo) AppendEvent(ctx context.Context, e scheduling.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", e.Topic, err)
	}
	return t.outbox.Insert(ctx, t.tx, outbox.Event{
		AggregateType: "schedule",
		AggregateID:   e.AggregateID,
		EventType:     e.Topic,
		Payload:       payload,
	})
}

const scheduleColumns = `id::text, tenant_id, provider_id, user_id, category_id, product_id, start_time, end_time,
	status, service_price, notes, recurrence_type, recurrence_end_date, recurrence_days,
	created_at, updated_at, COALESCE(created_by_id, 0), COALESCE(updated_by_id, 0), deleted_at`

func scanSchedule(row pgx.Row) (model.Schedule, error) {
	var (
		s       model.Schedule
		status  string
		recType string
		rawDays []byte
	)
	err := row.Scan(
		&s.ID,
		&s.TenantID,
		&s.ProviderID,
		&s.UserID,
		&s.CategoryID,
		&s.ProductID,
		&s.Start,
		&s.End,
		&status,
		&s.ServicePrice,
		&s.Notes,
		&recType,
		&s.Recurrence.EndDate,
		&rawDays,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.CreatedByID,
		&s.UpdatedByID,
		&s.DeletedAt,
	)
	if err != nil {
		return model.Schedule{}, translate(err)
	}
	s.Status = model.Status(status)
	s.Recurrence.Type = model.RecurrenceType(recType)
	if len(rawDays) > 0 {
		if err := json.Unmarshal(rawDays, &s.Recurrence.Days); err != nil {
			return model.Schedule{}, fmt.Errorf("decode recurrence_days of %s: %w", s.ID, err)
		}
	}
	return s, nil
}

func getSchedule(ctx context.Context, q querier, id string, forUpdate bool) (model.Schedule, error) {
	sql := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1 AND NOT is_deleted`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	return scanSchedule(q.QueryRow(ctx, sql, id))
}

func hasOverlap(ctx context.Context, q querier, providerID int64, start, end time.Time, excludeID string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM schedules
			WHERE provider_id = $1
				AND status = 'active'
				AND NOT is_deleted
				AND start_time < $3
				AND end_time > $2
				AND ($4 = '' OR id::text <> $4)
		)
	`, providerID, start, end, excludeID).Scan(&exists)
	return exists, err
}

func scanInstance(row pgx.Row) (model.RecurringInstance, error) {
	var in model.RecurringInstance
	var status string
	err := row.Scan(&in.ID, &in.ParentID, &in.InstanceDate, &status, &in.Notes, &in.CreatedAt)
	in.Status = model.Status(status)
	return in, translate(err)
}

func recurrenceType(r model.Recurrence) model.RecurrenceType {
	if r.IsNone() {
		return model.RecurrenceNone
	}
	return r.Type
}

func encodeDays(days model.Weekdays) ([]byte, error) {
	if len(days) == 0 {
		return nil, nil
	}
	return json.Marshal(days)
}

func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

// translate maps driver errors onto the model sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case IsNotFound(err):
		return model.ErrNotFound
	case IsConflict(err):
		return model.ErrSlotTaken
	default:
		return err
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsConflict reports an exclusion constraint violation, i.e. an
// overlapping occupying schedule.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23P01"
	}
	return false
}
