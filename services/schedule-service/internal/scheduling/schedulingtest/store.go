// Package schedulingtest provides an in-memory scheduling.Repository for
// tests. It enforces the same no-overlap rule as the Postgres exclusion
// constraint and rolls back a transaction's writes when fn fails.
package schedulingtest

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/schedule-service/internal/scheduling"
)

type Store struct {
	mu         sync.Mutex
	tenants    map[int64]model.Tenant
	users      map[int64]model.User
	categories map[int64]model.Category
	products   map[int64]model.Product
	state      state

	// FailInstances makes the next InsertInstances call fail.
	FailInstances error
}

type state struct {
	schedules map[string]model.Schedule
	instances map[string]model.RecurringInstance
	events    []scheduling.Event
}

func (s state) clone() state {
	return state{
		schedules: maps.Clone(s.schedules),
		instances: maps.Clone(s.instances),
		events:    slices.Clone(s.events),
	}
}

func New() *Store {
	return &Store{
		tenants:    map[int64]model.Tenant{},
		users:      map[int64]model.User{},
		categories: map[int64]model.Category{},
		products:   map[int64]model.Product{},
		state: state{
			schedules: map[string]model.Schedule{},
			instances: map[string]model.RecurringInstance{},
		},
	}
}

func (s *Store) AddTenant(t model.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
}

func (s *Store) AddUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) AddCategory(c model.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
}

func (s *Store) AddProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// PutSchedule stores s directly, bypassing every check.
func (s *Store) PutSchedule(sched model.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.schedules[sched.ID] = sched
}

// Events returns the committed outbox events.
func (s *Store) Events() []scheduling.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.events)
}

// ScheduleCount counts stored rows, tombstoned ones included.
func (s *Store) ScheduleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.schedules)
}

func (s *Store) InstanceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.instances)
}

func (s *Store) GetTenant(_ context.Context, id int64) (model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.tenants, id)
}

func (s *Store) GetUser(_ context.Context, id int64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.users, id)
}

func (s *Store) GetCategory(_ context.Context, id int64) (model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.categories, id)
}

func (s *Store) GetProduct(_ context.Context, id int64) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.products, id)
}

// FindUserByEmail matches case-insensitively among non-deleted users.
func (s *Store) FindUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if !u.Deleted() && strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (s *Store) FindCategoryByName(_ context.Context, tenantID int64, name string) (model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.TenantID == tenantID && !c.Deleted() && strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return model.Category{}, model.ErrNotFound
}

func (s *Store) FindProductByName(_ context.Context, tenantID int64, name string) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.TenantID == tenantID && !p.Deleted() && strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return model.Product{}, model.ErrNotFound
}

func (s *Store) HasOverlap(_ context.Context, providerID int64, start, end time.Time, excludeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.overlaps(providerID, start, end, excludeID), nil
}

func (s *Store) Get(_ context.Context, id string) (model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.state.schedules[id]
	if !ok || sched.Deleted() {
		return model.Schedule{}, model.ErrNotFound
	}
	return sched, nil
}

func (s *Store) List(_ context.Context, f scheduling.Filter) ([]model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Schedule{}
	for _, sched := range s.state.schedules {
		if matches(sched, f) {
			out = append(out, sched)
		}
	}
	slices.SortFunc(out, func(a, b model.Schedule) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if f.Skip >= len(out) {
		return []model.Schedule{}, nil
	}
	out = out[f.Skip:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) ListInstances(_ context.Context, parentID string) ([]model.RecurringInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.RecurringInstance{}
	for _, inst := range s.state.instances {
		if inst.ParentID == parentID {
			out = append(out, inst)
		}
	}
	slices.SortFunc(out, func(a, b model.RecurringInstance) int {
		return a.InstanceDate.Compare(b.InstanceDate)
	})
	return out, nil
}

// CompleteEnded marks active schedules that ended before cutoff as
// completed and returns how many changed.
func (s *Store) CompleteEnded(_ context.Context, cutoff time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sched := range s.state.schedules {
		if limit > 0 && n >= limit {
			break
		}
		if sched.Deleted() || sched.Status != model.StatusActive || sched.End.After(cutoff) {
			continue
		}
		sched.Status = model.StatusCompleted
		sched.UpdatedAt = cutoff
		s.state.schedules[id] = sched
		n++
	}
	return n, nil
}

// InTx serializes transactions and applies fn's writes only on success.
func (s *Store) InTx(_ context.Context, fn func(scheduling.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, st: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.st
	return nil
}

func get[T any](m map[int64]T, id int64) (T, error) {
	v, ok := m[id]
	if !ok {
		var zero T
		return zero, model.ErrNotFound
	}
	return v, nil
}

func (st state) overlaps(providerID int64, start, end time.Time, excludeID string) bool {
	for _, sched := range st.schedules {
		if sched.ID == excludeID || sched.ProviderID != providerID {
			continue
		}
		if sched.Blocks(start, end) {
			return true
		}
	}
	return false
}

func matches(s model.Schedule, f scheduling.Filter) bool {
	switch {
	case s.Deleted():
		return false
	case f.TenantIDs != nil && !slices.Contains(f.TenantIDs, s.TenantID):
		return false
	case f.Status != "" && s.Status != f.Status:
		return false
	case f.ProviderID != 0 && s.ProviderID != f.ProviderID:
		return false
	case f.UserID != 0 && s.UserID != f.UserID:
		return false
	case f.CategoryID != 0 && s.CategoryID != f.CategoryID:
		return false
	case f.ProductID != 0 && s.ProductID != f.ProductID:
		return false
	case f.From != nil && s.Start.Before(*f.From):
		return false
	case f.To != nil && s.End.After(*f.To):
		return false
	}
	return true
}

type memTx struct {
	store *Store
	st    state
}

func (t *memTx) HasOverlap(_ context.Context, providerID int64, start, end time.Time, excludeID string) (bool, error) {
	return t.st.overlaps(providerID, start, end, excludeID), nil
}

func (t *memTx) GetForUpdate(_ context.Context, id string) (model.Schedule, error) {
	sched, ok := t.st.schedules[id]
	if !ok || sched.Deleted() {
		return model.Schedule{}, model.ErrNotFound
	}
	return sched, nil
}

func (t *memTx) InsertSchedule(_ context.Context, s model.Schedule) error {
	if s.Status.Occupying() && t.st.overlaps(s.ProviderID, s.Start, s.End, s.ID) {
		return model.ErrSlotTaken
	}
	t.st.schedules[s.ID] = s
	return nil
}

func (t *memTx) UpdateSchedule(_ context.Context, s model.Schedule) error {
	if _, ok := t.st.schedules[s.ID]; !ok {
		return model.ErrNotFound
	}
	if !s.Deleted() && s.Status.Occupying() && t.st.overlaps(s.ProviderID, s.Start, s.End, s.ID) {
		return model.ErrSlotTaken
	}
	t.st.schedules[s.ID] = s
	return nil
}

func (t *memTx) InsertInstances(_ context.Context, instances []model.RecurringInstance) error {
	if err := t.store.FailInstances; err != nil {
		t.store.FailInstances = nil
		return err
	}
	for _, inst := range instances {
		t.st.instances[inst.ID] = inst
	}
	return nil
}

func (t *memTx) GetInstanceForUpdate(_ context.Context, parentID, instanceID string) (model.RecurringInstance, error) {
	inst, ok := t.st.instances[instanceID]
	if !ok || inst.ParentID != parentID {
		return model.RecurringInstance{}, model.ErrNotFound
	}
	return inst, nil
}

func (t *memTx) UpdateInstanceStatus(_ context.Context, instanceID string, status model.Status) error {
	inst, ok := t.st.instances[instanceID]
	if !ok {
		return model.ErrNotFound
	}
	inst.Status = status
	t.st.instances[instanceID] = inst
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, e scheduling.Event) error {
	t.st.events = append(t.st.events, e)
	return nil
}

var _ scheduling.Repository = (*Store)(nil)
