package model

import "time"

type UserType string

const (
	UserTypeProvider UserType = "provider"
	UserTypeClient   UserType = "client"
	UserTypeStaff    UserType = "staff"
)

type Tenant struct {
	ID        int64
	Name      string
	Subdomain string
	IsActive  bool
}

// Reference rows carry both a deleted flag and a timestamp; either one
// marks the row as gone.
type User struct {
	ID           int64
	Email        string
	Username     string
	FullName     string
	UserType     UserType
	IsActive     bool
	IsSuperAdmin bool
	IsDeleted    bool
	DeletedAt    *time.Time
}

func (u User) Deleted() bool { return u.IsDeleted || u.DeletedAt != nil }

type Category struct {
	ID        int64
	TenantID  int64
	Name      string
	IsDeleted bool
	DeletedAt *time.Time
}

func (c Category) Deleted() bool { return c.IsDeleted || c.DeletedAt != nil }

type Product struct {
	ID              int64
	TenantID        int64
	CategoryID      int64
	Name            string
	Price           int64
	DurationMinutes int
	IsDeleted       bool
	DeletedAt       *time.Time
}

func (p Product) Deleted() bool { return p.IsDeleted || p.DeletedAt != nil }
