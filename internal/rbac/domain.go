package rbac

import (
	"errors"
	"time"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// ErrInvalidRoleAssignment indicates that a role replacement referenced at
// least one unknown role. The whole mutation is aborted.
var ErrInvalidRoleAssignment = errors.New("rbac: invalid role assignment")

// Category groups permissions in the catalog.
type Category string

const (
	CategoryUser     Category = "USER"
	CategoryRole     Category = "ROLE"
	CategoryResource Category = "RESOURCE"
	CategorySystem   Category = "SYSTEM"
)

// Permission represents an atomic capability. Identity is immutable once
// created; deactivation is the only supported removal so audit references
// stay intact.
type Permission struct {
	ID          int64
	Name        string
	Description string
	Category    Category
	IsActive    bool
}

// Role represents a named permission bundle.
type Role struct {
	ID          int64
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Principal describes the authenticated actor.
type Principal interface {
	GetID() int64
	IsSuperUser() bool
	IsActiveAccount() bool
}
