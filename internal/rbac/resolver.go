package rbac

import (
	"context"
	"strings"
)

// ResolverStore is the read access the resolver needs. *Repository satisfies
// it; tests use in-memory fakes.
type ResolverStore interface {
	EffectivePermissionNames(ctx context.Context, userID int64) ([]string, error)
	AllActivePermissionNames(ctx context.Context) ([]string, error)
	HasActivePermission(ctx context.Context, userID int64, name string) (bool, error)
	RoleNamesForUser(ctx context.Context, userID int64) ([]string, error)
}

// Resolver answers permission queries. It is stateless and re-reads stored
// role/permission state on every call, so a role mutation committed before a
// check is always reflected in the answer. No cache sits between a check and
// the store.
type Resolver struct {
	store ResolverStore
}

// NewResolver constructs a Resolver.
func NewResolver(store ResolverStore) *Resolver {
	return &Resolver{store: store}
}

// HasPermission reports whether the principal holds the named permission.
// Inactive accounts resolve to false for every permission, with no override.
func (r *Resolver) HasPermission(ctx context.Context, p Principal, permission string) (bool, error) {
	if p == nil || !p.IsActiveAccount() {
		return false, nil
	}
	if p.IsSuperUser() {
		return true, nil
	}
	name := strings.TrimSpace(strings.ToLower(permission))
	if name == "" {
		return false, nil
	}
	return r.store.HasActivePermission(ctx, p.GetID(), name)
}

// EffectivePermissions returns the principal's full permission set. Superusers
// hold the universal set of active permissions.
func (r *Resolver) EffectivePermissions(ctx context.Context, p Principal) ([]string, error) {
	if p == nil || !p.IsActiveAccount() {
		return nil, nil
	}
	if p.IsSuperUser() {
		return r.store.AllActivePermissionNames(ctx)
	}
	return r.store.EffectivePermissionNames(ctx, p.GetID())
}

// HasRole reports whether the principal holds the named active role.
func (r *Resolver) HasRole(ctx context.Context, p Principal, role string) (bool, error) {
	if p == nil || !p.IsActiveAccount() {
		return false, nil
	}
	names, err := r.store.RoleNamesForUser(ctx, p.GetID())
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if strings.EqualFold(name, role) {
			return true, nil
		}
	}
	return false, nil
}

// Roles lists the principal's active role names.
func (r *Resolver) Roles(ctx context.Context, p Principal) ([]string, error) {
	if p == nil || !p.IsActiveAccount() {
		return nil, nil
	}
	return r.store.RoleNamesForUser(ctx, p.GetID())
}
