package rbac

import (
	"context"
	"fmt"

	"github.com/vantage-pos/vantage-pos/internal/shared"
)

// CatalogStore is the persistence surface for seeding the catalog.
type CatalogStore interface {
	EnsurePermission(ctx context.Context, name, description string, category Category) (Permission, error)
}

func categoryFor(key PermissionKey) Category {
	switch key.Domain {
	case "users":
		return CategoryUser
	case "roles", "permissions":
		return CategoryRole
	case "audit":
		return CategorySystem
	default:
		return CategoryResource
	}
}

// EnsureCatalog upserts the canonical permission set at startup. Permission
// names are validated here, once; a name that does not parse never enters the
// catalog.
func EnsureCatalog(ctx context.Context, store CatalogStore) error {
	names := append(shared.CoreScopes(), shared.ResourceScopes()...)
	for _, name := range names {
		key, err := ParseKey(name)
		if err != nil {
			return fmt.Errorf("rbac: seed catalog: %w", err)
		}
		if _, err := store.EnsurePermission(ctx, name, key.DisplayName(), categoryFor(key)); err != nil {
			return fmt.Errorf("rbac: seed catalog %s: %w", name, err)
		}
	}
	return nil
}
