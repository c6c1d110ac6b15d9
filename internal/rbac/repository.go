package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-pos/vantage-pos/internal/platform/db"
	"github.com/vantage-pos/vantage-pos/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for the permission
// catalog, roles, memberships, and the mirrored native grants.
type Repository struct {
	pool *pgxpool.Pool
	q    db.Querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, q: pool}
}

// InTx runs fn with a repository bound to a single transaction.
func (r *Repository) InTx(ctx context.Context, fn func(MutationStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&Repository{pool: r.pool, q: tx})
	})
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.q.Query(ctx, `SELECT id, name, description, is_active, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.q.QueryRow(ctx,
		`SELECT id, name, description, is_active, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := r.q.QueryRow(ctx,
		`INSERT INTO roles (name, description, is_active, created_at, updated_at)
		 VALUES ($1, $2, TRUE, NOW(), NOW())
		 RETURNING id, name, description, is_active, created_at, updated_at`,
		strings.TrimSpace(name), strings.TrimSpace(description)).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, httpx.ErrDuplicate
		}
		return Role{}, err
	}
	return role, nil
}

// UpdateRole updates name and description of an existing role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	var role Role
	err := r.q.QueryRow(ctx,
		`UPDATE roles SET name = $2, description = $3, updated_at = NOW()
		 WHERE id = $1
		 RETURNING id, name, description, is_active, created_at, updated_at`,
		id, strings.TrimSpace(name), strings.TrimSpace(description)).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// SetRoleActive toggles the soft-delete flag on a role.
func (r *Repository) SetRoleActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.q.Exec(ctx, `UPDATE roles SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPermissions returns catalog permissions ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.q.Query(ctx, `SELECT id, name, description, category, is_active FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		var category string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &category, &p.IsActive); err != nil {
			return nil, err
		}
		p.Category = Category(category)
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// EnsurePermission upserts a catalog permission by name.
func (r *Repository) EnsurePermission(ctx context.Context, name, description string, category Category) (Permission, error) {
	var p Permission
	var cat string
	err := r.q.QueryRow(ctx,
		`INSERT INTO permissions (name, description, category, is_active)
		 VALUES ($1, $2, $3, TRUE)
		 ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
		 RETURNING id, name, description, category, is_active`,
		strings.TrimSpace(name), strings.TrimSpace(description), string(category)).
		Scan(&p.ID, &p.Name, &p.Description, &cat, &p.IsActive)
	if err != nil {
		return Permission{}, err
	}
	p.Category = Category(cat)
	return p, nil
}

// SetPermissionActive toggles the soft-delete flag on a permission.
func (r *Repository) SetPermissionActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.q.Exec(ctx, `UPDATE permissions SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PermissionMemberIDs lists every user holding the permission through any
// role. Used to resync and sweep holders when a permission is deactivated.
func (r *Repository) PermissionMemberIDs(ctx context.Context, permissionID int64) ([]int64, error) {
	rows, err := r.q.Query(ctx,
		`SELECT DISTINCT ur.user_id FROM user_roles ur
		 JOIN role_permissions rp ON rp.role_id = ur.role_id
		 WHERE rp.permission_id = $1 ORDER BY ur.user_id`, permissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RolePermissionIDs lists permission IDs attached to a role.
func (r *Repository) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AttachPermission links a permission to a role.
func (r *Repository) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roleID, permissionID)
	return err
}

// DetachPermission unlinks a permission from a role.
func (r *Repository) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return err
}

// CountRolesByIDs reports how many of the given role IDs exist.
func (r *Repository) CountRolesByIDs(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM roles WHERE id = ANY($1)`, ids).Scan(&count)
	return count, err
}

// RoleMemberIDs lists users holding the given role.
func (r *Repository) RoleMemberIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1 ORDER BY user_id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReplaceUserRoles swaps a user's entire role membership for the given set.
func (r *Repository) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := r.q.Exec(ctx,
			`INSERT INTO user_roles (user_id, role_id, created_at) VALUES ($1, $2, NOW())`,
			userID, roleID); err != nil {
			return err
		}
	}
	return nil
}

// RoleNamesForUser lists the names of the user's active roles.
func (r *Repository) RoleNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.q.Query(ctx,
		`SELECT r.name FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1 AND r.is_active
		 ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// EffectivePermissionNames computes the deduplicated permission names granted
// to the user through active roles holding active permissions.
func (r *Repository) EffectivePermissionNames(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.q.Query(ctx,
		`SELECT DISTINCT p.name FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 JOIN roles ro ON ro.id = rp.role_id
		 JOIN user_roles ur ON ur.role_id = ro.id
		 WHERE ur.user_id = $1 AND p.is_active AND ro.is_active
		 ORDER BY p.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// AllActivePermissionNames lists every active permission name. This is the
// superuser's universal set.
func (r *Repository) AllActivePermissionNames(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT name FROM permissions WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// HasActivePermission answers the point query for one user and permission.
func (r *Repository) HasActivePermission(ctx context.Context, userID int64, name string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM permissions p
		   JOIN role_permissions rp ON rp.permission_id = p.id
		   JOIN roles ro ON ro.id = rp.role_id
		   JOIN user_roles ur ON ur.role_id = ro.id
		   WHERE ur.user_id = $1 AND p.name = $2 AND p.is_active AND ro.is_active
		 )`, userID, name).Scan(&exists)
	return exists, err
}

// ClearNativeGrants drops every mirrored grant for the user.
func (r *Repository) ClearNativeGrants(ctx context.Context, userID int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM native_user_grants WHERE user_id = $1`, userID)
	return err
}

// EnsureNativePermission finds or creates the native permission record for a
// codename and returns its ID.
func (r *Repository) EnsureNativePermission(ctx context.Context, codename, name string) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx,
		`INSERT INTO native_permissions (codename, name)
		 VALUES ($1, $2)
		 ON CONFLICT (codename) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, codename, name).Scan(&id)
	return id, err
}

// GrantNative mirrors one permission grant onto the native layer.
func (r *Repository) GrantNative(ctx context.Context, userID, nativePermissionID int64) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO native_user_grants (user_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, nativePermissionID)
	return err
}

// NativeCodenamesForUser lists the codenames currently granted on the native
// layer. Feeds the drift report that compares the mirror against the catalog.
func (r *Repository) NativeCodenamesForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.q.Query(ctx,
		`SELECT np.codename FROM native_permissions np
		 JOIN native_user_grants ng ON ng.permission_id = np.id
		 WHERE ng.user_id = $1 ORDER BY np.codename`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codenames []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		codenames = append(codenames, c)
	}
	return codenames, rows.Err()
}
