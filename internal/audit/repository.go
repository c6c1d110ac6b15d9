package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed read access to the audit tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListEntries returns audit entries matching the filters, newest first.
func (r *Repository) ListEntries(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	where, args := buildWhere(filters)
	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT id, actor_id, action, resource, resource_id, outcome, meta, occurred_at
		 FROM audit_logs %s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var outcome string
		var meta []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Resource, &e.ResourceID, &outcome, &meta, &e.At); err != nil {
			return nil, err
		}
		e.Outcome = Outcome(outcome)
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Meta)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListRoleChanges returns role change snapshots matching the filters, newest first.
func (r *Repository) ListRoleChanges(ctx context.Context, filters Filters, limit, offset int) ([]RoleChange, error) {
	var clauses []string
	var args []any
	if filters.ActorID > 0 {
		args = append(args, filters.ActorID)
		clauses = append(clauses, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if !filters.From.IsZero() {
		args = append(args, filters.From)
		clauses = append(clauses, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if !filters.To.IsZero() {
		args = append(args, filters.To)
		clauses = append(clauses, fmt.Sprintf("occurred_at <= $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT id, user_id, actor_id, roles_before, roles_after, occurred_at
		 FROM permission_change_logs %s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var changes []RoleChange
	for rows.Next() {
		var c RoleChange
		var before, after []byte
		if err := rows.Scan(&c.ID, &c.UserID, &c.ActorID, &before, &after, &c.At); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(before, &c.Before)
		_ = json.Unmarshal(after, &c.After)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// DeleteEntriesBefore removes decision entries older than the cutoff. Role
// change snapshots are never pruned.
func (r *Repository) DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func buildWhere(filters Filters) (string, []any) {
	var clauses []string
	var args []any
	if filters.ActorID > 0 {
		args = append(args, filters.ActorID)
		clauses = append(clauses, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filters.Resource != "" {
		args = append(args, filters.Resource)
		clauses = append(clauses, fmt.Sprintf("resource = $%d", len(args)))
	}
	if filters.Action != "" {
		args = append(args, filters.Action)
		clauses = append(clauses, fmt.Sprintf("action = $%d", len(args)))
	}
	if filters.Outcome != "" {
		args = append(args, string(filters.Outcome))
		clauses = append(clauses, fmt.Sprintf("outcome = $%d", len(args)))
	}
	if !filters.From.IsZero() {
		args = append(args, filters.From)
		clauses = append(clauses, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if !filters.To.IsZero() {
		args = append(args, filters.To)
		clauses = append(clauses, fmt.Sprintf("occurred_at <= $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
