package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/vantage-pos/vantage-pos/internal/audit"
)

// SessionRevoker drops every live session and issued token for a user.
type SessionRevoker interface {
	Invalidate(ctx context.Context, userID int64) error
}

// ChangeRecorder persists audit entries and role-set snapshots.
type ChangeRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
	RecordRoleChange(ctx context.Context, change audit.RoleChange) error
}

// MutationStore is the transaction-scoped persistence surface for a role
// mutation: membership replacement plus the native resync that must commit
// with it.
type MutationStore interface {
	SyncStore
	RoleNamesForUser(ctx context.Context, userID int64) ([]string, error)
	CountRolesByIDs(ctx context.Context, ids []int64) (int, error)
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
}

// ServiceStore is the persistence surface the service needs. *Repository
// satisfies it.
type ServiceStore interface {
	InTx(ctx context.Context, fn func(MutationStore) error) error
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	SetRoleActive(ctx context.Context, id int64, active bool) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	SetPermissionActive(ctx context.Context, id int64, active bool) error
	PermissionMemberIDs(ctx context.Context, permissionID int64) ([]int64, error)
	RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error)
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error
	RoleMemberIDs(ctx context.Context, roleID int64) ([]int64, error)
	RoleNamesForUser(ctx context.Context, userID int64) ([]string, error)
	EffectivePermissionNames(ctx context.Context, userID int64) ([]string, error)
	AllActivePermissionNames(ctx context.Context) ([]string, error)
	NativeCodenamesForUser(ctx context.Context, userID int64) ([]string, error)
}

// Service orchestrates RBAC mutations. A role membership change replaces
// membership and resyncs native grants in one transaction, then invalidates
// sessions before the triggering request returns.
type Service struct {
	store    ServiceStore
	sync     *Synchronizer
	revoker  SessionRevoker
	recorder ChangeRecorder
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(store ServiceStore, sync *Synchronizer, revoker SessionRevoker, recorder ChangeRecorder, logger *slog.Logger) *Service {
	return &Service{store: store, sync: sync, revoker: revoker, recorder: recorder, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.store.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	return s.store.CreateRole(ctx, name, description)
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	return s.store.UpdateRole(ctx, id, name, description)
}

// DeactivateRole soft-deletes a role. Existing audit entries referencing the
// role stay untouched; every member's sessions are invalidated since their
// effective set shrank.
func (s *Service) DeactivateRole(ctx context.Context, actor Principal, id int64) error {
	members, err := s.store.RoleMemberIDs(ctx, id)
	if err != nil {
		return err
	}
	before, err := s.snapshotRoles(ctx, members)
	if err != nil {
		return err
	}
	if err := s.store.SetRoleActive(ctx, id, false); err != nil {
		return err
	}
	return s.refreshMembers(ctx, actor, members, before)
}

// RolePermissionIDs returns the permission IDs attached to a role.
func (s *Service) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return s.store.RolePermissionIDs(ctx, roleID)
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// SetRolePermissions replaces the permission set of a role, then resyncs and
// invalidates every member of that role.
func (s *Service) SetRolePermissions(ctx context.Context, actor Principal, roleID int64, permissionIDs []int64) error {
	members, err := s.store.RoleMemberIDs(ctx, roleID)
	if err != nil {
		return err
	}
	before, err := s.snapshotRoles(ctx, members)
	if err != nil {
		return err
	}
	existing, err := s.store.RolePermissionIDs(ctx, roleID)
	if err != nil {
		return err
	}
	current := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		current[id] = struct{}{}
	}
	keep := make(map[int64]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		keep[id] = struct{}{}
		if _, ok := current[id]; !ok {
			if err := s.store.AttachPermission(ctx, roleID, id); err != nil {
				return err
			}
		}
	}
	for id := range current {
		if _, ok := keep[id]; !ok {
			if err := s.store.DetachPermission(ctx, roleID, id); err != nil {
				return err
			}
		}
	}

	return s.refreshMembers(ctx, actor, members, before)
}

// SetPermissionActive toggles the soft-delete flag on a catalog permission.
// Roles keep their attachment rows; the active predicate excludes the
// permission from every effective set, so each holder is resynced and swept.
func (s *Service) SetPermissionActive(ctx context.Context, actor Principal, id int64, active bool) error {
	members, err := s.store.PermissionMemberIDs(ctx, id)
	if err != nil {
		return err
	}
	before, err := s.snapshotRoles(ctx, members)
	if err != nil {
		return err
	}
	if err := s.store.SetPermissionActive(ctx, id, active); err != nil {
		return err
	}
	return s.refreshMembers(ctx, actor, members, before)
}

// NativeDrift reports the gap between the catalog-derived grant set and the
// native mirror for one user.
type NativeDrift struct {
	Missing []string `json:"missing"`
	Extra   []string `json:"extra"`
}

// DetectNativeDrift recomputes the codenames the mirror should hold and
// compares them against the granted rows. Unparseable permission names never
// reach the mirror, so they are excluded from the expected set the same way
// the synchronizer skips them.
func (s *Service) DetectNativeDrift(ctx context.Context, target Principal) (NativeDrift, error) {
	var names []string
	var err error
	if target.IsSuperUser() {
		names, err = s.store.AllActivePermissionNames(ctx)
	} else if target.IsActiveAccount() {
		names, err = s.store.EffectivePermissionNames(ctx, target.GetID())
	}
	if err != nil {
		return NativeDrift{}, err
	}

	expected := make(map[string]struct{}, len(names))
	for _, name := range names {
		key, err := ParseKey(name)
		if err != nil {
			continue
		}
		expected[key.Codename()] = struct{}{}
	}

	granted, err := s.store.NativeCodenamesForUser(ctx, target.GetID())
	if err != nil {
		return NativeDrift{}, err
	}

	drift := NativeDrift{Missing: []string{}, Extra: []string{}}
	held := make(map[string]struct{}, len(granted))
	for _, codename := range granted {
		held[codename] = struct{}{}
		if _, ok := expected[codename]; !ok {
			drift.Extra = append(drift.Extra, codename)
		}
	}
	for codename := range expected {
		if _, ok := held[codename]; !ok {
			drift.Missing = append(drift.Missing, codename)
		}
	}
	sort.Strings(drift.Missing)
	sort.Strings(drift.Extra)
	return drift, nil
}

// SetRoles atomically replaces the user's role set. Unknown role IDs abort
// the whole mutation. The native resync runs inside the same transaction as
// the membership change; a hard sync failure rolls the mutation back. The
// session sweep and the change log entry happen before the call returns, and
// the snapshot is recorded even when the sweep reports an error.
func (s *Service) SetRoles(ctx context.Context, actor, target Principal, roleIDs []int64) (audit.RoleChange, error) {
	ids := dedupe(roleIDs)

	var before, after []string
	err := s.store.InTx(ctx, func(tx MutationStore) error {
		var err error
		before, err = tx.RoleNamesForUser(ctx, target.GetID())
		if err != nil {
			return err
		}
		count, err := tx.CountRolesByIDs(ctx, ids)
		if err != nil {
			return err
		}
		if count != len(ids) {
			return ErrInvalidRoleAssignment
		}
		if err := tx.ReplaceUserRoles(ctx, target.GetID(), ids); err != nil {
			return err
		}
		after, err = tx.RoleNamesForUser(ctx, target.GetID())
		if err != nil {
			return err
		}
		return s.sync.Resync(ctx, tx, target)
	})
	if err != nil {
		return audit.RoleChange{}, err
	}

	return s.finishMutation(ctx, actor, target.GetID(), before, after)
}

// ResyncUser rebuilds the native mirror for one user without touching
// membership. Exposed for operational repair.
func (s *Service) ResyncUser(ctx context.Context, target Principal) error {
	return s.store.InTx(ctx, func(tx MutationStore) error {
		return s.sync.Resync(ctx, tx, target)
	})
}

// finishMutation runs the post-commit half of a role mutation: session sweep,
// change log, audit entry.
func (s *Service) finishMutation(ctx context.Context, actor Principal, userID int64, before, after []string) (audit.RoleChange, error) {
	invalidateErr := s.revoker.Invalidate(ctx, userID)

	change := audit.RoleChange{
		UserID:  userID,
		ActorID: actorID(actor),
		Before:  before,
		After:   after,
	}
	if err := s.recorder.RecordRoleChange(ctx, change); err != nil && s.logger != nil {
		s.logger.Error("record role change", slog.Any("error", err))
	}

	outcome := audit.OutcomeSuccess
	if invalidateErr != nil {
		outcome = audit.OutcomeError
	}
	if err := s.recorder.Record(ctx, audit.Entry{
		ActorID:    actorID(actor),
		Action:     "roles.assign",
		Resource:   "user",
		ResourceID: fmt.Sprintf("%d", userID),
		Outcome:    outcome,
		Meta:       map[string]any{"before": before, "after": after},
	}); err != nil && s.logger != nil {
		s.logger.Error("record role assignment", slog.Any("error", err))
	}

	if invalidateErr != nil {
		return change, fmt.Errorf("rbac: invalidate sessions for user %d: %w", userID, invalidateErr)
	}
	return change, nil
}

// snapshotRoles captures each member's role names ahead of a mutation so the
// change log can show what the user held before.
func (s *Service) snapshotRoles(ctx context.Context, members []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(members))
	for _, userID := range members {
		roles, err := s.store.RoleNamesForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		out[userID] = roles
	}
	return out, nil
}

func (s *Service) refreshMembers(ctx context.Context, actor Principal, members []int64, before map[int64][]string) error {
	var firstErr error
	for _, userID := range members {
		target := memberPrincipal{id: userID}
		err := s.store.InTx(ctx, func(tx MutationStore) error {
			return s.sync.Resync(ctx, tx, target)
		})
		if err == nil {
			roles, rerr := s.store.RoleNamesForUser(ctx, userID)
			if rerr == nil {
				_, err = s.finishMutation(ctx, actor, userID, before[userID], roles)
			} else {
				err = rerr
			}
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// memberPrincipal stands in for a role member during bulk refresh. Member
// rows come from user_roles, so the account exists; the resolver queries
// apply the active-account predicate themselves.
type memberPrincipal struct {
	id int64
}

func (m memberPrincipal) GetID() int64          { return m.id }
func (m memberPrincipal) IsSuperUser() bool     { return false }
func (m memberPrincipal) IsActiveAccount() bool { return true }

func actorID(p Principal) int64 {
	if p == nil {
		return 0
	}
	return p.GetID()
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
