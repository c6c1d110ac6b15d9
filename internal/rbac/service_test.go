package rbac

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-pos/vantage-pos/internal/audit"
)

// memoryStore is an in-memory ServiceStore. InTx hands the store itself to
// the callback; transactional semantics are covered by the repository layer.
type memoryStore struct {
	roles        map[int64]Role
	perms        map[int64]Permission
	rolePerms    map[int64][]int64
	userRoles    map[int64][]int64
	nativeIDs    map[string]int64
	nativeGrants map[int64]map[int64]string
	nextNativeID int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		roles:        map[int64]Role{},
		perms:        map[int64]Permission{},
		rolePerms:    map[int64][]int64{},
		userRoles:    map[int64][]int64{},
		nativeIDs:    map[string]int64{},
		nativeGrants: map[int64]map[int64]string{},
	}
}

func (m *memoryStore) addRole(id int64, name string, permNames ...string) {
	m.roles[id] = Role{ID: id, Name: name, IsActive: true}
	for _, permName := range permNames {
		permID := int64(len(m.perms) + 1)
		m.perms[permID] = Permission{ID: permID, Name: permName, IsActive: true}
		m.rolePerms[id] = append(m.rolePerms[id], permID)
	}
}

func (m *memoryStore) InTx(ctx context.Context, fn func(MutationStore) error) error {
	return fn(m)
}

func (m *memoryStore) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, role := range m.roles {
		out = append(out, role)
	}
	return out, nil
}

func (m *memoryStore) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (m *memoryStore) CreateRole(ctx context.Context, name, description string) (Role, error) {
	id := int64(len(m.roles) + 1)
	role := Role{ID: id, Name: name, Description: description, IsActive: true}
	m.roles[id] = role
	return role, nil
}

func (m *memoryStore) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	role.Name = name
	role.Description = description
	m.roles[id] = role
	return role, nil
}

func (m *memoryStore) SetRoleActive(ctx context.Context, id int64, active bool) error {
	role, ok := m.roles[id]
	if !ok {
		return ErrNotFound
	}
	role.IsActive = active
	m.roles[id] = role
	return nil
}

func (m *memoryStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for _, perm := range m.perms {
		out = append(out, perm)
	}
	return out, nil
}

func (m *memoryStore) SetPermissionActive(ctx context.Context, id int64, active bool) error {
	perm, ok := m.perms[id]
	if !ok {
		return ErrNotFound
	}
	perm.IsActive = active
	m.perms[id] = perm
	return nil
}

func (m *memoryStore) PermissionMemberIDs(ctx context.Context, permissionID int64) ([]int64, error) {
	seen := map[int64]struct{}{}
	var members []int64
	for userID, roleIDs := range m.userRoles {
		for _, roleID := range roleIDs {
			for _, permID := range m.rolePerms[roleID] {
				if permID == permissionID {
					if _, dup := seen[userID]; !dup {
						seen[userID] = struct{}{}
						members = append(members, userID)
					}
				}
			}
		}
	}
	return members, nil
}

func (m *memoryStore) NativeCodenamesForUser(ctx context.Context, userID int64) ([]string, error) {
	return m.nativeCodenames(userID), nil
}

func (m *memoryStore) permID(name string) int64 {
	for id, perm := range m.perms {
		if perm.Name == name {
			return id
		}
	}
	return 0
}

func (m *memoryStore) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return append([]int64(nil), m.rolePerms[roleID]...), nil
}

func (m *memoryStore) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	m.rolePerms[roleID] = append(m.rolePerms[roleID], permissionID)
	return nil
}

func (m *memoryStore) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	kept := m.rolePerms[roleID][:0]
	for _, id := range m.rolePerms[roleID] {
		if id != permissionID {
			kept = append(kept, id)
		}
	}
	m.rolePerms[roleID] = kept
	return nil
}

func (m *memoryStore) CountRolesByIDs(ctx context.Context, ids []int64) (int, error) {
	count := 0
	for _, id := range ids {
		if _, ok := m.roles[id]; ok {
			count++
		}
	}
	return count, nil
}

func (m *memoryStore) RoleMemberIDs(ctx context.Context, roleID int64) ([]int64, error) {
	var members []int64
	for userID, roleIDs := range m.userRoles {
		for _, id := range roleIDs {
			if id == roleID {
				members = append(members, userID)
			}
		}
	}
	return members, nil
}

func (m *memoryStore) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	m.userRoles[userID] = append([]int64(nil), roleIDs...)
	return nil
}

func (m *memoryStore) RoleNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	var names []string
	for _, roleID := range m.userRoles[userID] {
		if role, ok := m.roles[roleID]; ok && role.IsActive {
			names = append(names, role.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *memoryStore) EffectivePermissionNames(ctx context.Context, userID int64) ([]string, error) {
	seen := map[string]struct{}{}
	var names []string
	for _, roleID := range m.userRoles[userID] {
		role, ok := m.roles[roleID]
		if !ok || !role.IsActive {
			continue
		}
		for _, permID := range m.rolePerms[roleID] {
			perm, ok := m.perms[permID]
			if !ok || !perm.IsActive {
				continue
			}
			if _, dup := seen[perm.Name]; dup {
				continue
			}
			seen[perm.Name] = struct{}{}
			names = append(names, perm.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *memoryStore) AllActivePermissionNames(ctx context.Context) ([]string, error) {
	var names []string
	for _, perm := range m.perms {
		if perm.IsActive {
			names = append(names, perm.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *memoryStore) HasActivePermission(ctx context.Context, userID int64, name string) (bool, error) {
	names, _ := m.EffectivePermissionNames(ctx, userID)
	for _, candidate := range names {
		if candidate == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) ClearNativeGrants(ctx context.Context, userID int64) error {
	delete(m.nativeGrants, userID)
	return nil
}

func (m *memoryStore) EnsureNativePermission(ctx context.Context, codename, name string) (int64, error) {
	if id, ok := m.nativeIDs[codename]; ok {
		return id, nil
	}
	m.nextNativeID++
	m.nativeIDs[codename] = m.nextNativeID
	return m.nextNativeID, nil
}

func (m *memoryStore) GrantNative(ctx context.Context, userID, nativePermissionID int64) error {
	if m.nativeGrants[userID] == nil {
		m.nativeGrants[userID] = map[int64]string{}
	}
	for codename, id := range m.nativeIDs {
		if id == nativePermissionID {
			m.nativeGrants[userID][nativePermissionID] = codename
		}
	}
	return nil
}

func (m *memoryStore) nativeCodenames(userID int64) []string {
	var out []string
	for _, codename := range m.nativeGrants[userID] {
		out = append(out, codename)
	}
	sort.Strings(out)
	return out
}

type stubRevoker struct {
	calls []int64
	err   error
}

func (s *stubRevoker) Invalidate(ctx context.Context, userID int64) error {
	s.calls = append(s.calls, userID)
	return s.err
}

type stubRecorder struct {
	entries []audit.Entry
	changes []audit.RoleChange
}

func (s *stubRecorder) Record(ctx context.Context, entry audit.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubRecorder) RecordRoleChange(ctx context.Context, change audit.RoleChange) error {
	s.changes = append(s.changes, change)
	return nil
}

func newTestService(store *memoryStore) (*Service, *stubRevoker, *stubRecorder) {
	revoker := &stubRevoker{}
	recorder := &stubRecorder{}
	logger := slog.Default()
	svc := NewService(store, NewSynchronizer(recorder, logger), revoker, recorder, logger)
	return svc, revoker, recorder
}

func TestSetRolesRejectsUnknownRole(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "Accountant", "invoices.view_invoice")
	store.userRoles[42] = []int64{1}
	svc, revoker, recorder := newTestService(store)

	_, err := svc.SetRoles(context.Background(), stubPrincipal{id: 1, active: true}, stubPrincipal{id: 42, active: true}, []int64{1, 999})
	require.ErrorIs(t, err, ErrInvalidRoleAssignment)

	// Membership untouched, nothing swept, nothing logged.
	require.Equal(t, []int64{1}, store.userRoles[42])
	require.Empty(t, revoker.calls)
	require.Empty(t, recorder.changes)
}

func TestSetRolesReplacesMembershipAndSyncs(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "Accountant", "invoices.view_invoice", "transactions.view_transaction")
	store.addRole(2, "Administrator", "users.edit_user", "roles.edit_role")
	store.userRoles[42] = []int64{1}
	svc, revoker, recorder := newTestService(store)

	target := stubPrincipal{id: 42, active: true}
	change, err := svc.SetRoles(context.Background(), stubPrincipal{id: 1, active: true}, target, []int64{2})
	require.NoError(t, err)

	require.Equal(t, []string{"Accountant"}, change.Before)
	require.Equal(t, []string{"Administrator"}, change.After)
	require.Equal(t, []int64{2}, store.userRoles[42])

	// Native mirror reflects only the new role's permissions.
	require.Equal(t, []string{"edit_role", "edit_user"}, store.nativeCodenames(42))

	require.Equal(t, []int64{42}, revoker.calls)
	require.Len(t, recorder.changes, 1)
	require.Equal(t, []string{"Accountant"}, recorder.changes[0].Before)
	require.Equal(t, []string{"Administrator"}, recorder.changes[0].After)

	require.Len(t, recorder.entries, 1)
	require.Equal(t, "roles.assign", recorder.entries[0].Action)
	require.Equal(t, audit.OutcomeSuccess, recorder.entries[0].Outcome)
}

func TestSetRolesDedupesInput(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "Accountant", "invoices.view_invoice")
	svc, _, _ := newTestService(store)

	_, err := svc.SetRoles(context.Background(), nil, stubPrincipal{id: 42, active: true}, []int64{1, 1, 1})
	require.NoError(t, err)
	require.Equal(t, []int64{1}, store.userRoles[42])
}

func TestSetRolesInvalidateFailureStillRecordsChange(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "Accountant", "invoices.view_invoice")
	svc, revoker, recorder := newTestService(store)
	revoker.err = errors.New("redis down")

	_, err := svc.SetRoles(context.Background(), nil, stubPrincipal{id: 42, active: true}, []int64{1})
	require.Error(t, err)

	// The membership change committed; the failure is surfaced but the
	// snapshot and the ERROR entry are still written.
	require.Equal(t, []int64{1}, store.userRoles[42])
	require.Len(t, recorder.changes, 1)
	require.Len(t, recorder.entries, 1)
	require.Equal(t, audit.OutcomeError, recorder.entries[0].Outcome)
}

func TestResyncIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "Accountant", "invoices.view_invoice", "transactions.view_transaction")
	store.userRoles[42] = []int64{1}
	svc, _, _ := newTestService(store)

	target := stubPrincipal{id: 42, active: true}
	require.NoError(t, svc.ResyncUser(context.Background(), target))
	first := store.nativeCodenames(42)
	require.Equal(t, []string{"view_invoice", "view_transaction"}, first)

	require.NoError(t, svc.ResyncUser(context.Background(), target))
	require.Equal(t, first, store.nativeCodenames(42))
}

func TestResyncSkipsUnmappablePermission(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "Accountant", "invoices.view_invoice", "legacy-permission")
	store.userRoles[42] = []int64{1}
	svc, _, recorder := newTestService(store)

	require.NoError(t, svc.ResyncUser(context.Background(), stubPrincipal{id: 42, active: true}))

	// The malformed name is skipped, the rest still lands.
	require.Equal(t, []string{"view_invoice"}, store.nativeCodenames(42))
	require.Len(t, recorder.entries, 1)
	require.Equal(t, "native_sync.skip", recorder.entries[0].Action)
	require.Equal(t, audit.OutcomeError, recorder.entries[0].Outcome)
	require.Equal(t, "legacy-permission", recorder.entries[0].ResourceID)
}

func TestResyncSuperuserGetsUniversalSet(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "Accountant", "invoices.view_invoice")
	store.addRole(2, "Administrator", "users.edit_user")
	svc, _, _ := newTestService(store)

	// No membership at all; superuser status alone drives the mirror.
	require.NoError(t, svc.ResyncUser(context.Background(), stubPrincipal{id: 9, superuser: true, active: true}))
	require.Equal(t, []string{"edit_user", "view_invoice"}, store.nativeCodenames(9))
}

func TestDeactivateRoleRefreshesMembers(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "Accountant", "invoices.view_invoice")
	store.userRoles[42] = []int64{1}
	svc, revoker, _ := newTestService(store)

	require.NoError(t, svc.ResyncUser(context.Background(), stubPrincipal{id: 42, active: true}))
	require.Equal(t, []string{"view_invoice"}, store.nativeCodenames(42))

	require.NoError(t, svc.DeactivateRole(context.Background(), nil, 1))

	// The deactivated role no longer contributes grants and members lose
	// their sessions.
	require.Empty(t, store.nativeCodenames(42))
	require.Contains(t, revoker.calls, int64(42))
}

func TestDeactivateRoleSnapshotsBeforeRoles(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "Accountant", "invoices.view_invoice")
	store.addRole(2, "Auditor", "audit.view_auditlog")
	store.userRoles[42] = []int64{1, 2}
	svc, _, recorder := newTestService(store)

	require.NoError(t, svc.DeactivateRole(context.Background(), nil, 1))

	// The change log must show what the member held before the role was
	// deactivated, not an empty set.
	require.Len(t, recorder.changes, 1)
	require.Equal(t, []string{"Accountant", "Auditor"}, recorder.changes[0].Before)
	require.Equal(t, []string{"Auditor"}, recorder.changes[0].After)
}

func TestDeactivatePermissionRefreshesHolders(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "Accountant", "invoices.view_invoice", "transactions.view_transaction")
	store.userRoles[42] = []int64{1}
	svc, revoker, _ := newTestService(store)

	require.NoError(t, svc.ResyncUser(context.Background(), stubPrincipal{id: 42, active: true}))
	require.Equal(t, []string{"view_invoice", "view_transaction"}, store.nativeCodenames(42))

	permID := store.permID("invoices.view_invoice")
	require.NotZero(t, permID)
	require.NoError(t, svc.SetPermissionActive(context.Background(), nil, permID, false))

	// The attachment row survives but the grant does not, and the holder's
	// sessions are swept.
	require.Equal(t, []string{"view_transaction"}, store.nativeCodenames(42))
	require.Contains(t, revoker.calls, int64(42))

	require.NoError(t, svc.SetPermissionActive(context.Background(), nil, permID, true))
	require.Equal(t, []string{"view_invoice", "view_transaction"}, store.nativeCodenames(42))
}

func TestDetectNativeDriftFlagsMirrorGap(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "Accountant", "invoices.view_invoice", "transactions.view_transaction")
	store.userRoles[42] = []int64{1}
	svc, _, _ := newTestService(store)

	target := stubPrincipal{id: 42, active: true}
	require.NoError(t, svc.ResyncUser(context.Background(), target))

	drift, err := svc.DetectNativeDrift(context.Background(), target)
	require.NoError(t, err)
	require.Empty(t, drift.Missing)
	require.Empty(t, drift.Extra)

	// Tamper with the mirror: drop one grant, plant a stray one.
	for id, codename := range store.nativeGrants[42] {
		if codename == "view_invoice" {
			delete(store.nativeGrants[42], id)
		}
	}
	store.nativeIDs["delete_everything"] = 999
	store.nativeGrants[42][999] = "delete_everything"

	drift, err = svc.DetectNativeDrift(context.Background(), target)
	require.NoError(t, err)
	require.Equal(t, []string{"view_invoice"}, drift.Missing)
	require.Equal(t, []string{"delete_everything"}, drift.Extra)
}

func TestSetRolePermissionsReconciles(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "Accountant", "invoices.view_invoice", "transactions.view_transaction")
	store.userRoles[42] = []int64{1}
	svc, _, _ := newTestService(store)

	existing, err := svc.RolePermissionIDs(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, existing, 2)

	// Keep only the first permission.
	require.NoError(t, svc.SetRolePermissions(context.Background(), nil, 1, existing[:1]))

	remaining, err := svc.RolePermissionIDs(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, existing[:1], remaining)

	// Members were resynced against the shrunken set.
	require.Equal(t, []string{"view_invoice"}, store.nativeCodenames(42))
}
