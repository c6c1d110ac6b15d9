package policy

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-pos/vantage-pos/internal/audit"
	"github.com/vantage-pos/vantage-pos/internal/platform/httpx"
	"github.com/vantage-pos/vantage-pos/internal/rbac"
	"github.com/vantage-pos/vantage-pos/internal/shared"
)

type stubPrincipal struct {
	id        int64
	superuser bool
	active    bool
}

func (p stubPrincipal) GetID() int64          { return p.id }
func (p stubPrincipal) IsSuperUser() bool     { return p.superuser }
func (p stubPrincipal) IsActiveAccount() bool { return p.active }

type stubChecker struct {
	perms map[int64]map[string]bool
	roles map[int64][]string
}

func (s *stubChecker) HasPermission(ctx context.Context, p rbac.Principal, permission string) (bool, error) {
	if p.IsSuperUser() {
		return true, nil
	}
	return s.perms[p.GetID()][permission], nil
}

func (s *stubChecker) Roles(ctx context.Context, p rbac.Principal) ([]string, error) {
	return s.roles[p.GetID()], nil
}

type stubDecisionLog struct {
	entries []audit.Entry
}

func (s *stubDecisionLog) Record(ctx context.Context, entry audit.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func newTestEngine(t *testing.T, checker *stubChecker) (*Engine, *stubDecisionLog) {
	t.Helper()
	registry := NewRegistry()
	require.NoError(t, RegisterDefaults(registry))
	log := &stubDecisionLog{}
	return NewEngine(registry, checker, log, nil, slog.Default()), log
}

func (s *stubDecisionLog) last() audit.Entry {
	return s.entries[len(s.entries)-1]
}

func TestAuthorizeUnauthenticated(t *testing.T) {
	engine, log := newTestEngine(t, &stubChecker{})

	err := engine.Authorize(context.Background(), nil, "orders", ActionList)
	require.ErrorIs(t, err, httpx.ErrUnauthorized)
	require.Equal(t, audit.OutcomeDenied, log.last().Outcome)
}

func TestAuthorizeUnregisteredResource(t *testing.T) {
	engine, _ := newTestEngine(t, &stubChecker{})

	err := engine.Authorize(context.Background(), stubPrincipal{id: 1, active: true}, "payroll", ActionList)
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestAuthorizeDenyByDefault(t *testing.T) {
	checker := &stubChecker{perms: map[int64]map[string]bool{}}
	engine, log := newTestEngine(t, checker)

	err := engine.Authorize(context.Background(), stubPrincipal{id: 1, active: true}, "orders", ActionList)
	require.ErrorIs(t, err, httpx.ErrForbidden)
	require.Equal(t, audit.OutcomeDenied, log.last().Outcome)
}

func TestAuthorizeGrantedIsAudited(t *testing.T) {
	checker := &stubChecker{perms: map[int64]map[string]bool{
		1: {shared.PermOrdersView: true},
	}}
	engine, log := newTestEngine(t, checker)

	err := engine.Authorize(context.Background(), stubPrincipal{id: 1, active: true}, "orders", ActionList)
	require.NoError(t, err)

	// Every decision lands in the audit trail, grants included.
	require.Equal(t, audit.OutcomeSuccess, log.last().Outcome)
	require.Equal(t, "orders", log.last().Resource)
	require.Equal(t, string(ActionList), log.last().Action)
}

func TestScopeForCashierSeesOwnRecords(t *testing.T) {
	checker := &stubChecker{roles: map[int64][]string{1: {RoleCashier}}}
	engine, _ := newTestEngine(t, checker)

	decision, err := engine.ScopeFor(context.Background(), stubPrincipal{id: 1, active: true}, "orders")
	require.NoError(t, err)
	require.Equal(t, VisibilityOwned, decision.Visibility)
	require.False(t, decision.ReadOnly)
}

func TestScopeForAuditorReadsEverything(t *testing.T) {
	checker := &stubChecker{roles: map[int64][]string{1: {RoleAuditor}}}
	engine, _ := newTestEngine(t, checker)

	decision, err := engine.ScopeFor(context.Background(), stubPrincipal{id: 1, active: true}, "orders")
	require.NoError(t, err)
	require.Equal(t, VisibilityAll, decision.Visibility)
	require.True(t, decision.ReadOnly)
}

func TestScopeForRoleCombinationTakesWidest(t *testing.T) {
	// Cashier plus Administrator resolves to the administrator verdict.
	checker := &stubChecker{roles: map[int64][]string{1: {RoleCashier, RoleAdministrator}}}
	engine, _ := newTestEngine(t, checker)

	decision, err := engine.ScopeFor(context.Background(), stubPrincipal{id: 1, active: true}, "orders")
	require.NoError(t, err)
	require.Equal(t, VisibilityAll, decision.Visibility)
	require.False(t, decision.ReadOnly)
}

func TestScopeForUnrelatedRoleDenied(t *testing.T) {
	checker := &stubChecker{roles: map[int64][]string{1: {RoleStockkeeper}}}
	engine, _ := newTestEngine(t, checker)

	decision, err := engine.ScopeFor(context.Background(), stubPrincipal{id: 1, active: true}, "orders")
	require.NoError(t, err)
	require.Equal(t, VisibilityNone, decision.Visibility)
}

func TestScopeForSuperuser(t *testing.T) {
	engine, _ := newTestEngine(t, &stubChecker{})

	decision, err := engine.ScopeFor(context.Background(), stubPrincipal{id: 1, superuser: true, active: true}, "orders")
	require.NoError(t, err)
	require.Equal(t, VisibilityAll, decision.Visibility)
}

func TestAuthorizeObjectOwnership(t *testing.T) {
	checker := &stubChecker{
		perms: map[int64]map[string]bool{
			1: {shared.PermOrdersEdit: true, shared.PermOrdersView: true},
		},
		roles: map[int64][]string{1: {RoleCashier}},
	}
	engine, log := newTestEngine(t, checker)
	cashier := stubPrincipal{id: 1, active: true}

	// Own record: allowed.
	require.NoError(t, engine.AuthorizeObject(context.Background(), cashier, "orders", ActionUpdate, 1))

	// Someone else's record: the coarse permission is not sufficient.
	err := engine.AuthorizeObject(context.Background(), cashier, "orders", ActionUpdate, 2)
	require.ErrorIs(t, err, httpx.ErrForbidden)
	require.Equal(t, "out of scope", log.last().Meta["reason"])
}

func TestAuthorizeObjectReadOnlyScopeBlocksMutation(t *testing.T) {
	checker := &stubChecker{
		perms: map[int64]map[string]bool{
			1: {shared.PermOrdersView: true, shared.PermOrdersEdit: true},
		},
		roles: map[int64][]string{1: {RoleAuditor}},
	}
	engine, log := newTestEngine(t, checker)
	auditor := stubPrincipal{id: 1, active: true}

	// Auditors can retrieve any record.
	require.NoError(t, engine.AuthorizeObject(context.Background(), auditor, "orders", ActionRetrieve, 2))

	// Even with the edit permission attached, the read-only scope wins.
	err := engine.AuthorizeObject(context.Background(), auditor, "orders", ActionUpdate, 2)
	require.ErrorIs(t, err, httpx.ErrForbidden)
	require.Equal(t, "ownership required", log.last().Meta["reason"])
}

type orderRow struct {
	id    int64
	owner int64
}

func (r orderRow) Owner() int64 { return r.owner }

func TestApplyScope(t *testing.T) {
	rows := []orderRow{{id: 1, owner: 1}, {id: 2, owner: 2}, {id: 3, owner: 1}}
	p := stubPrincipal{id: 1, active: true}

	all := ApplyScope(Decision{Visibility: VisibilityAll}, p, rows)
	require.Len(t, all, 3)

	owned := ApplyScope(Decision{Visibility: VisibilityOwned}, p, rows)
	require.Len(t, owned, 2)

	none := ApplyScope(Decision{}, p, rows)
	require.Empty(t, none)
}
