package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vantage-pos/vantage-pos/internal/audit"
	"github.com/vantage-pos/vantage-pos/internal/platform/httpx"
	"github.com/vantage-pos/vantage-pos/internal/rbac"
)

// PermissionChecker answers coarse permission queries.
type PermissionChecker interface {
	HasPermission(ctx context.Context, p rbac.Principal, permission string) (bool, error)
	Roles(ctx context.Context, p rbac.Principal) ([]string, error)
}

// DecisionRecorder receives one audit entry per decision, denials included.
type DecisionRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// DecisionMetrics counts decision outcomes.
type DecisionMetrics interface {
	ObserveDecision(resource string, action string, outcome string)
}

// Engine evaluates resource access. The check order is fixed: coarse action
// permission first, then row scope, then the object-level ownership rule for
// mutations. Scoping is the innermost boundary; callers apply it before any
// date-range, search, or pagination filtering.
type Engine struct {
	registry *Registry
	checker  PermissionChecker
	recorder DecisionRecorder
	metrics  DecisionMetrics
	logger   *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(registry *Registry, checker PermissionChecker, recorder DecisionRecorder, metrics DecisionMetrics, logger *slog.Logger) *Engine {
	return &Engine{registry: registry, checker: checker, recorder: recorder, metrics: metrics, logger: logger}
}

// Authorize performs the coarse action check. A nil principal is
// unauthenticated; an unregistered resource is rejected.
func (e *Engine) Authorize(ctx context.Context, p rbac.Principal, tag string, action Action) error {
	if p == nil || !p.IsActiveAccount() {
		e.record(ctx, p, tag, action, audit.OutcomeDenied, "unauthenticated")
		return httpx.ErrUnauthorized
	}
	res, ok := e.registry.Lookup(tag)
	if !ok {
		e.record(ctx, p, tag, action, audit.OutcomeDenied, "unregistered resource")
		return httpx.ErrForbidden
	}
	if res.AuthenticatedOnly {
		e.record(ctx, p, tag, action, audit.OutcomeSuccess, "")
		return nil
	}
	permission, err := res.permissionFor(action)
	if err != nil {
		e.record(ctx, p, tag, action, audit.OutcomeError, err.Error())
		return err
	}
	ok, err = e.checker.HasPermission(ctx, p, permission)
	if err != nil {
		e.record(ctx, p, tag, action, audit.OutcomeError, err.Error())
		return fmt.Errorf("policy: permission check: %w", err)
	}
	if !ok {
		e.record(ctx, p, tag, action, audit.OutcomeDenied, "")
		return httpx.ErrForbidden
	}
	e.record(ctx, p, tag, action, audit.OutcomeSuccess, "")
	return nil
}

// ScopeFor evaluates row-level visibility for the principal on the resource.
// Superusers see everything; a resource without a matching scope branch
// yields VisibilityNone.
func (e *Engine) ScopeFor(ctx context.Context, p rbac.Principal, tag string) (Decision, error) {
	if p == nil || !p.IsActiveAccount() {
		return Decision{}, httpx.ErrUnauthorized
	}
	if p.IsSuperUser() {
		return Decision{Visibility: VisibilityAll}, nil
	}
	res, ok := e.registry.Lookup(tag)
	if !ok {
		return Decision{}, httpx.ErrForbidden
	}
	if res.AuthenticatedOnly {
		return Decision{Visibility: VisibilityAll}, nil
	}
	if res.Scope == nil {
		return Decision{}, nil
	}
	roles, err := e.checker.Roles(ctx, p)
	if err != nil {
		return Decision{}, fmt.Errorf("policy: resolve roles: %w", err)
	}
	return res.Scope(roles), nil
}

// AuthorizeObject combines the coarse check with the object-level rule:
// mutating another party's record requires either full non-read-only
// visibility or ownership. The coarse permission alone is necessary but not
// sufficient.
func (e *Engine) AuthorizeObject(ctx context.Context, p rbac.Principal, tag string, action Action, ownerID int64) error {
	if err := e.Authorize(ctx, p, tag, action); err != nil {
		return err
	}
	decision, err := e.ScopeFor(ctx, p, tag)
	if err != nil {
		return err
	}
	visible := decision.Visibility == VisibilityAll ||
		(decision.Visibility == VisibilityOwned && ownerID == p.GetID())
	if !visible {
		e.record(ctx, p, tag, action, audit.OutcomeDenied, "out of scope")
		return httpx.ErrForbidden
	}
	if action.mutating() {
		if decision.ReadOnly || (decision.Visibility != VisibilityAll && ownerID != p.GetID()) {
			e.record(ctx, p, tag, action, audit.OutcomeDenied, "ownership required")
			return httpx.ErrForbidden
		}
	}
	return nil
}

func (e *Engine) record(ctx context.Context, p rbac.Principal, tag string, action Action, outcome audit.Outcome, reason string) {
	if e.metrics != nil {
		e.metrics.ObserveDecision(tag, string(action), string(outcome))
	}
	if e.recorder == nil {
		return
	}
	entry := audit.Entry{
		Action:   string(action),
		Resource: tag,
		Outcome:  outcome,
	}
	if p != nil {
		entry.ActorID = p.GetID()
	}
	if reason != "" {
		entry.Meta = map[string]any{"reason": reason}
	}
	if err := e.recorder.Record(ctx, entry); err != nil && e.logger != nil {
		e.logger.Warn("record access decision", slog.Any("error", err))
	}
}

// Owned is satisfied by record views that expose their owner.
type Owned interface {
	Owner() int64
}

// ApplyScope filters records according to the decision. It is the in-memory
// form of the innermost visibility boundary; repositories translate the same
// decision into SQL predicates for large sets.
func ApplyScope[T Owned](decision Decision, p rbac.Principal, records []T) []T {
	switch decision.Visibility {
	case VisibilityAll:
		return records
	case VisibilityOwned:
		owned := make([]T, 0, len(records))
		for _, record := range records {
			if record.Owner() == p.GetID() {
				owned = append(owned, record)
			}
		}
		return owned
	default:
		return nil
	}
}
