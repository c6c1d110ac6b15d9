// Package policy maps actions on protected resource types to required
// permissions and row-level visibility rules.
package policy

import (
	"fmt"
	"sort"

	"github.com/vantage-pos/vantage-pos/internal/rbac"
)

// Action names an operation attempted against a resource type.
type Action string

const (
	ActionList          Action = "list"
	ActionRetrieve      Action = "retrieve"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionPartialUpdate Action = "partial_update"
	ActionDestroy       Action = "destroy"
)

// mutating reports whether the action changes an existing record and is
// therefore subject to the object-level ownership check.
func (a Action) mutating() bool {
	switch a {
	case ActionUpdate, ActionPartialUpdate, ActionDestroy:
		return true
	}
	return false
}

// Visibility is the row-level verdict for a principal on a resource type.
type Visibility int

const (
	// VisibilityNone is the deny-by-default verdict: no scope rule matched
	// the principal's roles, so the visible set is empty.
	VisibilityNone Visibility = iota
	// VisibilityOwned restricts the principal to records it owns.
	VisibilityOwned
	// VisibilityAll grants the full record set.
	VisibilityAll
)

// Decision is the outcome of a scope evaluation.
type Decision struct {
	Visibility Visibility
	// ReadOnly marks roles that may see everything but mutate nothing,
	// e.g. an auditor.
	ReadOnly bool
}

// ScopeFunc evaluates the principal's roles into a visibility decision.
// Returning the zero Decision denies.
type ScopeFunc func(roles []string) Decision

// Resource registers the access rules for one protected resource type.
type Resource struct {
	// Tag identifies the resource type, e.g. "orders".
	Tag string

	// Action to permission mapping. List/retrieve share View; update and
	// partial_update share Edit.
	View   string
	Create string
	Edit   string
	Delete string

	// Scope computes row-level visibility from the principal's roles.
	// Superusers bypass it. Nil denies everything for non-superusers.
	Scope ScopeFunc

	// AuthenticatedOnly opts the resource out of permission checks: any
	// active principal passes, with no scoping. Unregistered resources are
	// rejected outright; this is the explicit escape hatch.
	AuthenticatedOnly bool
}

func (r Resource) permissionFor(action Action) (string, error) {
	var name string
	switch action {
	case ActionList, ActionRetrieve:
		name = r.View
	case ActionCreate:
		name = r.Create
	case ActionUpdate, ActionPartialUpdate:
		name = r.Edit
	case ActionDestroy:
		name = r.Delete
	default:
		return "", fmt.Errorf("policy: unknown action %q", action)
	}
	if name == "" {
		return "", fmt.Errorf("policy: resource %q has no permission for action %q", r.Tag, action)
	}
	return name, nil
}

// Registry holds the resource policies, resolved once at startup. It is not
// safe for concurrent registration; register everything before serving.
type Registry struct {
	resources map[string]Resource
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]Resource)}
}

// Register adds a resource policy. Permission names are parsed here so a
// malformed mapping fails at startup rather than per request.
func (reg *Registry) Register(res Resource) error {
	if res.Tag == "" {
		return fmt.Errorf("policy: resource tag required")
	}
	if _, exists := reg.resources[res.Tag]; exists {
		return fmt.Errorf("policy: resource %q already registered", res.Tag)
	}
	if !res.AuthenticatedOnly {
		for _, name := range []string{res.View, res.Create, res.Edit, res.Delete} {
			if name == "" {
				return fmt.Errorf("policy: resource %q is missing a permission mapping", res.Tag)
			}
			if _, err := rbac.ParseKey(name); err != nil {
				return fmt.Errorf("policy: resource %q: %w", res.Tag, err)
			}
		}
	}
	reg.resources[res.Tag] = res
	return nil
}

// Lookup returns the policy for a resource tag.
func (reg *Registry) Lookup(tag string) (Resource, bool) {
	res, ok := reg.resources[tag]
	return res, ok
}

// Tags lists registered resource tags, sorted.
func (reg *Registry) Tags() []string {
	tags := make([]string, 0, len(reg.resources))
	for tag := range reg.resources {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
