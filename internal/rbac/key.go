package rbac

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// PermissionKey is the typed form of a <domain>.<action>_<resource> permission
// name. Names are parsed once, at registration or sync time, instead of being
// re-split on every check.
type PermissionKey struct {
	Domain   string
	Action   string
	Resource string
}

// ParseKey parses a permission name into its typed key.
func ParseKey(name string) (PermissionKey, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	domain, rest, ok := strings.Cut(name, ".")
	if !ok || domain == "" || rest == "" || strings.Contains(rest, ".") {
		return PermissionKey{}, fmt.Errorf("rbac: malformed permission name %q", name)
	}
	action, resource, ok := strings.Cut(rest, "_")
	if !ok || action == "" || resource == "" {
		return PermissionKey{}, fmt.Errorf("rbac: malformed permission name %q", name)
	}
	return PermissionKey{Domain: domain, Action: action, Resource: resource}, nil
}

// String renders the canonical permission name.
func (k PermissionKey) String() string {
	return k.Domain + "." + k.Action + "_" + k.Resource
}

// Codename is the deterministic identifier used for the mirrored native
// permission record.
func (k PermissionKey) Codename() string {
	return k.Action + "_" + k.Resource
}

// DisplayName derives a human readable description for catalog entries.
func (k PermissionKey) DisplayName() string {
	return fmt.Sprintf("Can %s %s", k.Action, titleCaser.String(k.Resource))
}
