package shared

// Core platform permissions.
const (
	PermUsersView = "users.view_user"
	PermUsersEdit = "users.edit_user"

	PermRolesView = "roles.view_role"
	PermRolesEdit = "roles.edit_role"

	PermPermissionsView = "permissions.view_permission"

	PermAuditView = "audit.view_auditlog"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermAuditView,
	}
}
