package auth

import "slices"

// Permission names a capability on the settings API.
type Permission string

const (
	PermSettingsRead    Permission = "settings:read"
	PermSettingsWrite   Permission = "settings:write"
	PermSettingsRestore Permission = "settings:restore"
)

// Roles are tiers: each one holds the permissions of the tiers below it.
// minimumRole is the lowest tier granted each permission.
var minimumRole = map[Permission]Role{
	PermSettingsRead:    RoleViewer,
	PermSettingsWrite:   RoleOperator,
	PermSettingsRestore: RoleAdmin,
}

// permissionOrder fixes the order PermissionsForRole reports.
var permissionOrder = []Permission{PermSettingsRead, PermSettingsWrite, PermSettingsRestore}

// HasPermission reports whether role is at or above the tier perm requires.
// Unknown roles and permissions are denied.
func HasPermission(role Role, perm Permission) bool {
	need, ok := minimumRole[perm]
	if !ok {
		return false
	}
	have := tier(role)
	return have >= 0 && have >= tier(need)
}

// PermissionsForRole lists what role may do, or nil for an unknown role.
// The slice is freshly allocated.
func PermissionsForRole(role Role) []Permission {
	if tier(role) < 0 {
		return nil
	}
	var out []Permission
	for _, p := range permissionOrder {
		if HasPermission(role, p) {
			out = append(out, p)
		}
	}
	return out
}

// tier is the position of r in ValidRoles, -1 when r is not a role.
func tier(r Role) int {
	return slices.Index(ValidRoles, r)
}
