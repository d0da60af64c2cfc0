package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermSettingsRead, true},
		{RoleViewer, PermSettingsWrite, false},
		{RoleViewer, PermSettingsRestore, false},
		{RoleOperator, PermSettingsRead, true},
		{RoleOperator, PermSettingsWrite, true},
		{RoleOperator, PermSettingsRestore, false},
		{RoleAdmin, PermSettingsRead, true},
		{RoleAdmin, PermSettingsWrite, true},
		{RoleAdmin, PermSettingsRestore, true},
		{Role("owner"), PermSettingsRead, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestPermissionsForRole(t *testing.T) {
	perms := PermissionsForRole(RoleAdmin)
	if len(perms) != 3 {
		t.Fatalf("admin permissions = %v", perms)
	}

	// Mutating the result must not leak into the role map
	perms[0] = "tampered"
	if !HasPermission(RoleAdmin, PermSettingsRead) {
		t.Error("PermissionsForRole() returned the shared slice")
	}

	if PermissionsForRole(Role("unknown")) != nil {
		t.Error("unknown role should have no permissions")
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%s) = false", r)
		}
	}
	if IsValidRole("") {
		t.Error("empty role should be invalid")
	}
}
