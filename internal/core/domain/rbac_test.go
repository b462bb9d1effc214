package domain

import "testing"

func TestParseRole(t *testing.T) {
	cases := []struct {
		input string
		want  Role
	}{
		{"user", RoleUser},
		{"instructor", RoleInstructor},
		{"moderator", RoleModerator},
		{"admin", RoleAdmin},
		{"superuser", RoleUser},
		{"", RoleUser},
		{"Admin", RoleUser},
	}

	for _, tc := range cases {
		if got := ParseRole(tc.input); got != tc.want {
			t.Errorf("ParseRole(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestRoleAtLeast(t *testing.T) {
	if !RoleAdmin.AtLeast(RoleUser) {
		t.Error("admin should satisfy a user requirement")
	}
	if !RoleModerator.AtLeast(RoleModerator) {
		t.Error("a role should satisfy its own level")
	}
	if RoleInstructor.AtLeast(RoleModerator) {
		t.Error("instructor should not satisfy a moderator requirement")
	}
	if Role("bogus").AtLeast(RoleUser) {
		t.Error("unknown roles should never satisfy a requirement")
	}
	if RoleAdmin.AtLeast(Role("bogus")) {
		t.Error("no role satisfies an unknown requirement")
	}
}

func TestRolePermissionInheritance(t *testing.T) {
	// Each role keeps everything granted below it.
	if !RoleInstructor.HasPermission("course:read") {
		t.Error("instructor should inherit course:read from user")
	}
	if !RoleModerator.HasPermission("course:create") {
		t.Error("moderator should inherit course:create from instructor")
	}
	if !RoleAdmin.HasPermission("audit:read") {
		t.Error("admin should inherit audit:read from moderator")
	}
}

func TestRolePermissionBoundaries(t *testing.T) {
	if RoleUser.HasPermission("course:create") {
		t.Error("user should not create courses")
	}
	if RoleInstructor.HasPermission("audit:read") {
		t.Error("instructor should not read the audit log")
	}
	if !RoleModerator.HasPermission("audit:read") {
		t.Error("moderator should read the audit log")
	}
	if RoleModerator.HasPermission("user:delete") {
		t.Error("moderator should not delete users")
	}
	if !RoleAdmin.HasPermission("user:delete") {
		t.Error("admin should delete users")
	}
}

func TestUnknownRoleDegradesToUserPermissions(t *testing.T) {
	perms := Role("bogus").Permissions()
	if len(perms) != len(RoleUser.Permissions()) {
		t.Fatalf("unknown role should carry exactly the user permission set, got %d permissions", len(perms))
	}
	if !Role("bogus").HasPermission("course:read") {
		t.Error("unknown role should still read courses")
	}
	if Role("bogus").HasPermission("course:create") {
		t.Error("unknown role should not gain elevated permissions")
	}
}
