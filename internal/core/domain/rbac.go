package domain

// Role is an ordinal position in the platform hierarchy. Each role
// inherits every permission granted to the roles below it.
type Role string

const (
	RoleUser       Role = "user"
	RoleInstructor Role = "instructor"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
)

// roleHierarchy orders roles from least to most privileged.
var roleHierarchy = []Role{RoleUser, RoleInstructor, RoleModerator, RoleAdmin}

// rolePermissions lists the permissions each role adds on top of the
// role directly below it.
var rolePermissions = map[Role][]string{
	RoleUser: {
		"course:read",
		"tutorial:read",
		"quiz:take",
		"progress:read",
		"progress:write",
		"payment:own",
		"profile:own",
	},
	RoleInstructor: {
		"course:create",
		"course:edit_own",
		"lesson:create",
		"lesson:edit_own",
		"tutorial:create",
		"tutorial:edit_own",
		"tutorial:upload_pdf",
		"student:view",
	},
	RoleModerator: {
		"course:edit_any",
		"lesson:edit_any",
		"tutorial:edit_any",
		"tutorial:delete",
		"user:view",
		"user:edit_plan",
		"audit:read",
	},
	RoleAdmin: {
		"course:delete",
		"lesson:delete",
		"user:edit_role",
		"user:delete",
		"admin:stats",
		"admin:settings",
		"payment:view_all",
		"payment:refund",
	},
}

// ParseRole maps a stored role string onto a known role. Unknown values
// degrade to the least privileged role rather than failing.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleUser, RoleInstructor, RoleModerator, RoleAdmin:
		return Role(s)
	default:
		return RoleUser
	}
}

// Level returns the ordinal position of the role in the hierarchy,
// or -1 when the role is unknown.
func (r Role) Level() int {
	for i, candidate := range roleHierarchy {
		if candidate == r {
			return i
		}
	}
	return -1
}

// AtLeast reports whether the role sits at or above min in the hierarchy.
func (r Role) AtLeast(min Role) bool {
	level, minLevel := r.Level(), min.Level()
	if level == -1 || minLevel == -1 {
		return false
	}
	return level >= minLevel
}

// Permissions resolves the full cumulative permission set for the role,
// including everything inherited from lower roles. Unknown roles resolve
// to the base user permissions.
func (r Role) Permissions() []string {
	level := r.Level()
	if level == -1 {
		level = 0
	}
	var perms []string
	for i := 0; i <= level; i++ {
		perms = append(perms, rolePermissions[roleHierarchy[i]]...)
	}
	return perms
}

// HasPermission reports whether the role grants the named permission,
// directly or by inheritance.
func (r Role) HasPermission(permission string) bool {
	for _, p := range r.Permissions() {
		if p == permission {
			return true
		}
	}
	return false
}
