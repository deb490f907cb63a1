// internal/permissions/permissions.go
package permissions

import "github.com/unclebandit/canvass-backend/internal/model"

// hierarchy is ordered from least to most privileged.
var hierarchy = []model.Role{
	model.RoleSuspended,
	model.RoleTexter,
	model.RoleSupervolunteer,
	model.RoleAdmin,
	model.RoleOwner,
}

// rank is the role's position in the hierarchy, -1 when unknown.
func rank(role model.Role) int {
	for i, r := range hierarchy {
		if r == role {
			return i
		}
	}
	return -1
}

func Valid(role model.Role) bool { return rank(role) >= 0 }

// HasRoleAtLeast reports whether have grants at least the rights of want.
func HasRoleAtLeast(have, want model.Role) bool {
	h, w := rank(have), rank(want)
	return h >= 0 && w >= 0 && h >= w
}

// HighestRole returns the most privileged known role in roles, or "" if
// none are known.
func HighestRole(roles []model.Role) model.Role {
	best := -1
	for _, r := range roles {
		if i := rank(r); i > best {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return hierarchy[best]
}

// HasRole reports whether the roles held in an organization satisfy want.
// A user whose highest role is SUSPENDED only satisfies SUSPENDED.
func HasRole(roles []model.Role, want model.Role) bool {
	return HasRoleAtLeast(HighestRole(roles), want)
}

// IsSuspended reports whether the user may not act as a texter.
func IsSuspended(roles []model.Role) bool {
	return !HasRole(roles, model.RoleTexter)
}
