package domain

import "sort"

// Permission defines a named capability.
type Permission string

const (
	PermissionReadContent     Permission = "content:read"
	PermissionWriteComment    Permission = "comment:write"
	PermissionSubmitStory     Permission = "story:submit"
	PermissionSubmitAd        Permission = "ad:submit"
	PermissionWriteArticle    Permission = "article:write"
	PermissionPublishArticle  Permission = "article:publish"
	PermissionModerateComment Permission = "comment:moderate"
	PermissionManageUsers     Permission = "user:manage"
	PermissionManageAds       Permission = "ad:manage"
	PermissionManageSecurity  Permission = "security:manage"
)

// PermissionSet is an immutable-by-convention set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the supplied permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether the permission is present.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Strings returns the permissions sorted for stable header and log output.
func (s PermissionSet) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}

var (
	userPermissions = []Permission{
		PermissionReadContent,
		PermissionWriteComment,
		PermissionSubmitStory,
		PermissionSubmitAd,
	}
	editorPermissions = append(append([]Permission{}, userPermissions...),
		PermissionWriteArticle,
		PermissionPublishArticle,
		PermissionModerateComment,
	)
	adminPermissions = append(append([]Permission{}, editorPermissions...),
		PermissionManageUsers,
		PermissionManageAds,
		PermissionManageSecurity,
	)

	rolePermissions = map[Role][]Permission{
		RoleAnonymous: {PermissionReadContent, PermissionSubmitStory},
		RoleUser:      userPermissions,
		RoleEditor:    editorPermissions,
		RoleAdmin:     adminPermissions,
	}
)

// PermissionsFor returns a fresh permission set for the role.
func PermissionsFor(role Role) PermissionSet {
	return NewPermissionSet(rolePermissions[role]...)
}

// RoleRequirement lists the roles allowed to reach a route. An empty requirement
// means any authenticated role is sufficient.
type RoleRequirement []Role

// Allows reports whether the supplied role satisfies the requirement.
func (r RoleRequirement) Allows(role Role) bool {
	if !role.Valid() {
		return false
	}
	if len(r) == 0 {
		return true
	}
	for _, allowed := range r {
		if allowed == role {
			return true
		}
	}
	return false
}
