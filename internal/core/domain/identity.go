package domain

import "strings"

// Role enumerates the newsroom roles recognised by the route guard.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleEditor    Role = "editor"
	RoleUser      Role = "user"
	RoleAnonymous Role = "anonymous"
)

// ParseRole normalises textual input into a known role. Unknown values map to RoleAnonymous.
func ParseRole(value string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleEditor:
		return RoleEditor
	case RoleUser:
		return RoleUser
	default:
		return RoleAnonymous
	}
}

// Valid reports whether the role is one of the authenticated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleUser:
		return true
	default:
		return false
	}
}

// Identity is the caller resolved from an authoritative identity provider.
// It lives for the duration of a single request.
type Identity struct {
	UserID      string
	Role        Role
	Permissions PermissionSet
}

// NewIdentity builds an identity whose permissions are derived from the role table.
func NewIdentity(userID string, role Role) Identity {
	return Identity{
		UserID:      userID,
		Role:        role,
		Permissions: PermissionsFor(role),
	}
}

// Authenticated reports whether the identity carries a user id and a non-anonymous role.
func (i Identity) Authenticated() bool {
	return strings.TrimSpace(i.UserID) != "" && i.Role.Valid()
}
