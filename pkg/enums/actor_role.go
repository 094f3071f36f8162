package enums

import "fmt"

// ActorRole is the platform role carried in access token claims.
type ActorRole string

const (
	ActorRoleAdmin    ActorRole = "admin"
	ActorRoleOperator ActorRole = "operator"
	ActorRoleViewer   ActorRole = "viewer"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleOperator,
	ActorRoleViewer,
}

// IsValid reports whether the value matches the canonical role enum.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// Privileged reports whether the role may invoke admin-only operations.
func (r ActorRole) Privileged() bool {
	return r == ActorRoleAdmin
}

// ParseActorRole converts raw input into ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
