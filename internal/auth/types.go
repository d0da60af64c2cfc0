package auth

import (
	"errors"
	"slices"
)

// Role is the authorisation tier carried in a token.
type Role string

// Roles, lowest tier first.
const (
	RoleViewer   Role = "viewer"   // read settings, watch changes
	RoleOperator Role = "operator" // also change values
	RoleAdmin    Role = "admin"    // also provision and restore defaults
)

// ValidRoles lists the roles a token may carry, ordered by tier.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole reports whether r is one of ValidRoles.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
	ErrNoSecret     = errors.New("signing secret is empty")
)
