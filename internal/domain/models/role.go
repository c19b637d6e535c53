// internal/domain/models/role.go
package models

import (
	"fmt"
	"strings"
)

// Role is the coarse access level carried in tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// AllRoles lists every role a token may carry.
var AllRoles = []Role{RoleUser, RoleAdmin}

// ParseRole normalizes s and returns the matching Role.
// Unknown strings are an error; callers must not pass them through.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllRoles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// OrDefault returns RoleUser for the zero value.
func (r Role) OrDefault() Role {
	if r == "" {
		return RoleUser
	}
	return r
}

// IsAdmin reports whether r is the admin role.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}
