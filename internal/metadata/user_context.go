package metadata

import "fmt"

// Role is a user's authorization tier.
type Role string

const (
	RoleOperator Role = "operator"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// ParseRole converts a boundary string (JWT claim, CLI flag) into a Role.
// Values outside the closed set are rejected.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleOperator, RoleManager, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// UserContext represents the authenticated user, set by auth middleware.
type UserContext struct {
	ID         string `json:"id"`
	Role       Role   `json:"role"`
	IsVerified *bool  `json:"is_verified,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
}

// IsAdmin checks whether the user has the admin role.
func (u *UserContext) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Unverified reports whether the user is explicitly marked unverified.
// An absent flag counts as verified.
func (u *UserContext) Unverified() bool {
	return u.IsVerified != nil && !*u.IsVerified
}
