package auth

import "errors"

// Role is the authorisation tier carried in a token.
type Role string

const (
	// RoleUser is a household member. It may read state and send commands.
	RoleUser Role = "user"

	// RoleAdmin may additionally manage rooms, devices, schedules and scenes.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleUser, RoleAdmin}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Identity is the verified caller behind a request.
type Identity struct {
	Subject string `json:"sub"`
	Role    Role   `json:"role"`
}

// IsAdmin reports whether the identity may manage configuration.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

var (
	// ErrTokenInvalid is returned for any token that fails verification.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrMissingSecret is returned when signing or verifying without a secret.
	ErrMissingSecret = errors.New("jwt secret is not configured")
)
