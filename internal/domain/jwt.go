package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// Role constants
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// AccessClaims are the JWT claims the API accepts. Tokens are issued by the
// identity service that shares the signing secret.
type AccessClaims struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name,omitempty"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole checks if the claims carry a specific role
func (c *AccessClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
