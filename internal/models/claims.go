package models

import "github.com/golang-jwt/jwt/v5"

// Application permissions
const (
	PermissionWalletRead  = "wallet:read"
	PermissionWalletWrite = "wallet:write"

	// Admin permissions
	PermissionSweepWrite = "sweep:write"
	PermissionAuditRead  = "audit:read"
)

// Roles recognised in tokens.
const (
	RoleUser    = "user"
	RoleService = "service"
	RoleAdmin   = "admin"
)

// UserClaims are the claims of an access token issued by the platform's
// identity service. Tokens are only verified here.
type UserClaims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"user_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// HasPermission checks if the claims include a specific permission
func (c *UserClaims) HasPermission(permission string) bool {
	if c.Role == RoleAdmin {
		return true
	}
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// GetDefaultPermissions returns default permissions based on role
func GetDefaultPermissions(role string) []string {
	switch role {
	case RoleAdmin:
		return []string{
			PermissionWalletRead,
			PermissionWalletWrite,
			PermissionSweepWrite,
			PermissionAuditRead,
		}
	case RoleService:
		return []string{
			PermissionWalletRead,
			PermissionWalletWrite,
			PermissionAuditRead,
		}
	case RoleUser:
		return []string{
			PermissionWalletRead,
		}
	default:
		return []string{}
	}
}
