// Package access answers authorization queries against the active session.
package access

import "github.com/carify/identity-service/internal/domain"

// Can reports whether the session is allowed to perform the capability named
// by code. The built-in administrator passes every check; an absent session
// passes none. The check is pure and has no side effects.
func Can(session *domain.Session, code domain.Permission) bool {
	if session == nil {
		return false
	}
	if session.IsSuperAdmin() {
		return true
	}
	return session.Account.Permissions.Has(code)
}

// Allowed is the role/permission-set form of Can, used by middleware where
// only token claims are available rather than a full session.
func Allowed(role domain.Role, perms domain.PermissionSet, code domain.Permission) bool {
	if role == domain.RoleSuperAdmin {
		return true
	}
	return perms.Has(code)
}
