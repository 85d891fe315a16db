package domain

import (
	"encoding/json"
	"slices"
)

// Role is a closed enumeration of account roles.
type Role string

// Roles assignable at registration, plus the reserved built-in administrator.
const (
	RoleCustomer     Role = "Customer"
	RoleVendor       Role = "Vendor"
	RoleAdmin        Role = "Admin"
	RoleHRManager    Role = "HR Manager"
	RoleFleetManager Role = "Fleet Manager"
	RoleInspector    Role = "Inspector"

	// RoleSuperAdmin belongs to the built-in administrator only and is never
	// stored on a registered account.
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// AssignableRoles lists the roles a registering user may pick.
var AssignableRoles = []Role{
	RoleCustomer,
	RoleVendor,
	RoleAdmin,
	RoleHRManager,
	RoleFleetManager,
	RoleInspector,
}

// Valid reports whether r is an assignable role.
func (r Role) Valid() bool {
	for _, role := range AssignableRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Permission is a capability code granted to an account.
type Permission string

// Permission catalog.
const (
	PermUserView      Permission = "USER_VIEW"
	PermUserManage    Permission = "USER_MANAGE"
	PermFleetView     Permission = "FLEET_VIEW"
	PermFleetManage   Permission = "FLEET_MANAGE"
	PermAuctionView   Permission = "AUCTION_VIEW"
	PermAuctionBid    Permission = "AUCTION_BID"
	PermAuctionManage Permission = "AUCTION_MANAGE"
	PermHRView        Permission = "HR_VIEW"
	PermHRManage      Permission = "HR_MANAGE"
	PermRoleManage    Permission = "ROLE_MANAGE"
	PermReportView    Permission = "REPORT_VIEW"
)

// Catalog returns every permission known to the system.
func Catalog() []Permission {
	return []Permission{
		PermUserView,
		PermUserManage,
		PermFleetView,
		PermFleetManage,
		PermAuctionView,
		PermAuctionBid,
		PermAuctionManage,
		PermHRView,
		PermHRManage,
		PermRoleManage,
		PermReportView,
	}
}

// PermissionSet is an unordered set of permission codes.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given codes.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports set membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Union returns a new set containing members of both sets.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	result := make(PermissionSet, len(s)+len(other))
	for p := range s {
		result[p] = struct{}{}
	}
	for p := range other {
		result[p] = struct{}{}
	}
	return result
}

// List returns the members sorted lexicographically.
func (s PermissionSet) List() []Permission {
	result := make([]Permission, 0, len(s))
	for p := range s {
		result = append(result, p)
	}
	slices.Sort(result)
	return result
}

// MarshalJSON encodes the set as a sorted JSON array of codes.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// UnmarshalJSON decodes a JSON array of codes.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var perms []Permission
	if err := json.Unmarshal(data, &perms); err != nil {
		return err
	}
	*s = NewPermissionSet(perms...)
	return nil
}

// DefaultPermissions is the minimum set applied to every committed account.
func DefaultPermissions() PermissionSet {
	return NewPermissionSet(PermUserView, PermFleetView)
}

// GrantsForRole returns the additional permissions a role carries on top of
// the default set.
func GrantsForRole(role Role) PermissionSet {
	switch role {
	case RoleVendor:
		return NewPermissionSet(PermAuctionView, PermAuctionBid)
	case RoleAdmin:
		return NewPermissionSet(PermUserManage, PermAuctionManage, PermReportView)
	case RoleHRManager:
		return NewPermissionSet(PermHRView, PermHRManage)
	case RoleFleetManager:
		return NewPermissionSet(PermFleetManage)
	case RoleInspector:
		return NewPermissionSet(PermAuctionView, PermReportView)
	default:
		return nil
	}
}

// FullCatalogSet returns every known permission as a set. Granted to the
// built-in administrator.
func FullCatalogSet() PermissionSet {
	return NewPermissionSet(Catalog()...)
}
