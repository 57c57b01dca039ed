// internal/models/roles.go

package models

// UserRole представляє роль користувача в системі
type UserRole string

const (
	RoleUser       UserRole = "USER"
	RoleModerator  UserRole = "MODERATOR"
	RoleAdmin      UserRole = "ADMIN"
	RoleSuperAdmin UserRole = "SUPER_ADMIN"
)

// Permission is a capability checked by the admin routes.
type Permission string

const (
	PermModerateContent Permission = "moderate_content"
	PermManageIncidents Permission = "manage_incidents"
	PermManageCatalog   Permission = "manage_catalog"
	PermViewOutbox      Permission = "view_outbox"
)

var roleLevels = map[UserRole]int{
	RoleUser:       0,
	RoleModerator:  1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

var rolePermissions = map[UserRole][]Permission{
	RoleModerator:  {PermModerateContent, PermManageIncidents},
	RoleAdmin:      {PermModerateContent, PermManageIncidents, PermManageCatalog, PermViewOutbox},
	RoleSuperAdmin: {PermModerateContent, PermManageIncidents, PermManageCatalog, PermViewOutbox},
}

func (r UserRole) IsValid() bool {
	_, ok := roleLevels[r]
	return ok
}

// IsHigherOrEqual reports whether r sits at or above target in the hierarchy.
func (r UserRole) IsHigherOrEqual(target UserRole) bool {
	current, ok1 := roleLevels[r]
	required, ok2 := roleLevels[target]
	if !ok1 || !ok2 {
		return false
	}
	return current >= required
}

func (r UserRole) IsModerator() bool {
	return r.IsHigherOrEqual(RoleModerator)
}

func (r UserRole) HasPermission(p Permission) bool {
	for _, granted := range rolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

func (r UserRole) String() string {
	return string(r)
}

// ParseRole конвертує string в UserRole; порожній рядок означає USER.
func ParseRole(role string) (UserRole, bool) {
	if role == "" {
		return RoleUser, true
	}
	r := UserRole(role)
	if r.IsValid() {
		return r, true
	}
	return "", false
}
