package enums

// UserRole is the platform role carried in access tokens.
type UserRole string

const (
	UserRoleStudent UserRole = "STUDENT"
	UserRoleStaff   UserRole = "STAFF"
	UserRoleAdmin   UserRole = "ADMIN"
)

var userRoles = set[UserRole]{
	UserRoleStudent,
	UserRoleStaff,
	UserRoleAdmin,
}

// IsValid reports whether the value is a known UserRole.
func (u UserRole) IsValid() bool {
	return userRoles.has(u)
}

// ParseUserRole converts raw input into an UserRole.
func ParseUserRole(value string) (UserRole, error) {
	return userRoles.parse("user role", value)
}
