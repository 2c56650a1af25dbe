package domain

type ClientID string

type UserRole string

const (
	RoleUser       UserRole = "user"
	RoleAdmin      UserRole = "admin"
	RoleSuperadmin UserRole = "superadmin"
)

// Identity is attached to a connection by the external account system.
// The signaling core only reads it; it never verifies or enforces anything.
type Identity struct {
	UserID      string
	DisplayName string
	Role        UserRole
}

func (i Identity) IsAnonymous() bool {
	return i.UserID == ""
}
