package model

type Role string

const (
	RoleClient       Role = "client"
	RolePractitioner Role = "practitioner"
	RoleAdmin        Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleClient, RolePractitioner, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// Actor is the explicit identity every core operation receives. The core never
// reads an ambient "current user"; callers resolve identity at the boundary
// (JWT, webhook signature) and pass it down.
type Actor struct {
	ID   string
	Role Role
}
