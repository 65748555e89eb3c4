package relay

// Role is the identity a peer declares for itself in every message.
type Role string

const (
	RoleCamera   Role = "camera"
	RoleComputer Role = "computer"
)

// Roles lists every role in a stable order.
var Roles = [...]Role{RoleCamera, RoleComputer}

func (r Role) Valid() bool {
	return r == RoleCamera || r == RoleComputer
}

// Opposite returns the peer role. It returns "" for an invalid role.
func (r Role) Opposite() Role {
	switch r {
	case RoleCamera:
		return RoleComputer
	case RoleComputer:
		return RoleCamera
	default:
		return ""
	}
}

func (r Role) String() string { return string(r) }
