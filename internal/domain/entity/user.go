package entity

import "time"

// Role is a user's fixed position in the procurement process
type Role string

const (
	RoleStaff      Role = "staff"
	RoleApproverL1 Role = "approver-level-1"
	RoleApproverL2 Role = "approver-level-2"
	RoleFinance    Role = "finance"
)

var validRoles = map[Role]bool{
	RoleStaff:      true,
	RoleApproverL1: true,
	RoleApproverL2: true,
	RoleFinance:    true,
}

// IsValid returns true if the role is one of the fixed role set
func (r Role) IsValid() bool {
	return validRoles[r]
}

// IsApprover returns true for either approver level. Both levels act as
// equivalent gatekeepers; a single decision from either finalizes a request.
func (r Role) IsApprover() bool {
	return r == RoleApproverL1 || r == RoleApproverL2
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// User is an identity known to the workflow engine. Authentication and role
// administration happen in an external layer; the engine only reads roles.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	Email     string    `json:"email,omitempty"`
	OpenID    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
