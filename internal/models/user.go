package models

// Role values carried by User.Role and the persisted session record.
const (
	RoleAgent = "agent"
	RoleUser  = "user"
)

// User represents a seeded identity record. Users are never modified after seeding.
type User struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Avatar string `json:"avatar,omitempty"`
}

// IsAgent reports whether the user holds the privileged agent role.
func (u User) IsAgent() bool {
	return u.Role == RoleAgent
}
