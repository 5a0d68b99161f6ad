package models

import "time"

type Role string

const (
	RoleGuest  Role = "GUEST"
	RoleMember Role = "MEMBER"
	RoleAdmin  Role = "ADMIN"
)

// CanWrite reports whether the role is allowed to mutate the board.
func (r Role) CanWrite() bool {
	return r == RoleMember || r == RoleAdmin
}

type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Image      string     `json:"image"`
	Role       Role       `json:"role"`
	LastActive *time.Time `json:"lastActive"`
}

// OnlineUser is the shape returned by the online-users endpoint and
// carried in bulk fetches.
type OnlineUser struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Image      string     `json:"image"`
	LastActive *time.Time `json:"lastActive,omitempty"`
}
