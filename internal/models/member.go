package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a member's role within an organization.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleViewer  Role = "viewer"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleManager, RoleViewer}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, v := range Roles {
		if r == v {
			return true
		}
	}
	return false
}

// CanManage reports whether r may create or modify events and members.
func (r Role) CanManage() bool {
	return r == RoleAdmin || r == RoleManager
}

// Member belongs to exactly one organization; email is unique within it.
type Member struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
