package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the caller's membership role. The set is closed.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleBoard  Role = "board"
	RoleMember Role = "member"
	RoleAlumni Role = "alumni"
	RoleGuest  Role = "guest"
)

type roleCaps struct {
	canOrganize      bool
	helperRestricted bool
}

var roleTable = map[Role]roleCaps{
	RoleAdmin:  {canOrganize: true},
	RoleBoard:  {canOrganize: true},
	RoleMember: {},
	RoleAlumni: {helperRestricted: true},
	RoleGuest:  {},
}

// ParseRole maps a stored or token role name onto the closed set.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := roleTable[r]
	return r, ok
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleTable[r]
	return ok
}

// CanOrganize reports whether the role may create, edit and delete events.
func (r Role) CanOrganize() bool { return roleTable[r].canOrganize }

// HelperRestricted reports whether the role is barred from helper slots.
// Helper types are hidden from such roles and slot signups are rejected.
func (r Role) HelperRestricted() bool { return roleTable[r].helperRestricted }

// RoleAllowed reports whether r is in allowed. An empty list admits everyone.
func RoleAllowed(allowed []Role, r Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}

// EventVisibleTo reports whether r may see an event restricted to allowed.
// Organizers see every event.
func EventVisibleTo(allowed []Role, r Role) bool {
	return r.CanOrganize() || RoleAllowed(allowed, r)
}

// Identity is the authenticated caller as seen by the engine.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

// User represents an intranet member.
type User struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	Password        string    `json:"-"`
	FullName        string    `json:"full_name"`
	Role            Role      `json:"role"`
	NotifyNewEvents bool      `json:"notify_new_events"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     Role      `json:"role"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
	}
}

// Identity returns the engine identity of u.
func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Role: u.Role}
}
