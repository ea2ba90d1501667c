package auth

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleUser    Role = "USER"
)

// ParseRole normalizes s to a known role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleManager, RoleUser:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, s)
	}
}

// Identity is the verified caller carried through a request.
type Identity struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
}

func (i Identity) IsAdmin() bool { return Role(i.Role) == RoleAdmin }

// HasRole reports whether the identity holds one of roles.
func (i Identity) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if Role(i.Role) == r {
			return true
		}
	}
	return false
}

func (i Identity) normalized() Identity {
	i.ID = strings.TrimSpace(i.ID)
	i.Role = strings.ToUpper(strings.TrimSpace(i.Role))
	i.Department = strings.TrimSpace(i.Department)
	return i
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Department   string    `json:"department,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity returns the token subject for u.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Role: string(u.Role), Department: u.Department}
}

// NewUser is the input for creating an account.
type NewUser struct {
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"required,max=200"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
	Role       string `json:"role" validate:"required,oneof=ADMIN MANAGER USER"`
	Department string `json:"department,omitempty" validate:"max=100"`
}

// UserUpdate carries optional changes; nil fields are left untouched. An
// empty Department clears the assignment.
type UserUpdate struct {
	Email      *string `json:"email,omitempty"`
	Name       *string `json:"name,omitempty"`
	Password   *string `json:"password,omitempty"`
	Role       *string `json:"role,omitempty"`
	Department *string `json:"department,omitempty"`
	IsActive   *bool   `json:"is_active,omitempty"`
}

type UserFilter struct {
	Department string
	Role       Role
	Query      string
	Limit      int
	Offset     int
}
