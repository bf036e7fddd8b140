package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents user role in the platform, ordered user < admin < owner.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
)

// ParseRole maps a stored role string to a Role, defaulting to user for
// unknown or missing values.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	case RoleOwner:
		return RoleOwner
	default:
		return RoleUser
	}
}

// User represents a platform user. A user claims at most one country in at
// most one community; CommunityID and Country are nil until a slot is claimed.
type User struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Password    string     `json:"-"`
	Name        string     `json:"name"`
	Role        Role       `json:"role"`
	CommunityID *uuid.UUID `json:"community_id,omitempty"`
	Country     *string    `json:"country,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        Role       `json:"role"`
	CommunityID *uuid.UUID `json:"community_id,omitempty"`
	Country     *string    `json:"country,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		CommunityID: u.CommunityID,
		Country:     u.Country,
		CreatedAt:   u.CreatedAt,
	}
}
