package models

import (
	"time"

	"github.com/google/uuid"
)

// Community represents a community with a fixed roster of country slots.
// The slot set never changes after creation; only occupants do.
// OccupiedCount always equals the number of occupied slots.
type Community struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	LogoURL        string    `json:"logoUrl,omitempty"`
	LogoKey        string    `json:"-"`
	TotalCountries int       `json:"totalCountries"`
	OccupiedCount  int       `json:"usersCount"`
	CreatedBy      uuid.UUID `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Slot is one (community, country) entry. UserID is nil while the slot is
// available.
type Slot struct {
	CommunityID uuid.UUID  `json:"community_id"`
	Country     string     `json:"country"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
}

// CountryRoster is a consistent snapshot of a community's slots.
type CountryRoster struct {
	AvailableCountries []string `json:"availableCountries"`
	TotalCountries     int      `json:"totalCountries"`
	AssignedCountries  []string `json:"assignedCountries"`
}
