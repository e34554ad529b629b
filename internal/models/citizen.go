package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CitizenStatus is the watch-list state of a registered citizen.
type CitizenStatus string

const (
	CitizenStatusUnknown CitizenStatus = "Unknown"
	CitizenStatusFree    CitizenStatus = "Free"
	CitizenStatusWanted  CitizenStatus = "Wanted"
)

// ParseCitizenStatus accepts the stored spelling or a lowercase action
// ("free", "wanted"). Anything else is rejected.
func ParseCitizenStatus(s string) (CitizenStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return CitizenStatusFree, nil
	case "wanted":
		return CitizenStatusWanted, nil
	}
	return CitizenStatusUnknown, fmt.Errorf("invalid citizen status %q", s)
}

// Known reports whether the status is one of the registry states.
func (s CitizenStatus) Known() bool {
	return s == CitizenStatusFree || s == CitizenStatusWanted
}

type Citizen struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	Name       string        `json:"name" db:"name"`
	NationalID string        `json:"national_id" db:"national_id"`
	Address    string        `json:"address" db:"address"`
	PictureKey string        `json:"picture_key" db:"picture_key"` // MinIO key of the reference image
	Status     CitizenStatus `json:"status" db:"status"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" db:"updated_at"`
}
