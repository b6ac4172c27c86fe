package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// Facility is a parking lot or garage.
type Facility struct {
	ID      int         `json:"id"`
	Name    string      `json:"name"`
	Address null.String `json:"address"`
	// TotalSpaces overrides the space count when positive.
	TotalSpaces int       `json:"totalSpaces,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type FacilityDTO struct {
	Name        string `json:"name" binding:"required"`
	Address     string `json:"address"`
	TotalSpaces int    `json:"totalSpaces" binding:"gte=0"`
}

type SpecialAttribute int

const (
	SpecialNone SpecialAttribute = iota
	SpecialDisabledPeople
	SpecialNeeds
	SpecialNotAvailable
)

func (a SpecialAttribute) Valid() bool {
	return a >= SpecialNone && a <= SpecialNotAvailable
}

type Space struct {
	ID               int              `json:"id"`
	FacilityID       int              `json:"facilityId"`
	VehicleType      VehicleType      `json:"vehicleType"`
	SpecialAttribute SpecialAttribute `json:"specialAttribute"`
	CreatedAt        time.Time        `json:"createdAt"`
}

type SpaceDTO struct {
	VehicleType      VehicleType      `json:"vehicleType"`
	SpecialAttribute SpecialAttribute `json:"specialAttribute"`
}
