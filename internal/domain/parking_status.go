package domain

import (
	"strconv"
	"strings"
)

// StatusKeyPrefix is the reserved key prefix of aggregate documents. Existing
// datasets depend on it, do not change.
const StatusKeyPrefix = "_status_"

func StatusKey(facilityID int) string {
	return StatusKeyPrefix + strconv.Itoa(facilityID)
}

func IsStatusKey(id string) bool {
	return strings.HasPrefix(id, StatusKeyPrefix)
}

// StatusAggregate is the single mutable occupancy counter of a facility.
// BusySpaces is never clamped and may go negative or above capacity.
type StatusAggregate struct {
	ID         string `json:"id"`
	FacilityID int    `json:"facilityId"`
	BusySpaces int    `json:"busySpaces"`
	IsStatus   bool   `json:"isStatus"`
	// Version is 0 until the aggregate has been written once.
	Version int64 `json:"version"`
}

func NewStatusAggregate(facilityID int) StatusAggregate {
	return StatusAggregate{
		ID:         StatusKey(facilityID),
		FacilityID: facilityID,
		IsStatus:   true,
	}
}

// Apply returns the aggregate after counting one access.
func (s StatusAggregate) Apply(access VehicleAccess) StatusAggregate {
	s.BusySpaces += int(access.Direction)
	return s
}

// StatusSnapshot is the wire shape of an aggregate, without inventory.
type StatusSnapshot struct {
	FacilityID int `json:"facilityId"`
	BusySpaces int `json:"busySpaces"`
}

// ParkingStatus is computed per request from an aggregate and the inventory.
type ParkingStatus struct {
	FacilityID     int     `json:"facilityId"`
	TotalSpaces    int     `json:"totalSpaces"`
	BusySpaces     int     `json:"busySpaces"`
	FreeSpaces     int     `json:"freeSpaces"`
	FreePercentage float64 `json:"freePercentage"`
	BusyPercentage float64 `json:"busyPercentage"`
}

func NewParkingStatus(facilityID, totalSpaces, busySpaces int) ParkingStatus {
	st := ParkingStatus{
		FacilityID:  facilityID,
		TotalSpaces: totalSpaces,
		BusySpaces:  busySpaces,
		FreeSpaces:  totalSpaces - busySpaces,
	}
	if totalSpaces != 0 {
		st.FreePercentage = float64(st.FreeSpaces) / float64(totalSpaces) * 100
		st.BusyPercentage = float64(busySpaces) / float64(totalSpaces) * 100
	}
	return st
}
