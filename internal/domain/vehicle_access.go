package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ErrInvalidAccess is returned for accesses that must never be persisted.
var ErrInvalidAccess = errors.New("invalid vehicle access")

type AccessDirection int

const (
	DirectionOut AccessDirection = -1
	DirectionIn  AccessDirection = 1
)

func (d AccessDirection) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

func (d AccessDirection) String() string {
	switch d {
	case DirectionIn:
		return "In"
	case DirectionOut:
		return "Out"
	default:
		return fmt.Sprintf("AccessDirection(%d)", int(d))
	}
}

type VehicleType int

const (
	VehicleCar VehicleType = iota
	VehicleCycle
	VehicleBike
	VehicleTruck
)

func (t VehicleType) Valid() bool {
	return t >= VehicleCar && t <= VehicleTruck
}

func (t VehicleType) String() string {
	switch t {
	case VehicleCar:
		return "Car"
	case VehicleCycle:
		return "Cycle"
	case VehicleBike:
		return "Bike"
	case VehicleTruck:
		return "Truck"
	default:
		return fmt.Sprintf("VehicleType(%d)", int(t))
	}
}

// VehicleAccess is one immutable in/out observation at a facility.
// SpaceID is best-effort and carries no allocation meaning.
type VehicleAccess struct {
	ID          string          `json:"id,omitempty"`
	TimeStamp   time.Time       `json:"timestamp"`
	FacilityID  int             `json:"facilityId"`
	SpaceID     int             `json:"spaceId"`
	Direction   AccessDirection `json:"direction"`
	VehicleID   string          `json:"vehicleId"`
	VehicleType VehicleType     `json:"vehicleType"`
}

// NormalizePlate upper-cases a plate and strips every whitespace rune.
func NormalizePlate(plate string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, plate)
}

// Normalize canonicalises the plate and timestamp. A zero timestamp is replaced by now.
func (a *VehicleAccess) Normalize(now time.Time) {
	a.VehicleID = NormalizePlate(a.VehicleID)
	if a.TimeStamp.IsZero() {
		a.TimeStamp = now
	}
	a.TimeStamp = a.TimeStamp.UTC()
}

func (a VehicleAccess) Validate() error {
	if a.FacilityID <= 0 {
		return fmt.Errorf("%w: facilityId must be positive, got %d", ErrInvalidAccess, a.FacilityID)
	}
	if strings.TrimSpace(a.VehicleID) == "" {
		return fmt.Errorf("%w: vehicleId is empty", ErrInvalidAccess)
	}
	if !a.Direction.Valid() {
		return fmt.Errorf("%w: direction must be 1 (In) or -1 (Out), got %d", ErrInvalidAccess, int(a.Direction))
	}
	if !a.VehicleType.Valid() {
		return fmt.Errorf("%w: unknown vehicleType %d", ErrInvalidAccess, int(a.VehicleType))
	}
	if IsStatusKey(a.ID) {
		return fmt.Errorf("%w: id %q uses the reserved status prefix", ErrInvalidAccess, a.ID)
	}
	return nil
}
