package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlate(t *testing.T) {
	assert.Equal(t, "AB123CD", NormalizePlate(" ab 123\tcd "))
	assert.Equal(t, "", NormalizePlate("   "))
}

func TestVehicleAccess_Normalize(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a := VehicleAccess{VehicleID: "ab 123 cd"}
	a.Normalize(now)
	assert.Equal(t, "AB123CD", a.VehicleID)
	assert.Equal(t, now, a.TimeStamp)

	loc := time.FixedZone("CET", 3600)
	b := VehicleAccess{VehicleID: "X", TimeStamp: time.Date(2026, 3, 1, 12, 0, 0, 0, loc)}
	b.Normalize(now)
	assert.Equal(t, time.UTC, b.TimeStamp.Location())
	assert.Equal(t, 11, b.TimeStamp.Hour())
}

func TestVehicleAccess_Validate(t *testing.T) {
	valid := VehicleAccess{FacilityID: 1, VehicleID: "AB123CD", Direction: DirectionIn}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*VehicleAccess)
	}{
		{"zero facility", func(a *VehicleAccess) { a.FacilityID = 0 }},
		{"negative facility", func(a *VehicleAccess) { a.FacilityID = -4 }},
		{"empty vehicle", func(a *VehicleAccess) { a.VehicleID = "" }},
		{"blank vehicle", func(a *VehicleAccess) { a.VehicleID = "  " }},
		{"zero direction", func(a *VehicleAccess) { a.Direction = 0 }},
		{"unknown vehicle type", func(a *VehicleAccess) { a.VehicleType = 9 }},
		{"reserved id", func(a *VehicleAccess) { a.ID = "_status_1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			assert.ErrorIs(t, a.Validate(), ErrInvalidAccess)
		})
	}
}

func TestStatusAggregate_Apply(t *testing.T) {
	agg := NewStatusAggregate(7)
	assert.Equal(t, "_status_7", agg.ID)
	assert.True(t, agg.IsStatus)

	agg = agg.Apply(VehicleAccess{Direction: DirectionIn})
	agg = agg.Apply(VehicleAccess{Direction: DirectionIn})
	agg = agg.Apply(VehicleAccess{Direction: DirectionOut})
	assert.Equal(t, 1, agg.BusySpaces)

	// Out before In is accepted and not clamped.
	neg := NewStatusAggregate(8).Apply(VehicleAccess{Direction: DirectionOut})
	assert.Equal(t, -1, neg.BusySpaces)
}

func TestNewParkingStatus(t *testing.T) {
	st := NewParkingStatus(1, 20, 5)
	assert.Equal(t, 15, st.FreeSpaces)
	assert.InDelta(t, 75.0, st.FreePercentage, 1e-9)
	assert.InDelta(t, 25.0, st.BusyPercentage, 1e-9)

	empty := NewParkingStatus(2, 0, 3)
	assert.Equal(t, -3, empty.FreeSpaces)
	assert.Zero(t, empty.FreePercentage)
	assert.Zero(t, empty.BusyPercentage)
}

func TestIsStatusKey(t *testing.T) {
	assert.True(t, IsStatusKey(StatusKey(12)))
	assert.False(t, IsStatusKey("b1f3c2"))
}
