package service

import (
	"context"
	"errors"

	"github.com/ocpalps/parkmeter/internal/domain"
)

var (
	ErrNotInitialized      = errors.New("ledger not initialized")
	ErrStoreUnavailable    = errors.New("access store unavailable")
	ErrAggregationConflict = errors.New("aggregation conflict: retry budget exhausted")
	ErrUnavailable         = errors.New("ledger unavailable")
	ErrInvalidInput        = errors.New("invalid input")
)

// Ledger registers vehicle accesses and answers occupancy queries. The
// embedded and remote implementations are interchangeable.
type Ledger interface {
	Initialize(ctx context.Context) error
	IsInitialized() bool

	// RegisterAccess never returns a Go error: every outcome, including
	// validation failures, is carried by the result.
	RegisterAccess(ctx context.Context, access domain.VehicleAccess) domain.PersistenceResult
	GetParkingStatus(ctx context.Context, facilityID int) (*domain.ParkingStatus, error)
	GetLastVehicleAccess(ctx context.Context, facilityID int, vehicleID string) (*domain.VehicleAccess, error)
}

// InventoryLookup supplies the capacity of a facility.
type InventoryLookup interface {
	GetTotalSpaces(ctx context.Context, facilityID int) (int, error)
}

// Notifier receives one notification per registration attempt.
type Notifier interface {
	Notify(ctx context.Context, n domain.AccessNotification)
}

// MultiNotifier fans a notification out to every non-nil notifier.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n domain.AccessNotification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}
