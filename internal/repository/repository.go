package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ocpalps/parkmeter/internal/domain"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEntry = errors.New("record already exists")
	// ErrConflict means the aggregate version changed between read and write.
	ErrConflict = errors.New("aggregate version conflict")
	// ErrAlreadyApplied means the access was already counted in its aggregate.
	ErrAlreadyApplied = errors.New("access already aggregated")
	// ErrAccessMismatch means the stored access with that id belongs to another facility.
	ErrAccessMismatch = errors.New("access recorded for another facility")
)

// AggregateMutator computes the next aggregate from the current one and the
// access as it is stored. It may be called once per write attempt and must
// not have side effects.
type AggregateMutator func(current domain.StatusAggregate, stored domain.VehicleAccess) domain.StatusAggregate

// AccessStore is the append-only access ledger plus the per-facility status
// aggregates derived from it.
type AccessStore interface {
	// Initialize verifies connectivity.
	Initialize(ctx context.Context) error

	// Append persists an access and returns its id. An empty ID is generated.
	Append(ctx context.Context, access *domain.VehicleAccess) (string, error)

	// GetLastAccess returns the access with the greatest timestamp for the pair.
	GetLastAccess(ctx context.Context, facilityID int, vehicleID string) (*domain.VehicleAccess, error)

	GetAggregate(ctx context.Context, facilityID int) (*domain.StatusAggregate, error)

	// ConditionalUpsertAggregate is one compare-and-swap attempt: read the
	// aggregate (or a blank one), apply mutate to the stored eventID, write only
	// if the version is unchanged, and mark eventID as aggregated in the same
	// step. It returns ErrConflict on a version mismatch, ErrAlreadyApplied if
	// eventID was already marked and ErrAccessMismatch if eventID is stored
	// under another facility.
	ConditionalUpsertAggregate(ctx context.Context, facilityID int, eventID string, mutate AggregateMutator) (*domain.StatusAggregate, error)

	// PendingAccesses lists accesses appended before the given instant that were
	// never aggregated, oldest first.
	PendingAccesses(ctx context.Context, before time.Time, limit int) ([]domain.VehicleAccess, error)
}

type FacilityRepository interface {
	Create(ctx context.Context, facility *domain.Facility) (*domain.Facility, error)
	FindByID(ctx context.Context, id int) (*domain.Facility, error)
	FindAll(ctx context.Context) ([]domain.Facility, error)
	Update(ctx context.Context, facility *domain.Facility) (*domain.Facility, error)
	Delete(ctx context.Context, id int) error
}

type SpaceRepository interface {
	Create(ctx context.Context, space *domain.Space) (*domain.Space, error)
	FindByID(ctx context.Context, id int) (*domain.Space, error)
	FindByFacilityID(ctx context.Context, facilityID int) ([]domain.Space, error)
	CountByFacilityID(ctx context.Context, facilityID int) (int, error)
	Delete(ctx context.Context, id int) error
}
