package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/guregu/null.v4"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/repository"
)

// MaxBulkSpaces caps a single bulk space creation.
const MaxBulkSpaces = 1000

// InventoryService manages facilities and their spaces and serves as the
// ledger's InventoryLookup.
type InventoryService struct {
	facilities repository.FacilityRepository
	spaces     repository.SpaceRepository
}

func NewInventoryService(facilities repository.FacilityRepository, spaces repository.SpaceRepository) *InventoryService {
	return &InventoryService{facilities: facilities, spaces: spaces}
}

// --- Facility ---
func (s *InventoryService) CreateFacility(ctx context.Context, dto domain.FacilityDTO) (*domain.Facility, error) {
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if dto.TotalSpaces < 0 {
		return nil, fmt.Errorf("%w: totalSpaces must not be negative", ErrInvalidInput)
	}
	f := &domain.Facility{
		Name:        name,
		Address:     null.NewString(dto.Address, dto.Address != ""),
		TotalSpaces: dto.TotalSpaces,
	}
	return s.facilities.Create(ctx, f)
}

func (s *InventoryService) GetFacilityByID(ctx context.Context, id int) (*domain.Facility, error) {
	return s.facilities.FindByID(ctx, id)
}

func (s *InventoryService) GetAllFacilities(ctx context.Context) ([]domain.Facility, error) {
	return s.facilities.FindAll(ctx)
}

func (s *InventoryService) UpdateFacility(ctx context.Context, id int, dto domain.FacilityDTO) (*domain.Facility, error) {
	f, err := s.facilities.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(dto.Name)
	if name == "" || dto.TotalSpaces < 0 {
		return nil, fmt.Errorf("%w: name is required and totalSpaces must not be negative", ErrInvalidInput)
	}
	f.Name = name
	f.Address = null.NewString(dto.Address, dto.Address != "")
	f.TotalSpaces = dto.TotalSpaces
	return s.facilities.Update(ctx, f)
}

// DeleteFacility removes the facility and its spaces. Recorded accesses are kept.
func (s *InventoryService) DeleteFacility(ctx context.Context, id int) error {
	return s.facilities.Delete(ctx, id)
}

// --- Space ---
func (s *InventoryService) CreateSpace(ctx context.Context, facilityID int, dto domain.SpaceDTO) (*domain.Space, error) {
	if err := validateSpace(dto); err != nil {
		return nil, err
	}
	if _, err := s.facilities.FindByID(ctx, facilityID); err != nil {
		return nil, err
	}
	return s.spaces.Create(ctx, &domain.Space{
		FacilityID:       facilityID,
		VehicleType:      dto.VehicleType,
		SpecialAttribute: dto.SpecialAttribute,
	})
}

// CreateSpaces adds n identical spaces to a facility.
func (s *InventoryService) CreateSpaces(ctx context.Context, facilityID, n int, dto domain.SpaceDTO) ([]domain.Space, error) {
	if n < 1 || n > MaxBulkSpaces {
		return nil, fmt.Errorf("%w: number of spaces must be between 1 and %d", ErrInvalidInput, MaxBulkSpaces)
	}
	if err := validateSpace(dto); err != nil {
		return nil, err
	}
	if _, err := s.facilities.FindByID(ctx, facilityID); err != nil {
		return nil, err
	}
	created := make([]domain.Space, 0, n)
	for i := 0; i < n; i++ {
		sp, err := s.spaces.Create(ctx, &domain.Space{
			FacilityID:       facilityID,
			VehicleType:      dto.VehicleType,
			SpecialAttribute: dto.SpecialAttribute,
		})
		if err != nil {
			return created, fmt.Errorf("InventoryService.CreateSpaces (%d of %d): %w", i+1, n, err)
		}
		created = append(created, *sp)
	}
	return created, nil
}

func validateSpace(dto domain.SpaceDTO) error {
	if !dto.VehicleType.Valid() {
		return fmt.Errorf("%w: unknown vehicleType %d", ErrInvalidInput, int(dto.VehicleType))
	}
	if !dto.SpecialAttribute.Valid() {
		return fmt.Errorf("%w: unknown specialAttribute %d", ErrInvalidInput, int(dto.SpecialAttribute))
	}
	return nil
}

func (s *InventoryService) GetSpacesByFacilityID(ctx context.Context, facilityID int) ([]domain.Space, error) {
	if _, err := s.facilities.FindByID(ctx, facilityID); err != nil {
		return nil, err
	}
	return s.spaces.FindByFacilityID(ctx, facilityID)
}

func (s *InventoryService) DeleteSpace(ctx context.Context, id int) error {
	return s.spaces.Delete(ctx, id)
}

// GetTotalSpaces returns the configured capacity of a facility, or the number
// of its spaces when no capacity is configured.
func (s *InventoryService) GetTotalSpaces(ctx context.Context, facilityID int) (int, error) {
	f, err := s.facilities.FindByID(ctx, facilityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("InventoryService.GetTotalSpaces: %w", err)
	}
	if f.TotalSpaces > 0 {
		return f.TotalSpaces, nil
	}
	n, err := s.spaces.CountByFacilityID(ctx, facilityID)
	if err != nil {
		return 0, fmt.Errorf("InventoryService.GetTotalSpaces: %w", err)
	}
	return n, nil
}

var _ InventoryLookup = (*InventoryService)(nil)
