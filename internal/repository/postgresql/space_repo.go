package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/repository"
)

type pgSpaceRepository struct {
	db *sql.DB
}

func NewPgSpaceRepository(db *sql.DB) repository.SpaceRepository {
	return &pgSpaceRepository{db: db}
}

func (r *pgSpaceRepository) Create(ctx context.Context, s *domain.Space) (*domain.Space, error) {
	query := `INSERT INTO spaces (parking_id, vehicle_type, special_attribute) VALUES ($1, $2, $3) RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, s.FacilityID, int(s.VehicleType), int(s.SpecialAttribute)).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("facility %d: %w", s.FacilityID, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("SpaceRepository.Create: %w", err)
	}
	s.CreatedAt = s.CreatedAt.In(time.UTC)
	return s, nil
}

func scanSpace(row rowScanner) (domain.Space, error) {
	var s domain.Space
	var vehicleType, attr int
	if err := row.Scan(&s.ID, &s.FacilityID, &vehicleType, &attr, &s.CreatedAt); err != nil {
		return s, err
	}
	s.VehicleType = domain.VehicleType(vehicleType)
	s.SpecialAttribute = domain.SpecialAttribute(attr)
	s.CreatedAt = s.CreatedAt.In(time.UTC)
	return s, nil
}

func (r *pgSpaceRepository) FindByID(ctx context.Context, id int) (*domain.Space, error) {
	query := `SELECT id, parking_id, vehicle_type, special_attribute, created_at FROM spaces WHERE id = $1`
	s, err := scanSpace(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("SpaceRepository.FindByID: %w", err)
	}
	return &s, nil
}

func (r *pgSpaceRepository) FindByFacilityID(ctx context.Context, facilityID int) ([]domain.Space, error) {
	query := `SELECT id, parking_id, vehicle_type, special_attribute, created_at FROM spaces WHERE parking_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, facilityID)
	if err != nil {
		return nil, fmt.Errorf("SpaceRepository.FindByFacilityID: %w", err)
	}
	defer rows.Close()

	spaces := make([]domain.Space, 0)
	for rows.Next() {
		s, err := scanSpace(rows)
		if err != nil {
			return nil, fmt.Errorf("SpaceRepository.FindByFacilityID (scanning row): %w", err)
		}
		spaces = append(spaces, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("SpaceRepository.FindByFacilityID (rows error): %w", err)
	}
	return spaces, nil
}

func (r *pgSpaceRepository) CountByFacilityID(ctx context.Context, facilityID int) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM spaces WHERE parking_id = $1`, facilityID).Scan(&n); err != nil {
		return 0, fmt.Errorf("SpaceRepository.CountByFacilityID: %w", err)
	}
	return n, nil
}

func (r *pgSpaceRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM spaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("SpaceRepository.Delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("SpaceRepository.Delete (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
