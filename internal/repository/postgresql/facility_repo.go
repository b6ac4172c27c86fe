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

type pgFacilityRepository struct {
	db *sql.DB
}

func NewPgFacilityRepository(db *sql.DB) repository.FacilityRepository {
	return &pgFacilityRepository{db: db}
}

func (r *pgFacilityRepository) Create(ctx context.Context, f *domain.Facility) (*domain.Facility, error) {
	query := `INSERT INTO parkings (name, address, total_spaces) VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, f.Name, f.Address, f.TotalSpaces).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: facility name '%s'", repository.ErrDuplicateEntry, f.Name)
		}
		return nil, fmt.Errorf("FacilityRepository.Create: %w", err)
	}
	f.CreatedAt = f.CreatedAt.In(time.UTC)
	f.UpdatedAt = f.UpdatedAt.In(time.UTC)
	return f, nil
}

func (r *pgFacilityRepository) FindByID(ctx context.Context, id int) (*domain.Facility, error) {
	f := &domain.Facility{}
	query := `SELECT id, name, address, total_spaces, created_at, updated_at FROM parkings WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&f.ID, &f.Name, &f.Address, &f.TotalSpaces, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("FacilityRepository.FindByID: %w", err)
	}
	f.CreatedAt = f.CreatedAt.In(time.UTC)
	f.UpdatedAt = f.UpdatedAt.In(time.UTC)
	return f, nil
}

func (r *pgFacilityRepository) FindAll(ctx context.Context) ([]domain.Facility, error) {
	query := `SELECT id, name, address, total_spaces, created_at, updated_at FROM parkings ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("FacilityRepository.FindAll: %w", err)
	}
	defer rows.Close()

	facilities := make([]domain.Facility, 0)
	for rows.Next() {
		var f domain.Facility
		if err := rows.Scan(&f.ID, &f.Name, &f.Address, &f.TotalSpaces, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("FacilityRepository.FindAll (scanning row): %w", err)
		}
		f.CreatedAt = f.CreatedAt.In(time.UTC)
		f.UpdatedAt = f.UpdatedAt.In(time.UTC)
		facilities = append(facilities, f)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("FacilityRepository.FindAll (rows error): %w", err)
	}
	return facilities, nil
}

func (r *pgFacilityRepository) Update(ctx context.Context, f *domain.Facility) (*domain.Facility, error) {
	query := `UPDATE parkings SET name = $1, address = $2, total_spaces = $3, updated_at = CURRENT_TIMESTAMP WHERE id = $4 RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, f.Name, f.Address, f.TotalSpaces, f.ID).Scan(&f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: facility name '%s'", repository.ErrDuplicateEntry, f.Name)
		}
		return nil, fmt.Errorf("FacilityRepository.Update: %w", err)
	}
	f.UpdatedAt = f.UpdatedAt.In(time.UTC)
	return f, nil
}

func (r *pgFacilityRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM parkings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("FacilityRepository.Delete: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("FacilityRepository.Delete (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
