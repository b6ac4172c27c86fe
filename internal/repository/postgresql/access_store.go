package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/guregu/null.v4"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/repository"
)

type pgAccessStore struct {
	db *sql.DB
}

func NewPgAccessStore(db *sql.DB) repository.AccessStore {
	return &pgAccessStore{db: db}
}

// Initialize checks the connection. The schema is created once at startup by EnsureSchema.
func (r *pgAccessStore) Initialize(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("AccessStore.Initialize: %w", err)
	}
	return nil
}

func (r *pgAccessStore) Append(ctx context.Context, access *domain.VehicleAccess) (string, error) {
	if err := access.Validate(); err != nil {
		return "", fmt.Errorf("AccessStore.Append: %w", err)
	}
	if access.ID == "" {
		access.ID = uuid.NewString()
	}
	query := `INSERT INTO vehicle_accesses (id, facility_id, space_id, direction, vehicle_id, vehicle_type, accessed_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		access.ID, access.FacilityID, access.SpaceID, int(access.Direction),
		access.VehicleID, int(access.VehicleType), access.TimeStamp.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return access.ID, fmt.Errorf("%w: access %s", repository.ErrDuplicateEntry, access.ID)
		}
		return "", fmt.Errorf("AccessStore.Append: %w", err)
	}
	return access.ID, nil
}

const accessColumns = `id, facility_id, space_id, direction, vehicle_id, vehicle_type, accessed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccess(row rowScanner) (domain.VehicleAccess, error) {
	var a domain.VehicleAccess
	var direction, vehicleType int
	if err := row.Scan(&a.ID, &a.FacilityID, &a.SpaceID, &direction, &a.VehicleID, &vehicleType, &a.TimeStamp); err != nil {
		return a, err
	}
	a.Direction = domain.AccessDirection(direction)
	a.VehicleType = domain.VehicleType(vehicleType)
	a.TimeStamp = a.TimeStamp.In(time.UTC)
	return a, nil
}

func (r *pgAccessStore) GetLastAccess(ctx context.Context, facilityID int, vehicleID string) (*domain.VehicleAccess, error) {
	query := `SELECT ` + accessColumns + ` FROM vehicle_accesses
	           WHERE facility_id = $1 AND vehicle_id = $2
	           ORDER BY accessed_at DESC, seq DESC LIMIT 1`
	a, err := scanAccess(r.db.QueryRowContext(ctx, query, facilityID, domain.NormalizePlate(vehicleID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("AccessStore.GetLastAccess: %w", err)
	}
	return &a, nil
}

func (r *pgAccessStore) GetAggregate(ctx context.Context, facilityID int) (*domain.StatusAggregate, error) {
	agg, err := getAggregate(ctx, r.db, facilityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("AccessStore.GetAggregate: %w", err)
	}
	return agg, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAggregate(ctx context.Context, q queryRower, facilityID int) (*domain.StatusAggregate, error) {
	agg := &domain.StatusAggregate{FacilityID: facilityID, IsStatus: true}
	query := `SELECT id, busy_spaces, version FROM parking_status WHERE facility_id = $1`
	if err := q.QueryRowContext(ctx, query, facilityID).Scan(&agg.ID, &agg.BusySpaces, &agg.Version); err != nil {
		return nil, err
	}
	return agg, nil
}

func (r *pgAccessStore) ConditionalUpsertAggregate(
	ctx context.Context,
	facilityID int,
	eventID string,
	mutate repository.AggregateMutator,
) (*domain.StatusAggregate, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("AccessStore.ConditionalUpsertAggregate (begin): %w", err)
	}
	defer tx.Rollback()

	stored := domain.VehicleAccess{ID: eventID}
	var direction int
	var aggregatedAt null.Time
	err = tx.QueryRowContext(ctx,
		`SELECT facility_id, direction, aggregated_at FROM vehicle_accesses WHERE id = $1`,
		eventID).Scan(&stored.FacilityID, &direction, &aggregatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("AccessStore.ConditionalUpsertAggregate: access %s: %w", eventID, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("AccessStore.ConditionalUpsertAggregate (event): %w", err)
	}
	if stored.FacilityID != facilityID {
		return nil, fmt.Errorf("%w: access %s is in facility %d, not %d",
			repository.ErrAccessMismatch, eventID, stored.FacilityID, facilityID)
	}
	if aggregatedAt.Valid {
		return nil, repository.ErrAlreadyApplied
	}
	stored.Direction = domain.AccessDirection(direction)

	current, err := getAggregate(ctx, tx, facilityID)
	if errors.Is(err, sql.ErrNoRows) {
		blank := domain.NewStatusAggregate(facilityID)
		current, err = &blank, nil
	}
	if err != nil {
		return nil, fmt.Errorf("AccessStore.ConditionalUpsertAggregate (aggregate): %w", err)
	}

	next := mutate(*current, stored)
	next.ID = domain.StatusKey(facilityID)
	next.FacilityID = facilityID
	next.IsStatus = true
	next.Version = current.Version + 1

	var res sql.Result
	if current.Version == 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO parking_status (id, facility_id, busy_spaces, version) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (facility_id) DO NOTHING`,
			next.ID, facilityID, next.BusySpaces, next.Version)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE parking_status SET busy_spaces = $1, version = $2, updated_at = CURRENT_TIMESTAMP
			 WHERE facility_id = $3 AND version = $4`,
			next.BusySpaces, next.Version, facilityID, current.Version)
	}
	if err := casOutcome(res, err, repository.ErrConflict); err != nil {
		return nil, err
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE vehicle_accesses SET aggregated_at = $1 WHERE id = $2 AND aggregated_at IS NULL`,
		time.Now().UTC(), eventID)
	if err := casOutcome(res, err, repository.ErrAlreadyApplied); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return nil, repository.ErrConflict
		}
		return nil, fmt.Errorf("AccessStore.ConditionalUpsertAggregate (commit): %w", err)
	}
	return &next, nil
}

// casOutcome maps a guarded write to onZero when it touched no rows.
func casOutcome(res sql.Result, err error, onZero error) error {
	if err != nil {
		if isSerializationFailure(err) || isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("AccessStore.ConditionalUpsertAggregate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("AccessStore.ConditionalUpsertAggregate (checking rows affected): %w", err)
	}
	if n == 0 {
		return onZero
	}
	return nil
}

func (r *pgAccessStore) PendingAccesses(ctx context.Context, before time.Time, limit int) ([]domain.VehicleAccess, error) {
	query := `SELECT ` + accessColumns + ` FROM vehicle_accesses
	           WHERE aggregated_at IS NULL AND appended_at < $1
	           ORDER BY seq LIMIT NULLIF($2, 0)`
	rows, err := r.db.QueryContext(ctx, query, before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("AccessStore.PendingAccesses: %w", err)
	}
	defer rows.Close()

	out := make([]domain.VehicleAccess, 0)
	for rows.Next() {
		a, err := scanAccess(rows)
		if err != nil {
			return nil, fmt.Errorf("AccessStore.PendingAccesses (scanning row): %w", err)
		}
		out = append(out, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("AccessStore.PendingAccesses (rows error): %w", err)
	}
	return out, nil
}
