package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/metrics"
	"github.com/ocpalps/parkmeter/internal/repository"
)

// EmbeddedLedger talks directly to an AccessStore in the same process.
type EmbeddedLedger struct {
	store      repository.AccessStore
	aggregator *StatusAggregator
	inventory  InventoryLookup
	notifier   Notifier
	metrics    *metrics.Ledger
	log        *zap.Logger

	aggregationTimeout time.Duration
	now                func() time.Time
	initialized        atomic.Bool
}

type EmbeddedLedgerOptions struct {
	Inventory InventoryLookup
	Notifier  Notifier
	Metrics   *metrics.Ledger
	// AggregationTimeout bounds the aggregation step, which keeps running
	// after the caller goes away.
	AggregationTimeout time.Duration
}

func NewEmbeddedLedger(store repository.AccessStore, aggregator *StatusAggregator, opts EmbeddedLedgerOptions, log *zap.Logger) *EmbeddedLedger {
	if opts.AggregationTimeout <= 0 {
		opts.AggregationTimeout = 5 * time.Second
	}
	return &EmbeddedLedger{
		store:              store,
		aggregator:         aggregator,
		inventory:          opts.Inventory,
		notifier:           opts.Notifier,
		metrics:            opts.Metrics,
		log:                log.Named("ledger"),
		aggregationTimeout: opts.AggregationTimeout,
		now:                time.Now,
	}
}

func (l *EmbeddedLedger) Initialize(ctx context.Context) error {
	if err := l.store.Initialize(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	l.initialized.Store(true)
	l.log.Info("embedded ledger initialized")
	return nil
}

func (l *EmbeddedLedger) IsInitialized() bool {
	return l.initialized.Load()
}

func (l *EmbeddedLedger) RegisterAccess(ctx context.Context, access domain.VehicleAccess) domain.PersistenceResult {
	if !l.IsInitialized() {
		return domain.Failed(ErrNotInitialized)
	}

	access.Normalize(l.now())
	if err := access.Validate(); err != nil {
		l.metrics.Appended("invalid")
		return domain.Failed(err)
	}

	id, err := l.store.Append(ctx, &access)
	switch {
	case err == nil:
		l.metrics.Appended("ok")
	case errors.Is(err, repository.ErrDuplicateEntry):
		// Same id submitted again: the event is already durable, only the
		// aggregation may be missing.
		l.metrics.Appended("duplicate")
		l.log.Info("access already recorded, re-driving aggregation", zap.String("access_id", id))
		access.ID = id
	case errors.Is(err, domain.ErrInvalidAccess):
		l.metrics.Appended("invalid")
		return domain.Failed(err)
	default:
		l.metrics.Appended("error")
		l.log.Error("append failed", zap.Int("facility_id", access.FacilityID), zap.Error(err))
		res := domain.Failed(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
		l.notify(ctx, access, res, nil)
		return res
	}

	// The append is committed. Aggregation must not be abandoned with the caller.
	aggCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.aggregationTimeout)
	defer cancel()

	agg, err := l.aggregator.Apply(aggCtx, access)
	var res domain.PersistenceResult
	switch {
	case errors.Is(err, repository.ErrAccessMismatch):
		// The id is taken by an access of another facility. That access stays
		// pending for the reconciler; this submission is rejected.
		l.log.Warn("access id reused for another facility", zap.String("access_id", id), zap.Error(err))
		res = domain.Failed(fmt.Errorf("%w: %w", repository.ErrDuplicateEntry, err))
		l.notify(aggCtx, access, res, nil)
		return res
	case err != nil:
		l.log.Warn("access recorded without status update",
			zap.String("access_id", id), zap.Int("facility_id", access.FacilityID), zap.Error(err))
		res = domain.CompletedWithWarnings(id, err)
	default:
		res = domain.Completed(id)
	}
	l.notify(aggCtx, access, res, agg)
	return res
}

func (l *EmbeddedLedger) notify(ctx context.Context, access domain.VehicleAccess, res domain.PersistenceResult, agg *domain.StatusAggregate) {
	if l.notifier == nil {
		return
	}
	l.notifier.Notify(ctx, domain.NotificationFor(uuid.NewString(), access, res, agg, l.now()))
}

// GetParkingStatus merges the aggregate with the inventory. A facility
// without an aggregate has zero busy spaces; one unknown to the inventory
// has zero capacity.
func (l *EmbeddedLedger) GetParkingStatus(ctx context.Context, facilityID int) (*domain.ParkingStatus, error) {
	snapshot, err := l.GetStatusSnapshot(ctx, facilityID)
	busy := 0
	switch {
	case err == nil:
		busy = snapshot.BusySpaces
	case errors.Is(err, repository.ErrNotFound):
	default:
		return nil, err
	}

	total, err := totalSpaces(ctx, l.inventory, facilityID)
	if err != nil {
		return nil, err
	}
	status := domain.NewParkingStatus(facilityID, total, busy)
	return &status, nil
}

// GetStatusSnapshot returns the raw aggregate, or repository.ErrNotFound if
// nothing was ever counted for the facility.
func (l *EmbeddedLedger) GetStatusSnapshot(ctx context.Context, facilityID int) (*domain.StatusSnapshot, error) {
	if !l.IsInitialized() {
		return nil, ErrNotInitialized
	}
	if facilityID <= 0 {
		return nil, fmt.Errorf("%w: facilityId must be positive, got %d", domain.ErrInvalidAccess, facilityID)
	}
	agg, err := l.store.GetAggregate(ctx, facilityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return &domain.StatusSnapshot{FacilityID: facilityID, BusySpaces: agg.BusySpaces}, nil
}

func (l *EmbeddedLedger) GetLastVehicleAccess(ctx context.Context, facilityID int, vehicleID string) (*domain.VehicleAccess, error) {
	if !l.IsInitialized() {
		return nil, ErrNotInitialized
	}
	vehicleID = domain.NormalizePlate(vehicleID)
	if facilityID <= 0 || vehicleID == "" {
		return nil, fmt.Errorf("%w: facilityId and vehicleId are required", domain.ErrInvalidAccess)
	}
	access, err := l.store.GetLastAccess(ctx, facilityID, vehicleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return access, nil
}

// totalSpaces asks the inventory for capacity. Unknown facilities count as zero.
func totalSpaces(ctx context.Context, inventory InventoryLookup, facilityID int) (int, error) {
	if inventory == nil {
		return 0, nil
	}
	total, err := inventory.GetTotalSpaces(ctx, facilityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: inventory: %w", ErrUnavailable, err)
	}
	return total, nil
}

var _ Ledger = (*EmbeddedLedger)(nil)
