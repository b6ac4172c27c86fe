package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/metrics"
	"github.com/ocpalps/parkmeter/internal/repository"
)

type AggregatorConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{MaxAttempts: 5, InitialBackoff: 10 * time.Millisecond}
}

// StatusAggregator folds one appended access into its facility aggregate with
// an optimistic compare-and-swap loop.
type StatusAggregator struct {
	store   repository.AccessStore
	cfg     AggregatorConfig
	metrics *metrics.Ledger
	log     *zap.Logger
}

func NewStatusAggregator(store repository.AccessStore, cfg AggregatorConfig, m *metrics.Ledger, log *zap.Logger) *StatusAggregator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultAggregatorConfig().InitialBackoff
	}
	return &StatusAggregator{store: store, cfg: cfg, metrics: m, log: log.Named("aggregator")}
}

func (a *StatusAggregator) newBackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.cfg.InitialBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(a.cfg.MaxAttempts-1)), ctx)
}

// Apply counts access in its facility aggregate and returns the aggregate it
// wrote. An access that was already counted is not applied again; the stored
// aggregate is returned instead. Aggregate records are ignored, and an id
// stored under another facility fails with repository.ErrAccessMismatch.
func (a *StatusAggregator) Apply(ctx context.Context, access domain.VehicleAccess) (*domain.StatusAggregate, error) {
	if domain.IsStatusKey(access.ID) {
		a.log.Debug("skipping aggregate record", zap.String("id", access.ID))
		return nil, nil
	}

	// The stored record is applied, not the caller's copy.
	mutate := func(current domain.StatusAggregate, stored domain.VehicleAccess) domain.StatusAggregate {
		return current.Apply(stored)
	}

	var result *domain.StatusAggregate
	attempts := 0
	op := func() error {
		attempts++
		agg, err := a.store.ConditionalUpsertAggregate(ctx, access.FacilityID, access.ID, mutate)
		if err == nil {
			result = agg
			return nil
		}
		if errors.Is(err, repository.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		a.metrics.CASRetry()
		a.log.Debug("aggregate version conflict, retrying",
			zap.Int("facility_id", access.FacilityID),
			zap.String("access_id", access.ID),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait))
	}

	err := backoff.RetryNotify(op, a.newBackOff(ctx), notify)
	switch {
	case err == nil:
		a.metrics.Aggregated("applied")
		a.metrics.SetBusySpaces(result.FacilityID, result.BusySpaces)
		return result, nil
	case errors.Is(err, repository.ErrAlreadyApplied):
		a.metrics.Aggregated("already_applied")
		agg, getErr := a.store.GetAggregate(ctx, access.FacilityID)
		if getErr != nil {
			a.log.Warn("access already aggregated, aggregate unreadable",
				zap.String("access_id", access.ID), zap.Error(getErr))
			return nil, nil
		}
		return agg, nil
	case errors.Is(err, repository.ErrAccessMismatch):
		a.metrics.Aggregated("mismatch")
		return nil, fmt.Errorf("StatusAggregator.Apply: %w", err)
	case errors.Is(err, repository.ErrConflict):
		a.metrics.Aggregated("conflict_exhausted")
		return nil, fmt.Errorf("%w: facility %d, access %s after %d attempts",
			ErrAggregationConflict, access.FacilityID, access.ID, attempts)
	default:
		a.metrics.Aggregated("error")
		return nil, fmt.Errorf("StatusAggregator.Apply: %w", err)
	}
}
