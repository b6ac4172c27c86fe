package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/metrics"
	"github.com/ocpalps/parkmeter/internal/repository"
)

type ReconcilerConfig struct {
	Interval time.Duration
	// Grace keeps the reconciler away from accesses whose registration may
	// still be aggregating.
	Grace     time.Duration
	BatchSize int
}

// Reconciler re-drives aggregation for accesses that were appended but never
// counted: abandoned registrations and exhausted CAS retries.
type Reconciler struct {
	store      repository.AccessStore
	aggregator *StatusAggregator
	cfg        ReconcilerConfig
	metrics    *metrics.Ledger
	log        *zap.Logger
	now        func() time.Time
}

func NewReconciler(store repository.AccessStore, aggregator *StatusAggregator, cfg ReconcilerConfig, m *metrics.Ledger, log *zap.Logger) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{
		store:      store,
		aggregator: aggregator,
		cfg:        cfg,
		metrics:    m,
		log:        log.Named("reconciler"),
		now:        time.Now,
	}
}

// Run reconciles on every tick until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, r.cfg.Interval)
			n, err := r.RunOnce(runCtx)
			cancel()
			if err != nil {
				r.log.Error("reconcile pass failed", zap.Error(err))
			} else if n > 0 {
				r.log.Info("reconciled pending accesses", zap.Int("count", n))
			}
		}
	}
}

// RunOnce aggregates one batch of pending accesses and returns how many were
// counted. Failures on single accesses are logged and left for the next pass.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.store.PendingAccesses(ctx, r.now().Add(-r.cfg.Grace), r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, access := range pending {
		if ctx.Err() != nil {
			return applied, ctx.Err()
		}
		if _, err := r.aggregator.Apply(ctx, access); err != nil {
			r.metrics.Reconciled("failed")
			r.log.Warn("could not aggregate pending access",
				zap.String("access_id", access.ID), zap.Int("facility_id", access.FacilityID), zap.Error(err))
			continue
		}
		r.metrics.Reconciled("applied")
		applied++
	}
	return applied, nil
}
