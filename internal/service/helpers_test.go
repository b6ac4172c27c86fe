package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/repository"
	"github.com/ocpalps/parkmeter/internal/repository/memory"
)

// scriptedStore wraps the memory store and can inject failures.
type scriptedStore struct {
	*memory.AccessStore
	appendErr   error
	conflicts   int32 // number of CAS calls that fail with ErrConflict before delegating
	upsertErr   error
	upsertCalls atomic.Int32
}

func newScriptedStore() *scriptedStore {
	return &scriptedStore{AccessStore: memory.NewAccessStore()}
}

func (s *scriptedStore) Append(ctx context.Context, a *domain.VehicleAccess) (string, error) {
	if s.appendErr != nil {
		return "", s.appendErr
	}
	return s.AccessStore.Append(ctx, a)
}

func (s *scriptedStore) ConditionalUpsertAggregate(ctx context.Context, facilityID int, eventID string, mutate repository.AggregateMutator) (*domain.StatusAggregate, error) {
	n := s.upsertCalls.Add(1)
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	if n <= atomic.LoadInt32(&s.conflicts) {
		return nil, repository.ErrConflict
	}
	return s.AccessStore.ConditionalUpsertAggregate(ctx, facilityID, eventID, mutate)
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []domain.AccessNotification
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.AccessNotification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recordingNotifier) last() domain.AccessNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[len(r.items)-1]
}

type staticInventory map[int]int

func (s staticInventory) GetTotalSpaces(_ context.Context, facilityID int) (int, error) {
	total, ok := s[facilityID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return total, nil
}

func fastAggregator(store repository.AccessStore, attempts int) *StatusAggregator {
	return NewStatusAggregator(store, AggregatorConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond}, nil, zap.NewNop())
}

func newTestLedger(t *testing.T, store repository.AccessStore, opts EmbeddedLedgerOptions) *EmbeddedLedger {
	t.Helper()
	l := NewEmbeddedLedger(store, fastAggregator(store, 5), opts, zap.NewNop())
	require.NoError(t, l.Initialize(context.Background()))
	return l
}

func carIn(facility int, plate string) domain.VehicleAccess {
	return domain.VehicleAccess{FacilityID: facility, VehicleID: plate, Direction: domain.DirectionIn}
}

func carOut(facility int, plate string) domain.VehicleAccess {
	return domain.VehicleAccess{FacilityID: facility, VehicleID: plate, Direction: domain.DirectionOut}
}
