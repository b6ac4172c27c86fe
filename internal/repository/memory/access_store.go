package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/repository"
)

type accessRecord struct {
	access     domain.VehicleAccess
	seq        uint64
	appendedAt time.Time
	aggregated bool
}

// AccessStore is an in-process ledger for development and tests. Reads and
// writes of a CAS attempt take the lock separately, so concurrent aggregators
// conflict the same way they do against a database.
type AccessStore struct {
	mu         sync.RWMutex
	seq        uint64
	partitions map[int][]*accessRecord
	byID       map[string]*accessRecord
	aggregates map[int]domain.StatusAggregate
	now        func() time.Time
}

func NewAccessStore() *AccessStore {
	return &AccessStore{
		partitions: map[int][]*accessRecord{},
		byID:       map[string]*accessRecord{},
		aggregates: map[int]domain.StatusAggregate{},
		now:        time.Now,
	}
}

func (s *AccessStore) Initialize(context.Context) error { return nil }

func (s *AccessStore) Append(_ context.Context, access *domain.VehicleAccess) (string, error) {
	if err := access.Validate(); err != nil {
		return "", fmt.Errorf("AccessStore.Append: %w", err)
	}
	if access.ID == "" {
		access.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[access.ID]; ok {
		return access.ID, fmt.Errorf("%w: access %s", repository.ErrDuplicateEntry, access.ID)
	}
	s.seq++
	rec := &accessRecord{access: *access, seq: s.seq, appendedAt: s.now()}
	s.byID[access.ID] = rec
	s.partitions[access.FacilityID] = append(s.partitions[access.FacilityID], rec)
	return access.ID, nil
}

func (s *AccessStore) GetLastAccess(_ context.Context, facilityID int, vehicleID string) (*domain.VehicleAccess, error) {
	vehicleID = domain.NormalizePlate(vehicleID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *accessRecord
	for _, rec := range s.partitions[facilityID] {
		if rec.access.VehicleID != vehicleID {
			continue
		}
		if last == nil || rec.access.TimeStamp.After(last.access.TimeStamp) ||
			(rec.access.TimeStamp.Equal(last.access.TimeStamp) && rec.seq > last.seq) {
			last = rec
		}
	}
	if last == nil {
		return nil, repository.ErrNotFound
	}
	out := last.access
	return &out, nil
}

func (s *AccessStore) GetAggregate(_ context.Context, facilityID int) (*domain.StatusAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.aggregates[facilityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &agg, nil
}

func (s *AccessStore) ConditionalUpsertAggregate(
	_ context.Context,
	facilityID int,
	eventID string,
	mutate repository.AggregateMutator,
) (*domain.StatusAggregate, error) {
	s.mu.RLock()
	rec, ok := s.byID[eventID]
	if !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("AccessStore.ConditionalUpsertAggregate: access %s: %w", eventID, repository.ErrNotFound)
	}
	stored := rec.access
	if stored.FacilityID != facilityID {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: access %s is in facility %d, not %d",
			repository.ErrAccessMismatch, eventID, stored.FacilityID, facilityID)
	}
	if rec.aggregated {
		s.mu.RUnlock()
		return nil, repository.ErrAlreadyApplied
	}
	current, exists := s.aggregates[facilityID]
	if !exists {
		current = domain.NewStatusAggregate(facilityID)
	}
	s.mu.RUnlock()

	next := mutate(current, stored)

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.aggregated {
		return nil, repository.ErrAlreadyApplied
	}
	if stored := s.aggregates[facilityID]; stored.Version != current.Version {
		return nil, repository.ErrConflict
	}
	next.ID = domain.StatusKey(facilityID)
	next.FacilityID = facilityID
	next.IsStatus = true
	next.Version = current.Version + 1
	s.aggregates[facilityID] = next
	rec.aggregated = true
	return &next, nil
}

func (s *AccessStore) PendingAccesses(_ context.Context, before time.Time, limit int) ([]domain.VehicleAccess, error) {
	s.mu.RLock()
	pending := make([]*accessRecord, 0)
	for _, rec := range s.byID {
		if !rec.aggregated && rec.appendedAt.Before(before) {
			pending = append(pending, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	out := make([]domain.VehicleAccess, 0, len(pending))
	for _, rec := range pending {
		out = append(out, rec.access)
	}
	return out, nil
}

var _ repository.AccessStore = (*AccessStore)(nil)
