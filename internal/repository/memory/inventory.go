package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ocpalps/parkmeter/internal/domain"
	"github.com/ocpalps/parkmeter/internal/repository"
)

// Inventory keeps facilities and spaces in memory. It implements both
// repository.FacilityRepository and repository.SpaceRepository so that
// deleting a facility cascades to its spaces like the SQL schema does.
type Inventory struct {
	mu         sync.RWMutex
	nextFacID  int
	nextSpace  int
	facilities map[int]domain.Facility
	spaces     map[int]domain.Space
}

func NewInventory() *Inventory {
	return &Inventory{
		facilities: map[int]domain.Facility{},
		spaces:     map[int]domain.Space{},
	}
}

// Facilities exposes the facility side of the inventory.
func (i *Inventory) Facilities() repository.FacilityRepository { return facilityView{i} }

// Spaces exposes the space side of the inventory.
func (i *Inventory) Spaces() repository.SpaceRepository { return spaceView{i} }

type facilityView struct{ *Inventory }

func (v facilityView) Create(_ context.Context, f *domain.Facility) (*domain.Facility, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, existing := range v.facilities {
		if strings.EqualFold(existing.Name, f.Name) {
			return nil, fmt.Errorf("%w: facility name '%s'", repository.ErrDuplicateEntry, f.Name)
		}
	}
	v.nextFacID++
	now := time.Now().UTC()
	f.ID = v.nextFacID
	f.CreatedAt, f.UpdatedAt = now, now
	v.facilities[f.ID] = *f
	return f, nil
}

func (v facilityView) FindByID(_ context.Context, id int) (*domain.Facility, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	f, ok := v.facilities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

func (v facilityView) FindAll(_ context.Context) ([]domain.Facility, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]domain.Facility, 0, len(v.facilities))
	for _, f := range v.facilities {
		out = append(out, f)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (v facilityView) Update(_ context.Context, f *domain.Facility) (*domain.Facility, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.facilities[f.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	for id, existing := range v.facilities {
		if id != f.ID && strings.EqualFold(existing.Name, f.Name) {
			return nil, fmt.Errorf("%w: facility name '%s'", repository.ErrDuplicateEntry, f.Name)
		}
	}
	f.UpdatedAt = time.Now().UTC()
	v.facilities[f.ID] = *f
	return f, nil
}

func (v facilityView) Delete(_ context.Context, id int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.facilities[id]; !ok {
		return repository.ErrNotFound
	}
	delete(v.facilities, id)
	for sid, s := range v.spaces {
		if s.FacilityID == id {
			delete(v.spaces, sid)
		}
	}
	return nil
}

type spaceView struct{ *Inventory }

func (v spaceView) Create(_ context.Context, s *domain.Space) (*domain.Space, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.facilities[s.FacilityID]; !ok {
		return nil, fmt.Errorf("facility %d: %w", s.FacilityID, repository.ErrNotFound)
	}
	v.nextSpace++
	s.ID = v.nextSpace
	s.CreatedAt = time.Now().UTC()
	v.spaces[s.ID] = *s
	return s, nil
}

func (v spaceView) FindByID(_ context.Context, id int) (*domain.Space, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s, ok := v.spaces[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (v spaceView) FindByFacilityID(_ context.Context, facilityID int) ([]domain.Space, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]domain.Space, 0)
	for _, s := range v.spaces {
		if s.FacilityID == facilityID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (v spaceView) CountByFacilityID(ctx context.Context, facilityID int) (int, error) {
	spaces, err := v.FindByFacilityID(ctx, facilityID)
	return len(spaces), err
}

func (v spaceView) Delete(_ context.Context, id int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.spaces[id]; !ok {
		return repository.ErrNotFound
	}
	delete(v.spaces, id)
	return nil
}
