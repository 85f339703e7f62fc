package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hallpass-dev/hallpass/internal/hallpass/store"
	"github.com/hallpass-dev/hallpass/internal/hallpass/types"
)

// LocationService manages the registry of rooms and areas passes move
// between.
type LocationService struct {
	store store.DocumentStore
}

func NewLocationService(ds store.DocumentStore) *LocationService {
	return &LocationService{store: ds}
}

func (s *LocationService) CreateLocation(ctx context.Context, loc types.Location) (types.Location, error) {
	loc = normalizeLocation(loc)
	if err := checkLocation(loc); err != nil {
		return types.Location{}, err
	}
	loc.ID = ""
	doc, err := store.Encode(loc)
	if err != nil {
		return types.Location{}, err
	}
	loc.ID, err = s.store.Add(ctx, store.CollectionLocations, doc)
	if err != nil {
		return types.Location{}, err
	}
	return loc, nil
}

func (s *LocationService) GetLocation(ctx context.Context, id string) (types.Location, error) {
	return loadLocation(ctx, s.store, id)
}

func (s *LocationService) ListLocations(ctx context.Context) ([]types.Location, error) {
	snaps, err := s.store.Query(ctx, store.CollectionLocations)
	if err != nil {
		return nil, err
	}
	return store.DecodeAll[types.Location](snaps)
}

// UpdateLocation replaces an existing location with loc.
func (s *LocationService) UpdateLocation(ctx context.Context, loc types.Location) (types.Location, error) {
	loc = normalizeLocation(loc)
	if err := checkLocation(loc); err != nil {
		return types.Location{}, err
	}
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadLocation(ctx, tx, loc.ID); err != nil {
			return err
		}
		return saveLocation(ctx, tx, loc)
	})
	if err != nil {
		return types.Location{}, err
	}
	return loc, nil
}

func (s *LocationService) DeleteLocation(ctx context.Context, id string) error {
	return s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadLocation(ctx, tx, id); err != nil {
			return err
		}
		return tx.Delete(ctx, store.CollectionLocations, id)
	})
}

// AssignStaffToLocation replaces the staff list of a location.
func (s *LocationService) AssignStaffToLocation(ctx context.Context, id string, staffIDs []string) (types.Location, error) {
	var loc types.Location
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if loc, err = loadLocation(ctx, tx, id); err != nil {
			return err
		}
		loc.StaffIDs = dedupe(nil, staffIDs)
		return saveLocation(ctx, tx, loc)
	})
	if err != nil {
		return types.Location{}, err
	}
	return loc, nil
}

// CheckLocationRestrictions returns nil when a student may use the
// location. timeSpentMinutes is only compared against the time limit when
// non-nil. Shared locations ignore capacity.
func (s *LocationService) CheckLocationRestrictions(ctx context.Context, id string, timeSpentMinutes *int) error {
	loc, err := loadLocation(ctx, s.store, id)
	if err != nil {
		return err
	}
	switch {
	case loc.PlanningBlocked:
		return ErrLocationPlanningBlocked
	case !loc.Shared && loc.Capacity > 0 && loc.CurrentCount >= loc.Capacity:
		return ErrLocationAtCapacity
	case loc.RequiresApproval:
		return ErrLocationRequiresApproval
	case loc.TimeLimitMinutes > 0 && timeSpentMinutes != nil && *timeSpentMinutes > loc.TimeLimitMinutes:
		return ErrLocationTimeLimit
	}
	return nil
}

func loadLocation(ctx context.Context, r store.Reader, id string) (types.Location, error) {
	snap, err := r.Get(ctx, store.CollectionLocations, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.Location{}, fmt.Errorf("%w: %s", ErrLocationNotFound, id)
	}
	if err != nil {
		return types.Location{}, err
	}
	return store.Decode[types.Location](snap)
}

func saveLocation(ctx context.Context, w store.Writer, loc types.Location) error {
	doc, err := store.Encode(loc)
	if err != nil {
		return err
	}
	return w.Set(ctx, store.CollectionLocations, loc.ID, doc)
}

func normalizeLocation(loc types.Location) types.Location {
	loc.Name = strings.TrimSpace(loc.Name)
	loc.StaffIDs = dedupe(nil, loc.StaffIDs)
	if len(loc.StaffIDs) == 0 {
		loc.StaffIDs = nil
	}
	return loc
}

func checkLocation(loc types.Location) error {
	if loc.Name == "" {
		return fmt.Errorf("%w: location name is required", ErrInvalidRequest)
	}
	if loc.Capacity < 0 || loc.CurrentCount < 0 || loc.TimeLimitMinutes < 0 {
		return fmt.Errorf("%w: capacity, current count and time limit cannot be negative", ErrInvalidRequest)
	}
	return nil
}
