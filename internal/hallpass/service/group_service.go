package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/hallpass-dev/hallpass/internal/hallpass/store"
	"github.com/hallpass-dev/hallpass/internal/hallpass/types"
)

// GroupService manages student groups and issues passes to a whole group.
type GroupService struct {
	store  store.DocumentStore
	passes *PassService
}

func NewGroupService(ds store.DocumentStore, passes *PassService) *GroupService {
	return &GroupService{store: ds, passes: passes}
}

// HasPermissionOverride reports whether g carries the permission bypass
// flag. Authorization decisions based on it live elsewhere.
func HasPermissionOverride(g types.Group) bool {
	return g.PermissionOverride
}

func (s *GroupService) CreateGroup(ctx context.Context, req types.CreateGroupRequest) (types.Group, error) {
	g := types.Group{
		Name:               strings.TrimSpace(req.Name),
		Type:               req.Type,
		StudentIDs:         dedupe(nil, req.StudentIDs),
		PermissionOverride: req.PermissionOverride,
	}
	if err := checkGroup(g); err != nil {
		return types.Group{}, err
	}
	doc, err := store.Encode(g)
	if err != nil {
		return types.Group{}, err
	}
	g.ID, err = s.store.Add(ctx, store.CollectionGroups, doc)
	if err != nil {
		return types.Group{}, err
	}
	return g, nil
}

func (s *GroupService) GetGroup(ctx context.Context, groupID string) (types.Group, error) {
	return loadGroup(ctx, s.store, groupID)
}

func (s *GroupService) ListGroups(ctx context.Context) ([]types.Group, error) {
	snaps, err := s.store.Query(ctx, store.CollectionGroups)
	if err != nil {
		return nil, err
	}
	return store.DecodeAll[types.Group](snaps)
}

// UpdateGroup replaces an existing group with g.
func (s *GroupService) UpdateGroup(ctx context.Context, g types.Group) (types.Group, error) {
	g.Name = strings.TrimSpace(g.Name)
	g.StudentIDs = dedupe(nil, g.StudentIDs)
	if err := checkGroup(g); err != nil {
		return types.Group{}, err
	}
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadGroup(ctx, tx, g.ID); err != nil {
			return err
		}
		return saveGroup(ctx, tx, g)
	})
	if err != nil {
		return types.Group{}, err
	}
	return g, nil
}

func (s *GroupService) DeleteGroup(ctx context.Context, groupID string) error {
	return s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadGroup(ctx, tx, groupID); err != nil {
			return err
		}
		return tx.Delete(ctx, store.CollectionGroups, groupID)
	})
}

// AssignStudents adds studentIDs to the group, keeping existing members
// first and skipping duplicates.
func (s *GroupService) AssignStudents(ctx context.Context, groupID string, studentIDs []string) (types.Group, error) {
	var g types.Group
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if g, err = loadGroup(ctx, tx, groupID); err != nil {
			return err
		}
		g.StudentIDs = dedupe(g.StudentIDs, studentIDs)
		return saveGroup(ctx, tx, g)
	})
	if err != nil {
		return types.Group{}, err
	}
	return g, nil
}

// CreateGroupPass issues one pass per group member, in member order. It is
// not atomic: when a member fails, the passes already created stay
// committed and are returned alongside the error.
func (s *GroupService) CreateGroupPass(ctx context.Context, groupID, scheduledLocationID, issuedBy, destination string, passType types.PassType) ([]types.Pass, error) {
	g, err := loadGroup(ctx, s.store, groupID)
	if err != nil {
		return nil, err
	}

	created := make([]types.Pass, 0, len(g.StudentIDs))
	for _, studentID := range g.StudentIDs {
		p, err := s.passes.CreatePass(ctx, types.CreatePassRequest{
			StudentID:          studentID,
			OriginLocationID:   scheduledLocationID,
			IssuedBy:           issuedBy,
			InitialDestination: destination,
			Type:               passType,
			GroupSize:          len(g.StudentIDs),
		})
		if err != nil {
			return created, fmt.Errorf("group %s member %s: %w", groupID, studentID, err)
		}
		created = append(created, p)
	}
	return created, nil
}

func checkGroup(g types.Group) error {
	if g.Name == "" {
		return fmt.Errorf("%w: group name is required", ErrInvalidRequest)
	}
	if g.Type != types.GroupPositive && g.Type != types.GroupNegative {
		return fmt.Errorf("%w: group type must be positive or negative", ErrInvalidRequest)
	}
	return nil
}

func saveGroup(ctx context.Context, w store.Writer, g types.Group) error {
	doc, err := store.Encode(g)
	if err != nil {
		return err
	}
	return w.Set(ctx, store.CollectionGroups, g.ID, doc)
}

// dedupe appends the non-empty ids in add to base, skipping any already
// present.
func dedupe(base, add []string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, id := range append(append([]string{}, base...), add...) {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

