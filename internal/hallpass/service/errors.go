package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/hallpass-dev/hallpass/internal/hallpass/store"
	"github.com/hallpass-dev/hallpass/internal/hallpass/types"
)

var (
	ErrInvalidRequest = errors.New("invalid request")

	ErrPassNotFound  = errors.New("pass not found")
	ErrGroupNotFound = errors.New("group not found")

	ErrLocationNotFound         = errors.New("location not found")
	ErrLocationPlanningBlocked  = errors.New("location blocked during planning period")
	ErrLocationAtCapacity       = errors.New("location at capacity")
	ErrLocationRequiresApproval = errors.New("location requires approval")
	ErrLocationTimeLimit        = errors.New("time limit exceeded for location")

	ErrActivePass             = errors.New("student already has an active pass")
	ErrDestinationIsOrigin    = errors.New("initial destination cannot equal origin")
	ErrPassNotOpen            = errors.New("pass is not open")
	ErrPassNotClosed          = errors.New("cannot archive pass that is not closed")
	ErrAlreadyArchived        = errors.New("pass is already archived")
	ErrOutToCurrent           = errors.New("cannot out to current location")
	ErrRestroomDestination    = errors.New("restroom pass can only go to restroom")
	ErrRestroomReturn         = errors.New("restroom pass must return to origin")
	ErrInvalidCheckIn         = errors.New("invalid check-in location")
	ErrNotAtScheduledLocation = errors.New("student is not at scheduled location")
)

func loadPass(ctx context.Context, r store.Reader, passID string) (types.Pass, error) {
	snap, err := r.Get(ctx, store.CollectionPasses, passID)
	if errors.Is(err, store.ErrNotFound) {
		return types.Pass{}, fmt.Errorf("%w: %s", ErrPassNotFound, passID)
	}
	if err != nil {
		return types.Pass{}, err
	}
	return store.Decode[types.Pass](snap)
}

func savePass(ctx context.Context, w store.Writer, p types.Pass) error {
	doc, err := store.Encode(p)
	if err != nil {
		return err
	}
	return w.Set(ctx, store.CollectionPasses, p.ID, doc)
}

func loadGroup(ctx context.Context, r store.Reader, groupID string) (types.Group, error) {
	snap, err := r.Get(ctx, store.CollectionGroups, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return types.Group{}, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
	}
	if err != nil {
		return types.Group{}, err
	}
	return store.Decode[types.Group](snap)
}
