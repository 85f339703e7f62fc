package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/hallpass-dev/hallpass/internal/hallpass/archive"
	"github.com/hallpass-dev/hallpass/internal/hallpass/rules"
	"github.com/hallpass-dev/hallpass/internal/hallpass/store"
	"github.com/hallpass-dev/hallpass/internal/hallpass/types"
	"github.com/hallpass-dev/hallpass/internal/metrics"
)

// DefaultRestroomLocationID is used when PassConfig leaves the restroom
// location empty.
const DefaultRestroomLocationID = "restroom"

// PassConfig holds the optional collaborators of a PassService.
type PassConfig struct {
	// RestroomLocationID is always accepted as a restroom pass destination.
	// Locations registered with Restroom set are accepted too.
	RestroomLocationID string

	// Sink receives the final snapshot of each archived pass. Nil skips export.
	Sink archive.Sink

	Metrics *metrics.Recorder

	// Now defaults to time.Now.
	Now func() time.Time
}

// PassService runs the pass lifecycle state machine. Every
// read-check-write sequence runs inside a store transaction.
type PassService struct {
	store    store.DocumentStore
	audit    *AuditLog
	restroom string
	sink     archive.Sink
	metrics  *metrics.Recorder
	now      func() time.Time
	logger   *log.Logger
}

func NewPassService(ds store.DocumentStore, audit *AuditLog, cfg PassConfig, logger *log.Logger) *PassService {
	restroom := strings.TrimSpace(cfg.RestroomLocationID)
	if restroom == "" {
		restroom = DefaultRestroomLocationID
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &PassService{
		store:    ds,
		audit:    audit,
		restroom: restroom,
		sink:     cfg.Sink,
		metrics:  cfg.Metrics,
		now:      now,
		logger:   logger,
	}
}

func (s *PassService) nowMillis() int64 {
	return s.now().UnixMilli()
}

func (s *PassService) CreatePass(ctx context.Context, req types.CreatePassRequest) (p types.Pass, err error) {
	defer func() { s.metrics.Transition("create", err) }()

	studentID := strings.TrimSpace(req.StudentID)
	origin := strings.TrimSpace(req.OriginLocationID)
	issuedBy := strings.TrimSpace(req.IssuedBy)
	dest := strings.TrimSpace(req.InitialDestination)
	if studentID == "" || origin == "" || issuedBy == "" || dest == "" {
		return types.Pass{}, fmt.Errorf("%w: student_id, origin_location_id, issued_by and initial_destination are required", ErrInvalidRequest)
	}

	passType := req.Type
	switch passType {
	case "":
		passType = types.PassRegular
	case types.PassRegular, types.PassRestroom, types.PassParking:
	default:
		return types.Pass{}, fmt.Errorf("%w: unknown pass type %q", ErrInvalidRequest, passType)
	}
	groupSize := req.GroupSize
	if groupSize <= 0 {
		groupSize = 1
	}

	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		open, err := tx.Query(ctx, store.CollectionPasses,
			store.Where("studentId", studentID),
			store.Where("status", string(types.StatusOpen)),
		)
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return fmt.Errorf("%w: %s", ErrActivePass, studentID)
		}
		if dest == origin {
			return ErrDestinationIsOrigin
		}

		p = types.Pass{
			StudentID:         studentID,
			Status:            types.StatusOpen,
			OpenedAt:          s.nowMillis(),
			OriginLocationID:  origin,
			CurrentLocationID: origin,
			IssuedBy:          issuedBy,
			Type:              passType,
			GroupSize:         groupSize,
		}
		doc, err := store.Encode(p)
		if err != nil {
			return err
		}
		p.ID, err = tx.Add(ctx, store.CollectionPasses, doc)
		return err
	})
	if err != nil {
		return types.Pass{}, err
	}
	return p, nil
}

// Out records the student leaving for next.
func (s *PassService) Out(ctx context.Context, passID, next string) (p types.Pass, err error) {
	defer func() { s.metrics.Transition("out", err) }()

	next = strings.TrimSpace(next)
	if next == "" {
		return types.Pass{}, fmt.Errorf("%w: location_id is required", ErrInvalidRequest)
	}

	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if p, err = loadPass(ctx, tx, passID); err != nil {
			return err
		}
		if !rules.IsPassOpen(p) {
			return ErrPassNotOpen
		}
		if !rules.CanOutTo(rules.CurrentLocation(p), next) {
			return ErrOutToCurrent
		}
		if p.Type == types.PassRestroom {
			ok, err := s.isRestroom(ctx, tx, next)
			if err != nil {
				return err
			}
			if !ok {
				return ErrRestroomDestination
			}
		}

		if err := s.appendLeg(ctx, tx, p, next, types.DirectionOut); err != nil {
			return err
		}
		p.CurrentLocationID = next
		return savePass(ctx, tx, p)
	})
	if err != nil {
		return types.Pass{}, err
	}
	return p, nil
}

// InAction records the student arriving at locationID. Arriving at the
// origin closes the pass.
func (s *PassService) InAction(ctx context.Context, passID, locationID string) (p types.Pass, err error) {
	defer func() { s.metrics.Transition("in", err) }()

	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return types.Pass{}, fmt.Errorf("%w: location_id is required", ErrInvalidRequest)
	}

	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if p, err = loadPass(ctx, tx, passID); err != nil {
			return err
		}
		if !rules.IsPassOpen(p) {
			return ErrPassNotOpen
		}
		if p.Type == types.PassRestroom {
			if !rules.IsValidRestroomReturn(p, locationID) {
				return ErrRestroomReturn
			}
		} else if !rules.CanInAt(p, locationID) {
			return ErrInvalidCheckIn
		}

		if err := s.appendLeg(ctx, tx, p, locationID, types.DirectionIn); err != nil {
			return err
		}
		p.CurrentLocationID = locationID
		if rules.IsScheduledLocation(p, locationID) {
			p.Status = types.StatusClosed
			p.ClosedAt = s.nowMillis()
		}
		return savePass(ctx, tx, p)
	})
	if err != nil {
		return types.Pass{}, err
	}
	return p, nil
}

// CheckIn is an alias for InAction.
func (s *PassService) CheckIn(ctx context.Context, passID, locationID string) (types.Pass, error) {
	return s.InAction(ctx, passID, locationID)
}

// ClosePass closes a pass whose student is back at the origin.
func (s *PassService) ClosePass(ctx context.Context, passID string) (p types.Pass, err error) {
	defer func() { s.metrics.Transition("close", err) }()

	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if p, err = loadPass(ctx, tx, passID); err != nil {
			return err
		}
		if !rules.IsPassOpen(p) {
			return ErrPassNotOpen
		}
		if !rules.IsScheduledLocation(p, rules.CurrentLocation(p)) {
			return ErrNotAtScheduledLocation
		}
		p.Status = types.StatusClosed
		p.ClosedAt = s.nowMillis()
		return savePass(ctx, tx, p)
	})
	if err != nil {
		return types.Pass{}, err
	}
	return p, nil
}

// ReturnPass is an alias for ClosePass.
func (s *PassService) ReturnPass(ctx context.Context, passID string) (types.Pass, error) {
	return s.ClosePass(ctx, passID)
}

// ForceClosePass closes an open pass wherever the student is.
func (s *PassService) ForceClosePass(ctx context.Context, passID string) (p types.Pass, err error) {
	defer func() { s.metrics.Transition("force_close", err) }()

	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if p, err = loadPass(ctx, tx, passID); err != nil {
			return err
		}
		if !rules.IsPassOpen(p) {
			return ErrPassNotOpen
		}
		p.Status = types.StatusClosed
		p.ClosedAt = s.nowMillis()
		p.ForceClosed = true
		return savePass(ctx, tx, p)
	})
	if err != nil {
		return types.Pass{}, err
	}
	return p, nil
}

// AutoClosePassesForStudent closes every open pass held by studentID and
// returns the closed passes. No open passes is not an error.
func (s *PassService) AutoClosePassesForStudent(ctx context.Context, studentID string) (closed []types.Pass, err error) {
	defer func() { s.metrics.Transition("auto_close", err) }()

	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		closed = closed[:0]
		snaps, err := tx.Query(ctx, store.CollectionPasses,
			store.Where("studentId", studentID),
			store.Where("status", string(types.StatusOpen)),
		)
		if err != nil {
			return err
		}
		passes, err := store.DecodeAll[types.Pass](snaps)
		if err != nil {
			return err
		}
		now := s.nowMillis()
		for _, p := range passes {
			p.Status = types.StatusClosed
			p.ClosedAt = now
			p.AutoClosed = true
			if err := savePass(ctx, tx, p); err != nil {
				return err
			}
			closed = append(closed, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// HandlePeriodChange auto-closes the student's passes and records the
// period change in the audit log.
func (s *PassService) HandlePeriodChange(ctx context.Context, studentID string) ([]types.Pass, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, fmt.Errorf("%w: student id is required", ErrInvalidRequest)
	}
	closed, err := s.AutoClosePassesForStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(closed))
	for _, p := range closed {
		ids = append(ids, p.ID)
	}
	s.recordAudit(ctx, "periodChange", map[string]any{
		"studentId":     studentID,
		"closedPassIds": ids,
	})
	return closed, nil
}

// ArchivePass marks a closed pass archived. With a sink configured the
// pass and its legs are exported first; a failed export leaves the pass
// unarchived so the next sweep retries it.
func (s *PassService) ArchivePass(ctx context.Context, passID string) (p types.Pass, err error) {
	defer func() {
		s.metrics.Transition("archive", err)
		if err == nil {
			s.metrics.Archived()
		}
	}()

	p, err = loadPass(ctx, s.store, passID)
	if err != nil {
		return types.Pass{}, err
	}
	if err := checkArchivable(p); err != nil {
		return types.Pass{}, err
	}

	archivedAt := s.nowMillis()
	if s.sink != nil {
		legs, err := s.ListLegs(ctx, passID)
		if err != nil {
			return types.Pass{}, err
		}
		rec := archive.Record{Pass: p, Legs: legs, ArchivedAt: archivedAt}
		if err := s.sink.Put(ctx, rec); err != nil {
			return types.Pass{}, fmt.Errorf("export pass %s: %w", passID, err)
		}
	}

	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if p, err = loadPass(ctx, tx, passID); err != nil {
			return err
		}
		if err := checkArchivable(p); err != nil {
			return err
		}
		p.Archived = true
		p.ArchivedAt = archivedAt
		return savePass(ctx, tx, p)
	})
	if err != nil {
		return types.Pass{}, err
	}
	return p, nil
}

func checkArchivable(p types.Pass) error {
	if p.Status != types.StatusClosed {
		return ErrPassNotClosed
	}
	if p.Archived {
		return ErrAlreadyArchived
	}
	return nil
}

func (s *PassService) GetPassStatus(ctx context.Context, passID string) (types.Pass, error) {
	return loadPass(ctx, s.store, passID)
}

// ListLegs returns the movement history of a pass ordered by leg number.
func (s *PassService) ListLegs(ctx context.Context, passID string) ([]types.PassLeg, error) {
	if _, err := loadPass(ctx, s.store, passID); err != nil {
		return nil, err
	}
	snaps, err := s.store.Query(ctx, store.LegsCollection(passID))
	if err != nil {
		return nil, err
	}
	return store.DecodeAll[types.PassLeg](snaps)
}

// ValidateAction reports whether an out or in to target would currently
// be accepted. It never writes; the only errors are lookup failures.
func (s *PassService) ValidateAction(ctx context.Context, passID string, action types.LegDirection, target string) (bool, error) {
	p, err := loadPass(ctx, s.store, passID)
	if err != nil {
		return false, err
	}
	if !rules.IsPassOpen(p) || target == "" {
		return false, nil
	}

	switch action {
	case types.DirectionOut:
		if !rules.CanOutTo(rules.CurrentLocation(p), target) {
			return false, nil
		}
		if p.Type == types.PassRestroom {
			return s.isRestroom(ctx, s.store, target)
		}
		return true, nil
	case types.DirectionIn:
		if p.Type == types.PassRestroom {
			return rules.IsValidRestroomReturn(p, target), nil
		}
		return rules.CanInAt(p, target), nil
	default:
		return false, nil
	}
}

// isRestroom reports whether locationID is the configured restroom or a
// registered location flagged as one.
func (s *PassService) isRestroom(ctx context.Context, r store.Reader, locationID string) (bool, error) {
	if rules.IsRestroomDestination(s.restroom, locationID) {
		return true, nil
	}
	loc, err := loadLocation(ctx, r, locationID)
	if errors.Is(err, ErrLocationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return loc.Restroom, nil
}

// OpenPasses returns every pass currently in the open state.
func (s *PassService) OpenPasses(ctx context.Context) ([]types.Pass, error) {
	snaps, err := s.store.Query(ctx, store.CollectionPasses, store.Where("status", string(types.StatusOpen)))
	if err != nil {
		return nil, err
	}
	return store.DecodeAll[types.Pass](snaps)
}

// ArchivablePasses returns closed, unarchived passes that closed at or
// before cutoff.
func (s *PassService) ArchivablePasses(ctx context.Context, cutoff time.Time) ([]types.Pass, error) {
	snaps, err := s.store.Query(ctx, store.CollectionPasses, store.Where("status", string(types.StatusClosed)))
	if err != nil {
		return nil, err
	}
	passes, err := store.DecodeAll[types.Pass](snaps)
	if err != nil {
		return nil, err
	}
	limit := cutoff.UnixMilli()
	out := passes[:0]
	for _, p := range passes {
		if !p.Archived && p.ClosedAt <= limit {
			out = append(out, p)
		}
	}
	return out, nil
}

// appendLeg writes the next leg for p. Callers run it inside the same
// transaction as the pass update so leg numbers stay gapless.
func (s *PassService) appendLeg(ctx context.Context, tx store.Tx, p types.Pass, locationID string, dir types.LegDirection) error {
	coll := store.LegsCollection(p.ID)
	existing, err := tx.Query(ctx, coll)
	if err != nil {
		return err
	}
	n := len(existing) + 1
	leg := types.PassLeg{
		LegID:      strconv.Itoa(n),
		PassID:     p.ID,
		StudentID:  p.StudentID,
		LocationID: locationID,
		ActorID:    p.IssuedBy,
		Direction:  dir,
		LegNumber:  n,
		Timestamp:  s.nowMillis(),
	}
	doc, err := store.Encode(leg)
	if err != nil {
		return err
	}
	return tx.Set(ctx, coll, leg.LegID, doc)
}

// recordAudit writes an audit entry. Failures are logged, not returned:
// the transition they describe has already committed.
func (s *PassService) recordAudit(ctx context.Context, action string, data any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogAudit(ctx, action, data); err != nil {
		s.logger.Printf("audit %s: %v", action, err)
	}
}
