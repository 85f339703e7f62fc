package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hallpass-dev/hallpass/internal/hallpass/rules"
	"github.com/hallpass-dev/hallpass/internal/hallpass/store"
	"github.com/hallpass-dev/hallpass/internal/hallpass/types"
	"github.com/hallpass-dev/hallpass/internal/metrics"
)

// EscalationService raises notifications for passes left open too long.
// Side effects are not deduplicated: every call that finds a level writes
// a fresh notification and escalation record.
type EscalationService struct {
	store   store.DocumentStore
	metrics *metrics.Recorder
	now     func() time.Time
}

func NewEscalationService(ds store.DocumentStore, m *metrics.Recorder, now func() time.Time) *EscalationService {
	if now == nil {
		now = time.Now
	}
	return &EscalationService{store: ds, metrics: m, now: now}
}

// CheckEscalation returns the level p has reached under cfg, or
// EscalationNone.
func (s *EscalationService) CheckEscalation(p types.Pass, cfg rules.EscalationConfig) types.EscalationLevel {
	return rules.EscalationLevelAt(p, cfg, s.now())
}

func (s *EscalationService) DispatchNotification(ctx context.Context, p types.Pass, level types.EscalationLevel) error {
	return s.dispatchNotification(ctx, s.store, p, level)
}

func (s *EscalationService) LogEscalation(ctx context.Context, rec types.EscalationRecord) error {
	return s.logEscalation(ctx, s.store, rec)
}

// UpdatePassStatus merges the escalated overlay into the pass document.
// A closed pass is left alone and reported as ErrPassNotOpen.
func (s *EscalationService) UpdatePassStatus(ctx context.Context, passID string, level types.EscalationLevel) error {
	return s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := loadPass(ctx, tx, passID)
		if err != nil {
			return err
		}
		if !escalatable(p) {
			return fmt.Errorf("%w: %s", ErrPassNotOpen, passID)
		}
		return s.updatePassStatus(ctx, tx, passID, level)
	})
}

// HandleEscalation computes the level of p and, when one is warranted,
// notifies, logs and marks the pass escalated. It returns the computed
// level.
//
// The stored pass is re-read inside the transaction that writes the
// escalation. If it has been closed or archived since p was read, nothing
// is written and EscalationNone is returned.
func (s *EscalationService) HandleEscalation(ctx context.Context, p types.Pass, cfg rules.EscalationConfig) (types.EscalationLevel, error) {
	level := s.CheckEscalation(p, cfg)
	if level == types.EscalationNone {
		return level, nil
	}
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := loadPass(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if !escalatable(current) {
			level = types.EscalationNone
			return nil
		}
		if err := s.dispatchNotification(ctx, tx, current, level); err != nil {
			return err
		}
		err = s.logEscalation(ctx, tx, types.EscalationRecord{
			PassID:    current.ID,
			Level:     level,
			Timestamp: s.now().UnixMilli(),
		})
		if err != nil {
			return err
		}
		return s.updatePassStatus(ctx, tx, current.ID, level)
	})
	if err != nil {
		return level, err
	}
	if level != types.EscalationNone {
		s.metrics.Escalation(string(level))
	}
	return level, nil
}

func (s *EscalationService) dispatchNotification(ctx context.Context, w store.Writer, p types.Pass, level types.EscalationLevel) error {
	doc, err := store.Encode(types.Notification{
		Type:      types.NotificationTypeEscalation,
		PassID:    p.ID,
		StudentID: p.StudentID,
		Level:     level,
		Timestamp: s.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	if _, err := w.Add(ctx, store.CollectionNotifications, doc); err != nil {
		return fmt.Errorf("dispatch notification for %s: %w", p.ID, err)
	}
	return nil
}

func (s *EscalationService) logEscalation(ctx context.Context, w store.Writer, rec types.EscalationRecord) error {
	doc, err := store.Encode(rec)
	if err != nil {
		return err
	}
	if _, err := w.Add(ctx, store.CollectionEscalations, doc); err != nil {
		return fmt.Errorf("log escalation for %s: %w", rec.PassID, err)
	}
	return nil
}

func (s *EscalationService) updatePassStatus(ctx context.Context, w store.Writer, passID string, level types.EscalationLevel) error {
	err := w.Set(ctx, store.CollectionPasses, passID, store.Document{
		"status":          string(types.StatusEscalated),
		"escalationLevel": string(level),
		"escalatedAt":     s.now().UnixMilli(),
	}, store.Merge())
	if err != nil {
		return fmt.Errorf("update pass %s: %w", passID, err)
	}
	return nil
}

// escalatable reports whether an escalation may still be written to p.
// A pass already escalated stays escalatable so repeated calls keep
// recording side effects.
func escalatable(p types.Pass) bool {
	return p.Status != types.StatusClosed && !p.Archived
}
