package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hallpass-dev/hallpass/internal/hallpass/store"
	"github.com/hallpass-dev/hallpass/internal/hallpass/types"
)

// AuditLog appends free-form entries to the auditLogs collection.
type AuditLog struct {
	store store.DocumentStore
	now   func() time.Time
}

// NewAuditLog returns an audit log writing to ds. A nil now uses time.Now.
func NewAuditLog(ds store.DocumentStore, now func() time.Time) *AuditLog {
	if now == nil {
		now = time.Now
	}
	return &AuditLog{store: ds, now: now}
}

func (a *AuditLog) LogAudit(ctx context.Context, action string, data any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return fmt.Errorf("%w: audit action is required", ErrInvalidRequest)
	}
	doc, err := store.Encode(types.AuditEntry{
		Action:    action,
		Data:      data,
		Timestamp: a.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	_, err = a.store.Add(ctx, store.CollectionAuditLogs, doc)
	return err
}

// List returns every audit entry in write order.
func (a *AuditLog) List(ctx context.Context) ([]types.AuditEntry, error) {
	snaps, err := a.store.Query(ctx, store.CollectionAuditLogs)
	if err != nil {
		return nil, err
	}
	return store.DecodeAll[types.AuditEntry](snaps)
}

// PurgeOlderThan deletes entries stamped before cutoff and returns how
// many were removed.
func (a *AuditLog) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	limit := cutoff.UnixMilli()
	deleted := 0
	err := a.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		deleted = 0
		snaps, err := tx.Query(ctx, store.CollectionAuditLogs)
		if err != nil {
			return err
		}
		for _, snap := range snaps {
			entry, err := store.Decode[types.AuditEntry](snap)
			if err != nil {
				return err
			}
			if entry.Timestamp >= limit {
				continue
			}
			if err := tx.Delete(ctx, store.CollectionAuditLogs, snap.ID); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
