// Package archive exports the final state of archived passes to long-term
// storage.
package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hallpass-dev/hallpass/internal/hallpass/types"
)

// Record is the exported form of an archived pass: the pass document and
// every leg recorded against it.
type Record struct {
	Pass       types.Pass      `json:"pass"`
	Legs       []types.PassLeg `json:"legs"`
	ArchivedAt int64           `json:"archivedAt"`
}

// Sink receives archive records. Put must be safe to retry with the same
// record.
type Sink interface {
	Put(ctx context.Context, rec Record) error
}

// Key returns the object key for a record, partitioned by the month the
// pass closed, e.g. passes/2026/03/<passId>.json.
func Key(rec Record) string {
	ts := rec.Pass.ClosedAt
	if ts == 0 {
		ts = rec.ArchivedAt
	}
	t := time.UnixMilli(ts).UTC()
	return fmt.Sprintf("passes/%04d/%02d/%s.json", t.Year(), int(t.Month()), rec.Pass.ID)
}

// MemorySink keeps records in memory. Intended for tests and dev.
type MemorySink struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string]Record)}
}

func (m *MemorySink) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[Key(rec)] = rec
	return nil
}

// Records returns a copy of everything stored, keyed by object key.
func (m *MemorySink) Records() map[string]Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Record, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out
}
