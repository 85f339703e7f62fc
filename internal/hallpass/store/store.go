package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no document exists at the ref.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidDocument is returned when a stored document fails schema validation.
	ErrInvalidDocument = errors.New("invalid document")
)

// Collection names used by the pass core.
const (
	CollectionPasses        = "passes"
	CollectionNotifications = "notifications"
	CollectionEscalations   = "escalations"
	CollectionGroups        = "groups"
	CollectionAuditLogs     = "auditLogs"
	CollectionLocations     = "locations"
)

// LegsCollection returns the per-pass leg collection, legs/{passID}.
func LegsCollection(passID string) string {
	return "legs/" + passID
}

// Document is the loosely typed body of a stored document. Use Encode and
// Decode to cross into typed structs.
type Document map[string]any

// Snapshot is a point-in-time read of one document.
type Snapshot struct {
	ID   string
	Data Document
}

// Predicate is an equality filter on a top-level document field.
type Predicate struct {
	Field string
	Value any
}

func Where(field string, value any) Predicate {
	return Predicate{Field: field, Value: value}
}

type setOptions struct {
	merge bool
}

// SetOption tunes Set.
type SetOption func(*setOptions)

// Merge makes Set overlay the given fields onto the existing document
// instead of replacing it.
func Merge() SetOption {
	return func(o *setOptions) { o.merge = true }
}

func applySetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// MergeEnabled reports whether opts request a merge write. Exposed for
// store implementations living in sub-packages.
func MergeEnabled(opts []SetOption) bool {
	return applySetOptions(opts).merge
}

// Reader is the read side of the document store.
type Reader interface {
	Get(ctx context.Context, collection, id string) (Snapshot, error)
	// Query returns documents matching every predicate, in insertion order.
	Query(ctx context.Context, collection string, preds ...Predicate) ([]Snapshot, error)
}

// Writer is the write side of the document store.
type Writer interface {
	// Add creates a document with a store-assigned id. The id is also
	// written into the document's "id" field.
	Add(ctx context.Context, collection string, data Document) (string, error)
	Set(ctx context.Context, collection, id string, data Document, opts ...SetOption) error
	Delete(ctx context.Context, collection, id string) error
}

// Tx is the view of the store handed to a transaction function.
type Tx interface {
	Reader
	Writer
}

// DocumentStore is a collection-scoped document store. Reads and writes
// made through the Tx passed to RunInTransaction are isolated from other
// transactions; if fn returns an error none of its writes land.
type DocumentStore interface {
	Tx
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
