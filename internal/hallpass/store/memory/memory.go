// Package memory is an in-process DocumentStore intended for tests and dev
// environments. Documents are kept as JSON so reads never alias writes.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hallpass-dev/hallpass/internal/hallpass/store"
)

type collection struct {
	docs  map[string][]byte
	order []string
}

func (c *collection) clone() *collection {
	docs := make(map[string][]byte, len(c.docs))
	for k, v := range c.docs {
		docs[k] = v
	}
	order := make([]string, len(c.order))
	copy(order, c.order)
	return &collection{docs: docs, order: order}
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

var _ store.DocumentStore = (*Store)(nil)

func New() *Store {
	return &Store{
		collections: make(map[string]*collection),
	}
}

func (s *Store) Get(_ context.Context, coll, id string) (store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(coll, id)
}

func (s *Store) Query(_ context.Context, coll string, preds ...store.Predicate) ([]store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query(coll, preds)
}

func (s *Store) Add(_ context.Context, coll string, data store.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(coll, data)
}

func (s *Store) Set(_ context.Context, coll, id string, data store.Document, opts ...store.SetOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(coll, id, data, store.MergeEnabled(opts))
}

func (s *Store) Delete(_ context.Context, coll, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delete(coll, id)
	return nil
}

// RunInTransaction holds the store's write lock for the duration of fn, so
// transactions are fully serialized. On error every write made by fn is
// discarded. fn must only use the Tx it is given.
//
// A collection is copied the first time fn writes to it, so a transaction
// costs only as much as the collections it touches.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &txn{s: s, saved: make(map[string]*collection)}
	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

// ── Unlocked internals, callers hold s.mu ──────────────────────────────────

func (s *Store) get(coll, id string) (store.Snapshot, error) {
	c, ok := s.collections[coll]
	if !ok {
		return store.Snapshot{}, fmt.Errorf("%s/%s: %w", coll, id, store.ErrNotFound)
	}
	raw, ok := c.docs[id]
	if !ok {
		return store.Snapshot{}, fmt.Errorf("%s/%s: %w", coll, id, store.ErrNotFound)
	}
	doc, err := unmarshal(raw)
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Snapshot{ID: id, Data: doc}, nil
}

func (s *Store) query(coll string, preds []store.Predicate) ([]store.Snapshot, error) {
	c, ok := s.collections[coll]
	if !ok {
		return nil, nil
	}
	var out []store.Snapshot
	for _, id := range c.order {
		doc, err := unmarshal(c.docs[id])
		if err != nil {
			return nil, err
		}
		if store.Matches(doc, preds) {
			out = append(out, store.Snapshot{ID: id, Data: doc})
		}
	}
	return out, nil
}

func (s *Store) add(coll string, data store.Document) (string, error) {
	id := uuid.NewString()
	doc := store.CloneDocument(data)
	doc["id"] = id
	if err := s.put(coll, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) set(coll, id string, data store.Document, merge bool) error {
	doc := data
	if merge {
		existing, err := s.get(coll, id)
		if err == nil {
			doc = existing.Data
			for k, v := range data {
				doc[k] = v
			}
		}
	}
	return s.put(coll, id, doc)
}

func (s *Store) put(coll, id string, doc store.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", coll, id, err)
	}
	c, ok := s.collections[coll]
	if !ok {
		c = &collection{docs: make(map[string][]byte)}
		s.collections[coll] = c
	}
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = raw
	return nil
}

func (s *Store) delete(coll, id string) {
	c, ok := s.collections[coll]
	if !ok {
		return
	}
	if _, exists := c.docs[id]; !exists {
		return
	}
	delete(c.docs, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
}

func unmarshal(raw []byte) (store.Document, error) {
	var doc store.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}

// txn routes calls to the unlocked internals while RunInTransaction holds
// the write lock. saved keeps the pre-transaction copy of each collection
// written so far; nil means the collection did not exist.
type txn struct {
	s     *Store
	saved map[string]*collection
}

func (t *txn) save(coll string) {
	if _, ok := t.saved[coll]; ok {
		return
	}
	if c, ok := t.s.collections[coll]; ok {
		t.saved[coll] = c.clone()
		return
	}
	t.saved[coll] = nil
}

func (t *txn) rollback() {
	for name, c := range t.saved {
		if c == nil {
			delete(t.s.collections, name)
			continue
		}
		t.s.collections[name] = c
	}
}

func (t *txn) Get(_ context.Context, coll, id string) (store.Snapshot, error) {
	return t.s.get(coll, id)
}

func (t *txn) Query(_ context.Context, coll string, preds ...store.Predicate) ([]store.Snapshot, error) {
	return t.s.query(coll, preds)
}

func (t *txn) Add(_ context.Context, coll string, data store.Document) (string, error) {
	t.save(coll)
	return t.s.add(coll, data)
}

func (t *txn) Set(_ context.Context, coll, id string, data store.Document, opts ...store.SetOption) error {
	t.save(coll)
	return t.s.set(coll, id, data, store.MergeEnabled(opts))
}

func (t *txn) Delete(_ context.Context, coll, id string) error {
	t.save(coll)
	t.s.delete(coll, id)
	return nil
}
