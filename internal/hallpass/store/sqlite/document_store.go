package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/hallpass-dev/hallpass/internal/db"
	"github.com/hallpass-dev/hallpass/internal/hallpass/store"
)

// DocumentStore keeps every collection in the single documents table, one
// JSON body per row. Reads go straight to the pool; every write, and every
// transaction, is funnelled through the single-writer Worker.
type DocumentStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

var _ store.DocumentStore = (*DocumentStore)(nil)

func NewDocumentStore(db *sql.DB, writer *dbpkg.Worker) *DocumentStore {
	return &DocumentStore{db: db, writer: writer}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (store.Snapshot, error) {
	return getDoc(ctx, s.db, collection, id)
}

func (s *DocumentStore) Query(ctx context.Context, collection string, preds ...store.Predicate) ([]store.Snapshot, error) {
	return queryDocs(ctx, s.db, collection, preds)
}

func (s *DocumentStore) Add(ctx context.Context, collection string, data store.Document) (string, error) {
	var id string
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		id, err = addDoc(ctx, tx, collection, data)
		return err
	})
	return id, err
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, data store.Document, opts ...store.SetOption) error {
	merge := store.MergeEnabled(opts)
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return setDoc(ctx, tx, collection, id, data, merge)
	})
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
DELETE FROM documents WHERE collection = ? AND doc_id = ?;
`, collection, id); err != nil {
			return fmt.Errorf("Delete %s/%s: %w", collection, id, err)
		}
		return nil
	})
}

// RunInTransaction runs fn inside one Worker transaction. fn must only use
// the Tx it is given; calling back into the DocumentStore from fn would wait
// on the connection the transaction holds.
func (s *DocumentStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &txView{tx: tx})
	})
}

type txView struct {
	tx *sql.Tx
}

func (t *txView) Get(ctx context.Context, collection, id string) (store.Snapshot, error) {
	return getDoc(ctx, t.tx, collection, id)
}

func (t *txView) Query(ctx context.Context, collection string, preds ...store.Predicate) ([]store.Snapshot, error) {
	return queryDocs(ctx, t.tx, collection, preds)
}

func (t *txView) Add(ctx context.Context, collection string, data store.Document) (string, error) {
	return addDoc(ctx, t.tx, collection, data)
}

func (t *txView) Set(ctx context.Context, collection, id string, data store.Document, opts ...store.SetOption) error {
	return setDoc(ctx, t.tx, collection, id, data, store.MergeEnabled(opts))
}

func (t *txView) Delete(ctx context.Context, collection, id string) error {
	if _, err := t.tx.ExecContext(ctx, `
DELETE FROM documents WHERE collection = ? AND doc_id = ?;
`, collection, id); err != nil {
		return fmt.Errorf("Delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// ── Shared statements ───────────────────────────────────────────────────────

func getDoc(ctx context.Context, q queryer, collection, id string) (store.Snapshot, error) {
	var raw string
	err := q.QueryRowContext(ctx, `
SELECT data FROM documents WHERE collection = ? AND doc_id = ?;
`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Snapshot{}, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("Get %s/%s: %w", collection, id, err)
	}
	doc, err := unmarshal(raw)
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Snapshot{ID: id, Data: doc}, nil
}

func queryDocs(ctx context.Context, q queryer, collection string, preds []store.Predicate) ([]store.Snapshot, error) {
	var sb strings.Builder
	sb.WriteString("SELECT doc_id, data FROM documents WHERE collection = ?")
	args := []any{collection}

	for _, p := range preds {
		path := "$." + p.Field
		switch v := store.Normalize(p.Value).(type) {
		case nil:
			sb.WriteString(" AND json_type(data, ?) = 'null'")
			args = append(args, path)
		case bool:
			sb.WriteString(" AND json_extract(data, ?) = ?")
			b := 0
			if v {
				b = 1
			}
			args = append(args, path, b)
		case string, float64:
			sb.WriteString(" AND json_extract(data, ?) = ?")
			args = append(args, path, v)
		default:
			return nil, fmt.Errorf("Query %s: unsupported predicate value for %s", collection, p.Field)
		}
	}
	sb.WriteString(" ORDER BY seq;")

	rows, err := q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("Query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []store.Snapshot
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("Query %s scan: %w", collection, err)
		}
		doc, err := unmarshal(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Snapshot{ID: id, Data: doc})
	}
	return out, rows.Err()
}

func addDoc(ctx context.Context, q queryer, collection string, data store.Document) (string, error) {
	id := uuid.NewString()
	doc := store.CloneDocument(data)
	doc["id"] = id
	if err := upsert(ctx, q, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func setDoc(ctx context.Context, q queryer, collection, id string, data store.Document, merge bool) error {
	doc := data
	if merge {
		existing, err := getDoc(ctx, q, collection, id)
		switch {
		case err == nil:
			doc = existing.Data
			for k, v := range data {
				doc[k] = v
			}
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
	}
	return upsert(ctx, q, collection, id, doc)
}

func upsert(ctx context.Context, q queryer, collection, id string, doc store.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	nowMs := time.Now().UTC().UnixMilli()

	if _, err := q.ExecContext(ctx, `
INSERT INTO documents(collection, doc_id, data, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(collection, doc_id) DO UPDATE SET
  data = excluded.data,
  updated_at_ms = excluded.updated_at_ms;
`, collection, id, string(raw), nowMs, nowMs); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

func unmarshal(raw string) (store.Document, error) {
	var doc store.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}
