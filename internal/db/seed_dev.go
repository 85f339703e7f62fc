package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedDev inserts a starter group and a few locations so a fresh dev
// database can issue passes immediately. Existing rows are left untouched.
func SeedDev(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC().UnixMilli()

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO documents(collection, doc_id, data, created_at_ms, updated_at_ms)
VALUES ('groups', 'grp_dev', json_object(
  'id', 'grp_dev',
  'name', 'Dev Homeroom',
  'type', 'positive',
  'studentIds', json_array('dev-student-1', 'dev-student-2')
), ?, ?);`, now, now); err != nil {
		return fmt.Errorf("seed groups: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO documents(collection, doc_id, data, created_at_ms, updated_at_ms)
VALUES
  ('locations', 'room-101', json_object('id', 'room-101', 'name', 'Room 101', 'capacity', 30), ?, ?),
  ('locations', 'library', json_object('id', 'library', 'name', 'Library', 'shared', json('true')), ?, ?),
  ('locations', 'restroom-east', json_object('id', 'restroom-east', 'name', 'East Restroom', 'restroom', json('true')), ?, ?);`,
		now, now, now, now, now, now); err != nil {
		return fmt.Errorf("seed locations: %w", err)
	}

	return nil
}
