package stats

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Schema is the DDL shared by the SQL backends.
const Schema = `
CREATE TABLE IF NOT EXISTS play_counts (
    user_id     TEXT    NOT NULL,
    trigger_key TEXT    NOT NULL,
    count       BIGINT  NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, trigger_key)
);
`

const (
	upsertSQL = `
INSERT INTO play_counts (user_id, trigger_key, count) VALUES ($1, $2, 1)
ON CONFLICT (user_id, trigger_key) DO UPDATE SET count = play_counts.count + 1`

	// SQLite spells positional parameters differently.
	sqliteUpsertSQL = `
INSERT INTO play_counts (user_id, trigger_key, count) VALUES (?, ?, 1)
ON CONFLICT (user_id, trigger_key) DO UPDATE SET count = play_counts.count + 1`

	selectAllSQL = `SELECT user_id, trigger_key, count FROM play_counts`
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps the table in an embedded SQLite database.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// [Schema].
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("stats: sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, persistErr("open sqlite", err)
	}
	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, persistErr("ping sqlite", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		return nil, persistErr("migrate sqlite", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Increment implements [Store].
func (s *SQLiteStore) Increment(ctx context.Context, user, trigger string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin", err)
	}
	if _, err := tx.ExecContext(ctx, sqliteUpsertSQL, user, trigger); err != nil {
		_ = tx.Rollback()
		return persistErr("increment", err)
	}
	if err := tx.Commit(); err != nil {
		return persistErr("commit", err)
	}
	return nil
}

// Snapshot implements [Store].
func (s *SQLiteStore) Snapshot(ctx context.Context) (Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, selectAllSQL)
	if err != nil {
		return nil, persistErr("query", err)
	}
	defer rows.Close()

	t := Table{}
	for rows.Next() {
		var (
			user, trigger string
			count         int
		)
		if err := rows.Scan(&user, &trigger, &count); err != nil {
			return nil, persistErr("scan", err)
		}
		if t[user] == nil {
			t[user] = make(map[string]int)
		}
		t[user][trigger] = count
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("rows", err)
	}
	return t, nil
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements [Store].
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
