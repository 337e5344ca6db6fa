package stats

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// PostgresStore keeps the table in PostgreSQL. Increments are a single
// atomic upsert, so several bot processes may share one database.
type PostgresStore struct {
	db    DB
	close func()
}

// OpenPostgres connects to dsn, verifies the connection and applies [Schema].
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, persistErr("parse dsn", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, persistErr("create pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, persistErr("ping", err)
	}
	s := &PostgresStore{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing connection or pool. The caller is
// responsible for calling [PostgresStore.Migrate] and closing db.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return persistErr("migrate", err)
	}
	return nil
}

// Increment implements [Store].
func (s *PostgresStore) Increment(ctx context.Context, user, trigger string) error {
	if _, err := s.db.Exec(ctx, upsertSQL, user, trigger); err != nil {
		return persistErr("increment", err)
	}
	return nil
}

// Snapshot implements [Store].
func (s *PostgresStore) Snapshot(ctx context.Context) (Table, error) {
	rows, err := s.db.Query(ctx, selectAllSQL)
	if err != nil {
		return nil, persistErr("query", err)
	}
	defer rows.Close()

	t := Table{}
	for rows.Next() {
		var (
			user, trigger string
			count         int64
		)
		if err := rows.Scan(&user, &trigger, &count); err != nil {
			return nil, persistErr("scan", err)
		}
		if t[user] == nil {
			t[user] = make(map[string]int)
		}
		t[user][trigger] = int(count)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("rows", err)
	}
	return t, nil
}

// Ping reports whether the database is reachable. It issues a trivial query
// so it also works for a plain [DB].
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "SELECT 1")
	return err
}

// Close implements [Store]. It only closes pools opened by [OpenPostgres].
func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
