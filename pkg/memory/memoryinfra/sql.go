package memoryinfra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/break1145/GraphDo/pkg/errx"
	"github.com/break1145/GraphDo/pkg/memory"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS store (
	prefix     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (prefix, key)
);
ALTER TABLE store ADD COLUMN IF NOT EXISTS seq BIGSERIAL;
CREATE INDEX IF NOT EXISTS idx_store_prefix_seq ON store (prefix, seq);
`

// SQLite orders by the implicit rowid, which an upsert keeps
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS store (
	prefix     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (prefix, key)
);
CREATE INDEX IF NOT EXISTS idx_store_prefix ON store (prefix);
`

type row struct {
	Key       string    `db:"key"`
	Value     []byte    `db:"value"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SQLStore implements memory.Store on a single (prefix, key, value) table.
// PostgreSQL and SQLite are supported.
type SQLStore struct {
	db      *sqlx.DB
	orderBy string
}

// NewSQLStore wraps an open connection and runs the schema migration
func NewSQLStore(ctx context.Context, db *sqlx.DB) (*SQLStore, error) {
	s := &SQLStore{db: db, orderBy: "seq"}
	if s.isSQLite() {
		s.orderBy = "rowid"
	}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file
func OpenSQLite(path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// single writer keeps sqlite from returning SQLITE_BUSY under concurrent turns
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *SQLStore) isSQLite() bool {
	return s.db.DriverName() == "sqlite"
}

// Migrate creates the store table when missing
func (s *SQLStore) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.isSQLite() {
		schema = sqliteSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errx.Wrap(err, "failed to migrate store schema", errx.TypeInternal).
			WithDetail("driver", s.db.DriverName())
	}
	return nil
}

func (s *SQLStore) Search(ctx context.Context, ns memory.Namespace) ([]memory.Item, error) {
	query := s.db.Rebind(`
		SELECT key, value, created_at, updated_at
		FROM store
		WHERE prefix = ?
		ORDER BY ` + s.orderBy)

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, ns.Prefix()); err != nil {
		return nil, errx.Wrap(err, "failed to search records", errx.TypeInternal).
			WithDetail("prefix", ns.Prefix())
	}

	items := make([]memory.Item, len(rows))
	for i, r := range rows {
		items[i] = r.toItem(ns)
	}
	return items, nil
}

func (s *SQLStore) Get(ctx context.Context, ns memory.Namespace, key string) (*memory.Item, error) {
	query := s.db.Rebind(`
		SELECT key, value, created_at, updated_at
		FROM store
		WHERE prefix = ? AND key = ?`)

	var r row
	if err := s.db.GetContext(ctx, &r, query, ns.Prefix(), key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, memory.ErrRecordNotFound().
				WithDetail("prefix", ns.Prefix()).
				WithDetail("key", key)
		}
		return nil, errx.Wrap(err, "failed to get record", errx.TypeInternal).
			WithDetail("prefix", ns.Prefix()).
			WithDetail("key", key)
	}

	item := r.toItem(ns)
	return &item, nil
}

func (s *SQLStore) Put(ctx context.Context, ns memory.Namespace, key string, value []byte) error {
	query := s.db.Rebind(`
		INSERT INTO store (prefix, key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (prefix, key) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at`)

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query, ns.Prefix(), key, string(value), now, now); err != nil {
		return errx.Wrap(err, "failed to put record", errx.TypeInternal).
			WithDetail("prefix", ns.Prefix()).
			WithDetail("key", key)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, ns memory.Namespace, key string) error {
	query := s.db.Rebind(`DELETE FROM store WHERE prefix = ? AND key = ?`)

	res, err := s.db.ExecContext(ctx, query, ns.Prefix(), key)
	if err != nil {
		return errx.Wrap(err, "failed to delete record", errx.TypeInternal).
			WithDetail("prefix", ns.Prefix()).
			WithDetail("key", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to read delete result", errx.TypeInternal)
	}
	if n == 0 {
		return memory.ErrRecordNotFound().
			WithDetail("prefix", ns.Prefix()).
			WithDetail("key", key)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return memory.ErrStoreUnavailable().WithError(err)
	}
	return nil
}

// Stats exposes the connection pool state for metrics
func (s *SQLStore) Stats() sql.DBStats {
	return s.db.Stats()
}

func (r row) toItem(ns memory.Namespace) memory.Item {
	return memory.Item{
		Namespace: ns,
		Key:       r.Key,
		Value:     r.Value,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
