// Package kvsql keeps dashboard state in a single key/value table on
// Postgres (pgx) or SQLite (modernc).
package kvsql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	_ "modernc.org/sqlite" // register sqlite driver

	"coinboard/pkg/storage"
)

// Dialect selects driver name and SQL flavour.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const table = "coinboard_kv"

var nowMillis = func() int64 { return time.Now().UnixMilli() }

var _ storage.Store = (*Store)(nil)

// Store implements storage.Store over go-zero sqlx.
type Store struct {
	conn     sqlx.SqlConn
	dialect  Dialect
	instance string
}

// Open connects with the driver matching dialect and ensures the table exists.
func Open(ctx context.Context, dialect Dialect, dsn, instance string) (*Store, error) {
	driver, err := driverName(dialect)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("kvsql: %s dsn is required", dialect)
	}
	store := New(sqlx.NewSqlConn(driver, dsn), dialect, instance)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// New wraps an existing connection. Call EnsureSchema before first use.
func New(conn sqlx.SqlConn, dialect Dialect, instance string) *Store {
	if instance == "" {
		instance = "default"
	}
	return &Store{conn: conn, dialect: dialect, instance: instance}
}

func driverName(d Dialect) (string, error) {
	switch d {
	case Postgres:
		return "pgx", nil
	case SQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("kvsql: unsupported dialect %q", d)
	}
}

// EnsureSchema creates the key/value table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmt := `
CREATE TABLE IF NOT EXISTS ` + table + ` (
    instance TEXT NOT NULL,
    k TEXT NOT NULL,
    v TEXT NOT NULL,
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (instance, k)
)`
	if _, err := s.conn.ExecCtx(ctx, stmt); err != nil {
		return fmt.Errorf("kvsql: create table: %w", err)
	}
	return nil
}

// bind rewrites $n placeholders for dialects that expect '?'.
func (s *Store) bind(query string) string {
	if s.dialect != SQLite {
		return query
	}
	for _, ph := range []string{"$1", "$2", "$3", "$4"} {
		query = strings.ReplaceAll(query, ph, "?")
	}
	return query
}

func (s *Store) Get(ctx context.Context, k string) (string, bool, error) {
	var v string
	query := s.bind(`SELECT v FROM ` + table + ` WHERE instance = $1 AND k = $2`)
	err := s.conn.QueryRowCtx(ctx, &v, query, s.instance, k)
	switch {
	case errors.Is(err, sqlx.ErrNotFound):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("kvsql: get %s: %w", k, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, k, value string) error {
	stmt := s.bind(`
INSERT INTO ` + table + ` (instance, k, v, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (instance, k) DO UPDATE SET
    v = excluded.v,
    updated_at = excluded.updated_at`)
	if _, err := s.conn.ExecCtx(ctx, stmt, s.instance, k, value, nowMillis()); err != nil {
		return fmt.Errorf("kvsql: set %s: %w", k, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, k string) error {
	stmt := s.bind(`DELETE FROM ` + table + ` WHERE instance = $1 AND k = $2`)
	if _, err := s.conn.ExecCtx(ctx, stmt, s.instance, k); err != nil {
		return fmt.Errorf("kvsql: delete %s: %w", k, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() {
	db, err := s.conn.RawDB()
	if err != nil {
		return
	}
	if err := db.Close(); err != nil {
		logx.Errorf("kvsql: close %s: %v", s.dialect, err)
	}
}
