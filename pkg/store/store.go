// Package store is the durable, relational persistence layer for every
// OpenIntent entity. It maintains the cross-entity invariants from
// spec.md §3 inside single transactions: version compare-and-swap,
// lease exclusivity, dependency-cycle rejection and ACL/membership
// uniqueness.
//
// A single Postgres schema serves both backends the server supports:
// Postgres in production (github.com/lib/pq) and an embedded SQLite
// file (modernc.org/sqlite) when DATABASE_URL is unset, per spec.md §6.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect names the SQL dialect in use, since Postgres and SQLite differ
// in placeholder syntax and a handful of DDL types.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Store wraps a *sql.DB with dialect-aware query helpers shared by every
// entity-specific file in this package.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var (
	ErrNotFound        = errors.New("store: not found")
	ErrVersionConflict = errors.New("store: version conflict")
	ErrCycle           = errors.New("store: dependency cycle")
	ErrLeaseConflict   = errors.New("store: lease conflict")
	ErrAlreadyDecided  = errors.New("store: already decided")
	ErrChannelClosed   = errors.New("store: channel closed")
	ErrDuplicate       = errors.New("store: duplicate")
)

// VersionConflictError carries the current version so the caller can
// surface it in a 409 response body (spec.md §7).
type VersionConflictError struct {
	CurrentVersion int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("store: version conflict, current version is %d", e.CurrentVersion)
}

func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

// Open opens (and migrates) the store named by databaseURL. An empty
// URL falls back to an embedded SQLite file at ./data/openintent.db,
// the "local embedded store" default from spec.md §6.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	dialect := DialectSQLite
	driverName := "sqlite"
	dsn := databaseURL
	if dsn == "" {
		dsn = "file:data/openintent.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialect = DialectPostgres
		driverName = "postgres"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Dialect reports which SQL dialect this store is speaking.
func (s *Store) Dialect() Dialect { return s.dialect }

// rebind rewrites a query written with $1, $2, ... placeholders into the
// active dialect's placeholder syntax, so entity files can be written
// once against Postgres-style SQL.
func (s *Store) rebind(query string) string {
	if s.dialect == DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			b.WriteString("?")
			i = j - 1
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	q := s.rebind(query)
	if tx != nil {
		return tx.ExecContext(ctx, q, args...)
	}
	return s.db.ExecContext(ctx, q, args...)
}

func (s *Store) query(ctx context.Context, tx *sql.Tx, query string, args ...any) (*sql.Rows, error) {
	q := s.rebind(query)
	if tx != nil {
		return tx.QueryContext(ctx, q, args...)
	}
	return s.db.QueryContext(ctx, q, args...)
}

func (s *Store) queryRow(ctx context.Context, tx *sql.Tx, query string, args ...any) *sql.Row {
	q := s.rebind(query)
	if tx != nil {
		return tx.QueryRowContext(ctx, q, args...)
	}
	return s.db.QueryRowContext(ctx, q, args...)
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
