// Package postgres provides the Postgres-backed benchmark store. Statements
// go through pgx's database/sql adapter and the shared sqlstore implementation.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"spectrabench/internal/entitymodel/sqlbundle"
	"spectrabench/internal/infra/persistence/sqlstore"
	"spectrabench/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN keeps parity with the environment defaults of the service layer.
	DefaultDSN = "postgres://localhost/spectrabench?sslmode=disable"
)

// SQLSTATE codes mapped onto the domain error taxonomy.
const (
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeInvalidTextRep      = "22P02"
	codeNumericOutOfRange   = "22003"
	codeInvalidJSONText     = "22032"
	codeDatetimeOverflow    = "22008"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists benchmark records in Postgres.
type Store struct {
	*sqlstore.Store
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to DefaultDSN) and applies the schema.
func NewStore(dsn string, engine *domain.RulesEngine, opts ...sqlstore.Option) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{Store: sqlstore.New(db, Dialect(), engine, opts...)}
	if err := s.ApplySchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Dialect returns the Postgres dialect for the shared SQL store. Views run
// in a read-only repeatable-read transaction so every statement sees one snapshot.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:        "postgres",
		Schema:      sqlbundle.SplitStatements(sqlbundle.Postgres()),
		Numbered:    true,
		Classify:    classify,
		ViewOptions: &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	}
}

func classify(err error) (error, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil, false
	}
	switch pgErr.Code {
	case codeForeignKeyViolation:
		return domain.ErrForeignKeyViolation, true
	case codeNotNullViolation:
		return domain.ErrMissingRequiredField, true
	case codeCheckViolation, codeInvalidTextRep, codeNumericOutOfRange, codeInvalidJSONText, codeDatetimeOverflow:
		return domain.ErrTypeMismatch, true
	}
	return nil, false
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
