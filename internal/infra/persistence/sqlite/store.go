// Package sqlite provides the SQLite-backed benchmark store built on the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"spectrabench/internal/entitymodel/sqlbundle"
	"spectrabench/internal/infra/persistence/sqlstore"
	"spectrabench/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "spectrabench.db"

// Store is a SQLite-backed persistent store.
type Store struct {
	*sqlstore.Store
	path string
}

// Options controls store construction.
type Options struct {
	// SkipIndexes builds the schema without secondary indexes.
	SkipIndexes bool
	Store       []sqlstore.Option
}

// NewStore opens (creating if needed) the database at path and applies the
// schema.
func NewStore(path string, engine *domain.RulesEngine, opts ...sqlstore.Option) (*Store, error) {
	return Open(context.Background(), path, engine, Options{Store: opts})
}

// Open is NewStore with explicit options.
func Open(ctx context.Context, path string, engine *domain.RulesEngine, opts Options) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps the pragmas in effect.
	db.SetMaxOpenConns(1)

	schema := sqlbundle.SplitStatements(sqlbundle.SQLite())
	if opts.SkipIndexes {
		schema = sqlbundle.WithoutIndexes(sqlbundle.SQLite())
	}
	s := &Store{
		Store: sqlstore.New(db, Dialect(schema), engine, opts.Store...),
		path:  path,
	}
	if err := s.ApplySchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DSN builds the connection string enabling foreign keys, WAL and a busy
// timeout. Transactions begin IMMEDIATE: inserts read (foreign key checks)
// before they write, and a deferred transaction cannot upgrade to a write lock
// once another handle on the same file has committed.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate", path)
}

// Dialect returns the SQLite dialect for the shared SQL store.
func Dialect(schema []string) sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:       "sqlite",
		Schema:     schema,
		EncodeTime: sqlstore.EncodeTextTime,
		Classify:   classify,
	}
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Indexes lists the secondary indexes present in the database.
func (s *Store) Indexes(ctx context.Context) ([]string, error) {
	rows, err := s.DB().QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func classify(err error) (error, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return nil, false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return domain.ErrForeignKeyViolation, true
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return domain.ErrMissingRequiredField, true
	case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_DATATYPE, sqlite3.SQLITE_MISMATCH:
		return domain.ErrTypeMismatch, true
	}
	return nil, false
}
