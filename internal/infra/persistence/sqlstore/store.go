// Package sqlstore implements domain.PersistentStore on top of database/sql.
// Engine packages (sqlite, postgres) supply the connection and a Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spectrabench/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a database/sql backed persistent store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	engine  *domain.RulesEngine
	nowFn   func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithNow overrides the clock used for created_at and default run_datetime.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// New wraps an open database handle. The schema is not applied; call
// ApplySchema once before use.
func New(db *sql.DB, dialect Dialect, engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		db:      db,
		dialect: dialect,
		engine:  engine,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplySchema executes the dialect's DDL statements. Every statement is
// idempotent, so reopening an existing database is safe.
func (s *Store) ApplySchema(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: apply schema: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// DB exposes the underlying handle for engine-specific inspection.
func (s *Store) DB() *sql.DB { return s.db }

// RulesEngine returns the configured engine.
func (s *Store) RulesEngine() *domain.RulesEngine { return s.engine }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// RunInTransaction executes fn inside a database transaction. Rules are
// evaluated against the uncommitted state; a blocking result or any error
// rolls everything back.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (res domain.Result, err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, fmt.Errorf("%s: begin: %w", s.dialect.Name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	tx := &transaction{
		view: view{ctx: ctx, q: sqlTx, d: s.dialect},
		now:  domain.NormalizeTime(s.nowFn()),
	}
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	if s.engine != nil {
		result, err := s.engine.Evaluate(ctx, tx.view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		if result.HasBlocking() {
			return result, domain.RuleViolationError{Result: result}
		}
		res = result
	}

	if err := sqlTx.Commit(); err != nil {
		return domain.Result{}, s.translate("", err)
	}
	committed = true
	return res, nil
}

// View executes fn against a read-only snapshot.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	sqlTx, err := s.db.BeginTx(ctx, s.dialect.ViewOptions)
	if err != nil {
		return fmt.Errorf("%s: begin view: %w", s.dialect.Name, err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	return fn(view{ctx: ctx, q: sqlTx, d: s.dialect})
}

// translate maps constraint failures to the domain taxonomy and wraps the rest.
func (s *Store) translate(entity domain.EntityType, err error) error {
	return translate(s.dialect, entity, err)
}

func translate(d Dialect, entity domain.EntityType, err error) error {
	if err == nil {
		return nil
	}
	var cv *domain.ConstraintViolation
	if errors.As(err, &cv) {
		return err
	}
	if d.Classify != nil {
		if kind, ok := d.Classify(err); ok {
			return &domain.ConstraintViolation{Entity: entity, Err: kind, Detail: err.Error()}
		}
	}
	return fmt.Errorf("%s: %w", d.Name, err)
}
