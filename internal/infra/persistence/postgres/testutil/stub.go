// Package testutil provides a stub database/sql driver that understands the
// statements issued by the shared SQL store, for postgres store tests that
// run without a server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// StubConn records statements and keeps inserted rows per table.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Queries    []string
	Tables     map[string][]map[string]any
	nextID     map[string]int64
	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailTables map[string]bool
	// InsertErr, when set, is returned by the next INSERT instead of storing the row.
	InsertErr error
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any), nextID: make(map[string]int64)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Rows returns a copy of the rows stored for table.
func (c *StubConn) Rows(table string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, len(c.Tables[table]))
	copy(out, c.Tables[table])
	return out
}

// SetRows replaces the contents of table, typically to seed the
// algorithm_performance view.
func (c *StubConn) SetRows(table string, rows []map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Tables[table] = rows
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext. Only DDL reaches it.
func (c *StubConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext for INSERT ... RETURNING id
// and single-table SELECTs with AND-ed comparisons against placeholders.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, query)
	trimmed := strings.TrimSpace(query)
	switch {
	case strings.HasPrefix(strings.ToUpper(trimmed), "INSERT INTO"):
		return c.insert(trimmed, args)
	case strings.HasPrefix(strings.ToUpper(trimmed), "SELECT"):
		return c.selectRows(trimmed, args)
	}
	return nil, fmt.Errorf("unsupported query: %s", query)
}

func (c *StubConn) insert(query string, args []driver.NamedValue) (driver.Rows, error) {
	table, cols, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("insert fail for %s", table)
	}
	if c.InsertErr != nil {
		err := c.InsertErr
		c.InsertErr = nil
		return nil, err
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("column/arg mismatch for %s", table)
	}
	c.nextID[table]++
	id := c.nextID[table]
	row := map[string]any{"id": id}
	for i, col := range cols {
		row[col] = args[i].Value
	}
	c.Tables[table] = append(c.Tables[table], row)
	return &stubRows{cols: []string{"id"}, rows: [][]driver.Value{{id}}}, nil
}

func (c *StubConn) selectRows(query string, args []driver.NamedValue) (driver.Rows, error) {
	table, cols, preds, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("query fail for %s", table)
	}
	var values [][]driver.Value
	for _, row := range c.Tables[table] {
		ok, err := matches(row, preds, args)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			if col == "1" {
				vals[i] = int64(1)
				continue
			}
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values}, nil
}

type predicate struct {
	column string
	op     string
	arg    int
}

func matches(row map[string]any, preds []predicate, args []driver.NamedValue) (bool, error) {
	for _, p := range preds {
		if p.arg < 1 || p.arg > len(args) {
			return false, fmt.Errorf("placeholder $%d out of range", p.arg)
		}
		cmp, ok := compare(row[p.column], args[p.arg-1].Value)
		if !ok {
			return false, nil
		}
		var keep bool
		switch p.op {
		case "=":
			keep = cmp == 0
		case ">=":
			keep = cmp >= 0
		case "<=":
			keep = cmp <= 0
		case "<":
			keep = cmp < 0
		case ">":
			keep = cmp > 0
		default:
			return false, fmt.Errorf("unsupported operator %q", p.op)
		}
		if !keep {
			return false, nil
		}
	}
	return true, nil
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case int64:
		y, ok := b.(int64)
		if !ok {
			return 0, false
		}
		return cmpOrdered(x, y), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		return cmpOrdered(x, y), true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case bool:
		y, ok := b.(bool)
		if !ok || x != y {
			return 1, ok
		}
		return 0, true
	}
	return 0, false
}

func cmpOrdered[T int64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	cols := splitColumns(rest[open+1 : closeIdx])
	return table, cols, nil
}

func parseSelect(query string) (string, []string, []predicate, error) {
	lower := strings.ToLower(query)
	fromIdx := strings.Index(lower, " from ")
	if !strings.HasPrefix(lower, "select ") || fromIdx == -1 {
		return "", nil, nil, fmt.Errorf("cannot parse select: %s", query)
	}
	cols := splitColumns(query[len("select "):fromIdx])
	rest := strings.TrimSpace(query[fromIdx+len(" from "):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", nil, nil, fmt.Errorf("cannot parse select: %s", query)
	}
	table := strings.ToLower(fields[0])

	var preds []predicate
	restLower := strings.ToLower(rest)
	if whereIdx := strings.Index(restLower, " where "); whereIdx != -1 {
		clause := rest[whereIdx+len(" where "):]
		if orderIdx := strings.Index(strings.ToLower(clause), " order by "); orderIdx != -1 {
			clause = clause[:orderIdx]
		}
		for _, part := range strings.Split(clause, " AND ") {
			tokens := strings.Fields(part)
			if len(tokens) != 3 || !strings.HasPrefix(tokens[2], "$") {
				return "", nil, nil, fmt.Errorf("cannot parse predicate %q", part)
			}
			n, err := strconv.Atoi(tokens[2][1:])
			if err != nil {
				return "", nil, nil, fmt.Errorf("cannot parse placeholder %q", tokens[2])
			}
			preds = append(preds, predicate{column: strings.ToLower(tokens[0]), op: tokens[1], arg: n})
		}
	}
	return table, cols, preds, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
