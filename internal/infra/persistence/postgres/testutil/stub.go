// Package testutil fakes just enough of a postgres connection for the
// snapshot store: DDL is recorded and ignored, every INSERT upserts on its
// first column, and SELECT returns the named columns of a table.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

var stubSeq atomic.Int64

// StubConn is a single shared connection. Tables maps a lower-cased table
// name to its rows in insertion order.
type StubConn struct {
	Execs  []string
	Tables map[string][]map[string]any

	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	// FailTables breaks reads and writes touching the listed tables.
	FailTables map[string]bool
}

// NewStubDB opens a *sql.DB whose only connection is the returned StubConn.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("agrorec-stubpg-%d", stubSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

var errNoPrepare = errors.New("stub: prepared statements unsupported")

func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, errNoPrepare }
func (c *StubConn) Close() error                        { return nil }

func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("stub: begin refused")
	}
	return stubTx{conn: c}, nil
}

func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("stub: unreachable")
	}
	return nil
}

// Row finds the first row of table where col equals value.
func (c *StubConn) Row(table, col string, value any) (map[string]any, bool) {
	for _, row := range c.Tables[table] {
		if row[col] == value {
			return row, true
		}
	}
	return nil, false
}

// Seed appends row to table without going through SQL.
func (c *StubConn) Seed(table string, row map[string]any) {
	c.Tables[table] = append(c.Tables[table], row)
}

func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("stub: exec refused")
	}
	head, tail, ok := strings.Cut(query, "INSERT INTO ")
	if !ok || strings.TrimSpace(head) != "" {
		return driver.RowsAffected(0), nil
	}
	table, colList, ok := strings.Cut(tail, "(")
	if !ok {
		return nil, fmt.Errorf("stub: malformed insert %q", query)
	}
	table = strings.ToLower(strings.TrimSpace(table))
	if c.FailTables[table] {
		return nil, fmt.Errorf("stub: write to %s refused", table)
	}
	colList, _, _ = strings.Cut(colList, ")")
	cols := columns(colList)
	if len(cols) != len(args) {
		return nil, fmt.Errorf("stub: %d columns, %d args", len(cols), len(args))
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	kept := c.Tables[table][:0:0]
	for _, existing := range c.Tables[table] {
		if existing[cols[0]] != row[cols[0]] {
			kept = append(kept, existing)
		}
	}
	c.Tables[table] = append(kept, row)
	return driver.RowsAffected(1), nil
}

func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	colList, table, ok := strings.Cut(strings.TrimPrefix(query, "SELECT "), " FROM ")
	if !ok {
		return nil, fmt.Errorf("stub: malformed select %q", query)
	}
	table = strings.ToLower(strings.Fields(table)[0])
	if c.FailTables[table] {
		return nil, fmt.Errorf("stub: read from %s refused", table)
	}
	cols := columns(colList)
	out := &stubRows{cols: cols}
	for _, row := range c.Tables[table] {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		out.rows = append(out.rows, vals)
	}
	return out, nil
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	if t.conn.FailCommit {
		return errors.New("stub: commit refused")
	}
	return nil
}

func (stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if len(r.rows) == 0 {
		return io.EOF
	}
	copy(dest, r.rows[0])
	r.rows = r.rows[1:]
	return nil
}

func columns(list string) []string {
	parts := strings.Split(list, ",")
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return parts
}
