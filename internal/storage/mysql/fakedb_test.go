package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// scriptedDriver replays a fixed sequence of database calls and fails on the
// first call that deviates from it.
type scriptedDriver struct {
	mu    sync.Mutex
	steps []step
	next  int
	args  [][]driver.NamedValue
}

type stepKind int

const (
	stepExec stepKind = iota
	stepQuery
	stepBegin
	stepCommit
	stepRollback
)

func (k stepKind) String() string {
	return [...]string{"exec", "query", "begin", "commit", "rollback"}[k]
}

type step struct {
	kind    stepKind
	query   string
	result  fakeResult
	columns []string
	rows    [][]driver.Value
	err     error
}

type fakeResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

func expectExec(query string) step { return step{kind: stepExec, query: query, result: fakeResult{rowsAffected: 1}} }

func expectQuery(query string, columns []string, rows ...[]driver.Value) step {
	return step{kind: stepQuery, query: query, columns: columns, rows: rows}
}

func expectBegin() step    { return step{kind: stepBegin} }
func expectCommit() step   { return step{kind: stepCommit} }
func expectRollback() step { return step{kind: stepRollback} }

func (s step) fails(err error) step {
	s.err = err
	return s
}

var driverSeq atomic.Int32

func newScriptedDB(t *testing.T, steps ...step) (*sql.DB, *scriptedDriver) {
	t.Helper()
	drv := &scriptedDriver{steps: steps}
	name := fmt.Sprintf("scripted-mysql-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open scripted db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db, drv
}

func (d *scriptedDriver) assertDone(t *testing.T) {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next != len(d.steps) {
		t.Fatalf("consumed %d of %d scripted steps", d.next, len(d.steps))
	}
}

func (d *scriptedDriver) take(kind stepKind, query string, args []driver.NamedValue) (step, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= len(d.steps) {
		return step{}, fmt.Errorf("unexpected %s %q", kind, compactSQL(query))
	}
	s := d.steps[d.next]
	if s.kind != kind {
		return step{}, fmt.Errorf("step %d: want %s, got %s", d.next, s.kind, kind)
	}
	if s.query != "" && compactSQL(s.query) != compactSQL(query) {
		return step{}, fmt.Errorf("step %d: want %q, got %q", d.next, compactSQL(s.query), compactSQL(query))
	}
	d.next++
	if kind == stepExec || kind == stepQuery {
		d.args = append(d.args, args)
	}
	return s, s.err
}

func (d *scriptedDriver) Open(string) (driver.Conn, error) { return &scriptedConn{d: d}, nil }

type scriptedConn struct{ d *scriptedDriver }

func (c *scriptedConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *scriptedConn) Close() error { return nil }

func (c *scriptedConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *scriptedConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if _, err := c.d.take(stepBegin, "", nil); err != nil {
		return nil, err
	}
	return &scriptedTx{d: c.d}, nil
}

func (c *scriptedConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	s, err := c.d.take(stepExec, query, args)
	if err != nil {
		return nil, err
	}
	return s.result, nil
}

func (c *scriptedConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	s, err := c.d.take(stepQuery, query, args)
	if err != nil {
		return nil, err
	}
	return &scriptedRows{columns: s.columns, values: s.rows}, nil
}

func (c *scriptedConn) Ping(context.Context) error { return nil }

type scriptedTx struct{ d *scriptedDriver }

func (tx *scriptedTx) Commit() error {
	_, err := tx.d.take(stepCommit, "", nil)
	return err
}

func (tx *scriptedTx) Rollback() error {
	_, err := tx.d.take(stepRollback, "", nil)
	return err
}

type scriptedRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *scriptedRows) Columns() []string { return r.columns }
func (r *scriptedRows) Close() error      { return nil }

func (r *scriptedRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func compactSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
