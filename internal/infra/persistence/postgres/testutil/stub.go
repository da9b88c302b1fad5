// Package testutil provides an in-memory stub database for postgres store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
)

// StubConn records statements and keeps table rows in memory. It understands
// the small SQL subset the snapshot store issues.
type StubConn struct {
	Execs      []string
	Tables     map[string][]map[string]any
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	RowsErr    error
	FailTables map[string]bool
}

var stubSeq atomic.Int64

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
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
	if c.FailExec {
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

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "INSERT INTO"):
		table, cols, err := parseInsert(query)
		if err != nil {
			return nil, err
		}
		if c.FailTables[table] {
			return nil, fmt.Errorf("exec fail for %s", table)
		}
		if len(cols) != len(args) {
			return nil, fmt.Errorf("column/arg mismatch for %s", table)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = args[i].Value
		}
		if strings.Contains(upper, "ON CONFLICT") {
			c.Tables[table] = without(c.Tables[table], cols[0], row[cols[0]])
		}
		c.Tables[table] = append(c.Tables[table], row)
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "DELETE FROM"):
		q, err := parseQuery("select * " + strings.TrimSpace(query)[len("delete "):])
		if err != nil {
			return nil, err
		}
		if q.where == "" || len(args) == 0 {
			return nil, fmt.Errorf("unbounded delete on %s", q.table)
		}
		before := len(c.Tables[q.table])
		c.Tables[q.table] = without(c.Tables[q.table], q.where, args[0].Value)
		return driver.RowsAffected(int64(before - len(c.Tables[q.table]))), nil
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	q, err := parseQuery(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[q.table] {
		return nil, fmt.Errorf("query fail for %s", q.table)
	}
	var matched []map[string]any
	for _, row := range c.Tables[q.table] {
		if q.where != "" {
			if q.arg >= len(args) || row[q.where] != args[q.arg].Value {
				continue
			}
		}
		matched = append(matched, row)
	}
	if q.orderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return fmt.Sprint(matched[i][q.orderBy]) < fmt.Sprint(matched[j][q.orderBy])
		})
	}
	values := make([][]driver.Value, 0, len(matched))
	for _, row := range matched {
		vals := make([]driver.Value, len(q.cols))
		for i, col := range q.cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: q.cols, rows: values, err: c.RowsErr}, nil
}

func without(rows []map[string]any, col string, value any) []map[string]any {
	var kept []map[string]any
	for _, row := range rows {
		if row[col] != value {
			kept = append(kept, row)
		}
	}
	return kept
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
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
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
	return table, splitColumns(rest[open+1 : closeIdx]), nil
}

type selectQuery struct {
	table   string
	cols    []string
	where   string
	arg     int
	orderBy string
}

// parseQuery handles "select cols from table [where col = $n] [order by col]".
func parseQuery(query string) (selectQuery, error) {
	lower := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if !strings.HasPrefix(lower, "select ") {
		return selectQuery{}, fmt.Errorf("cannot parse select: %s", query)
	}
	cols, rest, ok := strings.Cut(lower[len("select "):], " from ")
	if !ok {
		return selectQuery{}, fmt.Errorf("cannot parse select: %s", query)
	}
	var q selectQuery
	q.cols = splitColumns(cols)
	if head, order, found := strings.Cut(rest, " order by "); found {
		rest, q.orderBy = head, strings.TrimSpace(order)
	}
	if head, where, found := strings.Cut(rest, " where "); found {
		rest = head
		col, placeholder, ok := strings.Cut(where, "=")
		if !ok {
			return selectQuery{}, fmt.Errorf("cannot parse predicate: %s", query)
		}
		n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(placeholder), "$"))
		if err != nil || n < 1 {
			return selectQuery{}, fmt.Errorf("cannot parse placeholder: %s", query)
		}
		q.where, q.arg = strings.TrimSpace(col), n-1
	}
	q.table = strings.TrimSpace(rest)
	if q.table == "" {
		return selectQuery{}, fmt.Errorf("cannot parse select: %s", query)
	}
	return q, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
