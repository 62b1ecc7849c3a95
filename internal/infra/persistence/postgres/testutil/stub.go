// Package testutil provides a table-backed stub database for postgres store tests.
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
	"sync"
	"sync/atomic"
)

// StubConn records statements and keeps rows per table. It understands the
// narrow SQL dialect the item store emits: single-table INSERT (optionally
// RETURNING one generated column), SELECT with one equality predicate and an
// optional ORDER BY, UPDATE ... SET ... WHERE col = $n and DELETE ... WHERE
// col = $n.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Tables     map[string][]map[string]any
	FailExec   bool
	FailPing   bool
	FailBegin  bool
	RowsErr    error
	FailTables map[string]bool
	FailCommit bool
	nextID     int64
}

var driverSeq atomic.Int64

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
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

// Rows returns a copy of the rows stored for table.
func (c *StubConn) Rows(table string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.Tables[table]))
	for _, row := range c.Tables[table] {
		cp := make(map[string]any, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	verb := leadingVerb(query)
	switch verb {
	case "INSERT":
		_, err := c.insert(query, args)
		if err != nil {
			return nil, err
		}
		return driver.RowsAffected(1), nil
	case "UPDATE":
		return c.update(query, args)
	case "DELETE":
		return c.delete(query, args)
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Tables == nil {
		c.Tables = make(map[string][]map[string]any)
	}
	if leadingVerb(query) == "INSERT" {
		return c.insertReturning(query, args)
	}
	sel, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[sel.table] {
		return nil, fmt.Errorf("query fail for %s", sel.table)
	}
	var matched []map[string]any
	for _, row := range c.Tables[sel.table] {
		if sel.where != "" {
			want, err := argAt(args, sel.whereArg)
			if err != nil {
				return nil, err
			}
			if row[sel.where] != want {
				continue
			}
		}
		matched = append(matched, row)
	}
	if sel.orderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return less(matched[i][sel.orderBy], matched[j][sel.orderBy])
		})
	}
	values := make([][]driver.Value, 0, len(matched))
	for _, row := range matched {
		vals := make([]driver.Value, len(sel.cols))
		for i, col := range sel.cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: sel.cols, rows: values, err: c.RowsErr}, nil
}

func (c *StubConn) insert(query string, args []driver.NamedValue) (map[string]any, error) {
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
	row := make(map[string]any, len(cols)+1)
	for i, col := range cols {
		row[col] = args[i].Value
	}
	if strings.Contains(strings.ToUpper(query), "ON CONFLICT") && len(cols) > 0 {
		primary := cols[0]
		var filtered []map[string]any
		for _, existing := range c.Tables[table] {
			if existing[primary] == row[primary] {
				continue
			}
			filtered = append(filtered, existing)
		}
		c.Tables[table] = filtered
	}
	c.Tables[table] = append(c.Tables[table], row)
	return row, nil
}

func (c *StubConn) insertReturning(query string, args []driver.NamedValue) (driver.Rows, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(query)
	idx := strings.Index(upper, " RETURNING ")
	if idx == -1 {
		return nil, fmt.Errorf("query insert without RETURNING: %s", query)
	}
	col := strings.ToLower(strings.TrimSpace(query[idx+len(" RETURNING "):]))
	row, err := c.insert(query[:idx], args)
	if err != nil {
		return nil, err
	}
	c.nextID++
	row[col] = c.nextID
	return &stubRows{cols: []string{col}, rows: [][]driver.Value{{c.nextID}}}, nil
}

func (c *StubConn) update(query string, args []driver.NamedValue) (driver.Result, error) {
	table, sets, where, whereArg, err := parseUpdate(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("exec fail for %s", table)
	}
	want, err := argAt(args, whereArg)
	if err != nil {
		return nil, err
	}
	var n int64
	for _, row := range c.Tables[table] {
		if row[where] != want {
			continue
		}
		for col, pos := range sets {
			v, err := argAt(args, pos)
			if err != nil {
				return nil, err
			}
			row[col] = v
		}
		n++
	}
	return driver.RowsAffected(n), nil
}

func (c *StubConn) delete(query string, args []driver.NamedValue) (driver.Result, error) {
	table, col, pos, err := parseDelete(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("exec fail for %s", table)
	}
	target, err := argAt(args, pos)
	if err != nil {
		return nil, fmt.Errorf("missing args for delete %s: %w", table, err)
	}
	var (
		filtered []map[string]any
		n        int64
	)
	for _, row := range c.Tables[table] {
		if row[col] == target {
			n++
			continue
		}
		filtered = append(filtered, row)
	}
	c.Tables[table] = filtered
	return driver.RowsAffected(n), nil
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

func leadingVerb(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func argAt(args []driver.NamedValue, pos int) (driver.Value, error) {
	if pos < 1 || pos > len(args) {
		return nil, fmt.Errorf("placeholder $%d out of range (%d args)", pos, len(args))
	}
	return args[pos-1].Value, nil
}

// placeholder parses "$n".
func placeholder(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "$") {
		return 0, fmt.Errorf("expected placeholder, got %q", raw)
	}
	return strconv.Atoi(raw[1:])
}

// equality parses "col = $n".
func equality(raw string) (string, int, error) {
	parts := strings.SplitN(raw, "=", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("cannot parse predicate: %s", raw)
	}
	pos, err := placeholder(parts[1])
	if err != nil {
		return "", 0, err
	}
	return strings.ToLower(strings.TrimSpace(parts[0])), pos, nil
}

func less(a, b any) bool {
	switch av := a.(type) {
	case int64:
		bv, _ := b.(int64)
		return av < bv
	case float64:
		bv, _ := b.(float64)
		return av < bv
	case string:
		bv, _ := b.(string)
		return av < bv
	}
	return false
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

func parseUpdate(query string) (table string, sets map[string]int, where string, whereArg int, err error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(lower, "update ") {
		return "", nil, "", 0, fmt.Errorf("cannot parse update: %s", query)
	}
	setIdx := strings.Index(lower, " set ")
	whereIdx := strings.LastIndex(lower, " where ")
	if setIdx == -1 || whereIdx == -1 || whereIdx < setIdx {
		return "", nil, "", 0, fmt.Errorf("cannot parse update: %s", query)
	}
	table = strings.TrimSpace(lower[len("update "):setIdx])
	sets = make(map[string]int)
	for _, assignment := range strings.Split(lower[setIdx+len(" set "):whereIdx], ",") {
		col, pos, perr := equality(assignment)
		if perr != nil {
			return "", nil, "", 0, perr
		}
		sets[col] = pos
	}
	where, whereArg, err = equality(lower[whereIdx+len(" where "):])
	return table, sets, where, whereArg, err
}

func parseDelete(query string) (string, string, int, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	prefix := "delete from "
	whereToken := " where "
	if !strings.HasPrefix(lower, prefix) {
		return "", "", 0, fmt.Errorf("cannot parse delete: %s", query)
	}
	rest := lower[len(prefix):]
	whereIdx := strings.Index(rest, whereToken)
	if whereIdx == -1 {
		return "", "", 0, fmt.Errorf("cannot parse delete: %s", query)
	}
	table := strings.TrimSpace(rest[:whereIdx])
	col, pos, err := equality(rest[whereIdx+len(whereToken):])
	if err != nil {
		return "", "", 0, fmt.Errorf("cannot parse delete predicate: %w", err)
	}
	return table, col, pos, nil
}

type selectStmt struct {
	table    string
	cols     []string
	where    string
	whereArg int
	orderBy  string
}

func parseSelect(query string) (selectStmt, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(lower, "select ") {
		return selectStmt{}, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, " from ")
	if fromIdx == -1 {
		return selectStmt{}, fmt.Errorf("cannot parse select: %s", query)
	}
	stmt := selectStmt{cols: splitColumns(lower[len("select "):fromIdx])}
	rest := strings.TrimSpace(lower[fromIdx+len(" from "):])
	if idx := strings.Index(rest, " order by "); idx != -1 {
		stmt.orderBy = strings.Fields(rest[idx+len(" order by "):])[0]
		rest = rest[:idx]
	}
	if idx := strings.Index(rest, " where "); idx != -1 {
		col, pos, err := equality(rest[idx+len(" where "):])
		if err != nil {
			return selectStmt{}, err
		}
		stmt.where, stmt.whereArg = col, pos
		rest = rest[:idx]
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return selectStmt{}, fmt.Errorf("cannot parse select: %s", query)
	}
	stmt.table = fields[0]
	return stmt, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
