// Package store provides a SQLite-backed implementation of lld.Driver, the
// narrow SQL primitive interface consumed by the reconciliation engine.
package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lldhost/reconciler/internal/core"
	"github.com/lldhost/reconciler/internal/lld"
)

// Driver implements lld.Driver on top of a core.Engine connection.
type Driver struct {
	engine *core.Engine
}

var _ lld.Driver = (*Driver)(nil)

// New wraps an already-open engine.
func New(engine *core.Engine) *Driver {
	return &Driver{engine: engine}
}

// rows adapts *sql.Rows to the lld.Result iterator shape.
type rows struct {
	r    *sql.Rows
	cols int
}

func newRows(r *sql.Rows) (*rows, error) {
	cols, err := r.Columns()
	if err != nil {
		r.Close()
		return nil, err
	}
	return &rows{r: r, cols: len(cols)}, nil
}

func (rs *rows) Next() ([]sql.NullString, bool) {
	if !rs.r.Next() {
		return nil, false
	}
	raw := make([]sql.NullString, rs.cols)
	dest := make([]interface{}, rs.cols)
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := rs.r.Scan(dest...); err != nil {
		return nil, false
	}
	return raw, true
}

func (rs *rows) Close() { rs.r.Close() }

// Select runs a read query and returns an iterator over its rows.
func (d *Driver) Select(query string, args ...interface{}) (lld.Result, error) {
	r, err := d.engine.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	return newRows(r)
}

// Execute runs a write statement, returning the number of affected rows.
func (d *Driver) Execute(query string, args ...interface{}) (int64, error) {
	n, err := d.engine.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("execute: %w", err)
	}
	return n, nil
}

// Escape escapes single quotes for embedding s as a SQL string literal,
// the one shared escape function every multi-row INSERT buffer relies on.
func (d *Driver) Escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// GetMaxIDNum reserves n contiguous ids for table and returns the first one,
// mirroring DBget_maxid_num's bulk allocation out of a monotonic sequence.
func (d *Driver) GetMaxIDNum(table string, n int) (uint64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("GetMaxIDNum: n must be positive, got %d", n)
	}

	tx, err := d.engine.DB().Begin()
	if err != nil {
		return 0, fmt.Errorf("GetMaxIDNum: begin: %w", err)
	}
	defer tx.Rollback()

	var next int64
	row := tx.QueryRow("SELECT nextid FROM ids WHERE table_name = ?", table)
	switch err := row.Scan(&next); err {
	case nil:
		if _, err := tx.Exec("UPDATE ids SET nextid = ? WHERE table_name = ?", next+int64(n), table); err != nil {
			return 0, fmt.Errorf("GetMaxIDNum: update: %w", err)
		}
	case sql.ErrNoRows:
		next = 1
		if _, err := tx.Exec("INSERT INTO ids (table_name, nextid) VALUES (?, ?)", table, next+int64(n)); err != nil {
			return 0, fmt.Errorf("GetMaxIDNum: insert: %w", err)
		}
	default:
		return 0, fmt.Errorf("GetMaxIDNum: select: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("GetMaxIDNum: commit: %w", err)
	}
	return uint64(next), nil
}

// AddConditionAlloc appends "<column> IN (id1,id2,...)" to sql, chunking at
// 950 ids per clause (SQLite's practical expression-tree limit), joined
// with " or " so arbitrarily large id sets never exceed a single dialect's
// IN-list limit.
func (d *Driver) AddConditionAlloc(sqlb *strings.Builder, column string, ids []uint64) {
	const chunk = 950

	if len(ids) == 0 {
		sqlb.WriteString(" 1=0")
		return
	}

	multi := len(ids) > chunk
	if multi {
		sqlb.WriteString(" (")
	} else {
		sqlb.WriteString(" ")
	}

	for start := 0; start < len(ids); start += chunk {
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}
		if start != 0 {
			sqlb.WriteString(" or ")
		}
		sqlb.WriteString(column)
		sqlb.WriteString(" in (")
		for i, id := range ids[start:end] {
			if i != 0 {
				sqlb.WriteByte(',')
			}
			sqlb.WriteString(strconv.FormatUint(id, 10))
		}
		sqlb.WriteByte(')')
	}

	if multi {
		sqlb.WriteString(")")
	}
}

// SQLIDIns renders id as a literal, or NULL when id is the zero sentinel,
// for columns such as hosts.proxy_hostid that are optional foreign keys.
func (d *Driver) SQLIDIns(id uint64) string {
	if id == 0 {
		return "null"
	}
	return strconv.FormatUint(id, 10)
}

// BeginMultipleUpdate/EndMultipleUpdate bracket a batch of statements for
// dialects that require an explicit block (e.g. Oracle's begin...end;).
// SQLite needs no bracketing; both are no-ops so the persister's call
// sites stay dialect-agnostic.
func (d *Driver) BeginMultipleUpdate(sqlb *strings.Builder) {}
func (d *Driver) EndMultipleUpdate(sqlb *strings.Builder)   {}

// HasMultirowInsert reports whether the dialect accepts
// "INSERT ... VALUES (...), (...), ...;" — true for SQLite.
func (d *Driver) HasMultirowInsert() bool { return true }
