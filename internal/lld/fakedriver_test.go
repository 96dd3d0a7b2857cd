package lld

import (
	"database/sql"
	"strconv"
	"strings"
)

// fakeResult is an in-memory Result over pre-baked rows, standing in for a
// live *sql.Rows cursor in unit tests that exercise one Differ/Persister/
// Validator function in isolation from a real database.
type fakeResult struct {
	rows [][]string
	i    int
}

func (r *fakeResult) Next() ([]sql.NullString, bool) {
	if r.i >= len(r.rows) {
		return nil, false
	}
	row := r.rows[r.i]
	r.i++
	out := make([]sql.NullString, len(row))
	for i, v := range row {
		out[i] = sql.NullString{String: v, Valid: v != ""}
	}
	return out, true
}

func (r *fakeResult) Close() {}

// fakeDriver implements Driver with canned Select results consumed in call
// order (one result set per Select call, regardless of the query text) and
// a log of every Execute call for assertions.
type fakeDriver struct {
	selects  [][][]string
	selectAt int
	executed []string
	nextID   uint64
	multirow bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{nextID: 1000, multirow: true}
}

func (d *fakeDriver) withSelect(rows [][]string) *fakeDriver {
	d.selects = append(d.selects, rows)
	return d
}

func (d *fakeDriver) Select(query string, args ...interface{}) (Result, error) {
	if d.selectAt >= len(d.selects) {
		return &fakeResult{}, nil
	}
	rows := d.selects[d.selectAt]
	d.selectAt++
	return &fakeResult{rows: rows}, nil
}

func (d *fakeDriver) Execute(query string, args ...interface{}) (int64, error) {
	d.executed = append(d.executed, query)
	return 1, nil
}

func (d *fakeDriver) Escape(s string) string { return strings.ReplaceAll(s, "'", "''") }

func (d *fakeDriver) GetMaxIDNum(table string, n int) (uint64, error) {
	id := d.nextID
	d.nextID += uint64(n)
	return id, nil
}

func (d *fakeDriver) AddConditionAlloc(sqlb *strings.Builder, column string, ids []uint64) {
	sqlb.WriteString(column)
	sqlb.WriteString(" IN (")
	for i, id := range ids {
		if i != 0 {
			sqlb.WriteByte(',')
		}
		sqlb.WriteString(strconv.FormatUint(id, 10))
	}
	sqlb.WriteByte(')')
}

func (d *fakeDriver) SQLIDIns(id uint64) string {
	if id == 0 {
		return "NULL"
	}
	return strconv.FormatUint(id, 10)
}

func (d *fakeDriver) BeginMultipleUpdate(sqlb *strings.Builder) {}
func (d *fakeDriver) EndMultipleUpdate(sqlb *strings.Builder)   {}
func (d *fakeDriver) HasMultirowInsert() bool                   { return d.multirow }
