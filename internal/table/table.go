// Package table provides a small schema-on-read tabular container. Column
// sets are inferred from whatever keys appear in the data, since OSM tag
// vocabularies vary by subregion and must not be hardcoded.
package table

import "sort"

// Row maps column name to value. Missing columns read as nil.
type Row map[string]any

// Table is an ordered collection of rows with a runtime-inferred column set.
// Row order is preserved as appended.
type Table struct {
	rows    []Row
	columns map[string]struct{}
}

// New returns an empty table.
func New() *Table {
	return &Table{columns: make(map[string]struct{})}
}

// Append adds a row, extending the column set with any new keys.
func (t *Table) Append(r Row) {
	for k := range r {
		t.columns[k] = struct{}{}
	}
	t.rows = append(t.rows, r)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Row returns the i-th row in append order.
func (t *Table) Row(i int) Row {
	return t.rows[i]
}

// Rows returns all rows in append order. The slice is shared, not copied.
func (t *Table) Rows() []Row {
	return t.rows
}

// Columns returns the union of keys observed across all rows, sorted for
// deterministic iteration.
func (t *Table) Columns() []string {
	cols := make([]string, 0, len(t.columns))
	for c := range t.columns {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// HasColumn reports whether any row has carried the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// Column returns the named column's values in row order; rows without the
// column contribute nil.
func (t *Table) Column(name string) []any {
	out := make([]any, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[name]
	}
	return out
}
