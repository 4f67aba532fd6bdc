package dataset

import (
	"fmt"
	"strings"
)

// Cell is a single table value. The zero value is an empty cell.
type Cell struct {
	Value string
	Valid bool
}

// Text returns a non-empty cell holding s.
func Text(s string) Cell { return Cell{Value: s, Valid: true} }

// Empty reports whether the cell holds no value.
func (c Cell) Empty() bool { return !c.Valid }

// Dataset is a table of rows by named columns. Every row has len(Columns) cells.
type Dataset struct {
	Name    string
	Columns []string
	Rows    [][]Cell
}

// New builds a dataset from string records. Empty strings become empty cells;
// short rows are padded with empty cells.
func New(name string, columns []string, records [][]string) *Dataset {
	ds := &Dataset{Name: name, Columns: append([]string(nil), columns...)}
	for _, rec := range records {
		row := make([]Cell, len(columns))
		for j := 0; j < len(columns) && j < len(rec); j++ {
			if rec[j] != "" {
				row[j] = Text(rec[j])
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int { return len(d.Rows) }

// NumCols returns the column count.
func (d *Dataset) NumCols() int { return len(d.Columns) }

// Clone returns a deep copy that shares no slices with d.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := &Dataset{
		Name:    d.Name,
		Columns: append([]string(nil), d.Columns...),
		Rows:    make([][]Cell, len(d.Rows)),
	}
	for i, row := range d.Rows {
		out.Rows[i] = append([]Cell(nil), row...)
	}
	return out
}

// ColumnIndex returns the position of the named column or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the cells of the named column.
func (d *Dataset) Column(name string) ([]Cell, error) {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found (available: %s)", name, strings.Join(d.Columns, ", "))
	}
	out := make([]Cell, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Records returns the rows as plain strings; empty cells become "".
func (d *Dataset) Records() [][]string {
	out := make([][]string, len(d.Rows))
	for i, row := range d.Rows {
		rec := make([]string, len(row))
		for j, c := range row {
			rec[j] = c.Value
		}
		out[i] = rec
	}
	return out
}

// Equal reports whether two datasets hold the same columns and cells.
func (d *Dataset) Equal(o *Dataset) bool {
	if d == nil || o == nil {
		return d == o
	}
	if len(d.Columns) != len(o.Columns) || len(d.Rows) != len(o.Rows) {
		return false
	}
	for i := range d.Columns {
		if d.Columns[i] != o.Columns[i] {
			return false
		}
	}
	for i := range d.Rows {
		if len(d.Rows[i]) != len(o.Rows[i]) {
			return false
		}
		for j := range d.Rows[i] {
			if d.Rows[i][j] != o.Rows[i][j] {
				return false
			}
		}
	}
	return true
}

// Head returns a copy limited to the first n rows. n <= 0 keeps every row.
func (d *Dataset) Head(n int) *Dataset {
	out := d.Clone()
	if n > 0 && n < len(out.Rows) {
		out.Rows = out.Rows[:n]
	}
	return out
}
