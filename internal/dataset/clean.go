package dataset

import "strings"

// Clean normalizes a freshly loaded table and returns a new dataset:
//  1. rows where every cell is empty are dropped
//  2. columns where every cell is empty are dropped
//  3. whitespace-only cells become empty
//  4. rows that still contain an empty cell are dropped
//
// The input is never modified. Column emptiness is judged over the input rows,
// so a table of blank rows cleans to no columns, while a table without any rows
// keeps its header. Clean(Clean(x)) equals Clean(x).
func Clean(ds *Dataset) *Dataset {
	out := ds.Clone()
	hadRows := len(out.Rows) > 0
	out.Rows = dropEmptyRows(out.Rows)
	if hadRows {
		out.Columns, out.Rows = dropEmptyColumns(out.Columns, out.Rows)
	}
	blankWhitespace(out.Rows)
	out.Rows = dropIncompleteRows(out.Rows)
	return out
}

func dropEmptyRows(rows [][]Cell) [][]Cell {
	kept := rows[:0]
	for _, row := range rows {
		for _, c := range row {
			if c.Valid {
				kept = append(kept, row)
				break
			}
		}
	}
	return kept
}

// dropEmptyColumns keeps columns with at least one valid cell. Blank rows hold
// no valid cells, so judging after step 1 matches judging the input.
func dropEmptyColumns(cols []string, rows [][]Cell) ([]string, [][]Cell) {
	keep := make([]int, 0, len(cols))
	for j := range cols {
		for _, row := range rows {
			if row[j].Valid {
				keep = append(keep, j)
				break
			}
		}
	}
	if len(keep) == len(cols) {
		return cols, rows
	}
	newCols := make([]string, len(keep))
	for i, j := range keep {
		newCols[i] = cols[j]
	}
	for r, row := range rows {
		nr := make([]Cell, len(keep))
		for i, j := range keep {
			nr[i] = row[j]
		}
		rows[r] = nr
	}
	return newCols, rows
}

func blankWhitespace(rows [][]Cell) {
	for _, row := range rows {
		for j, c := range row {
			if c.Valid && strings.TrimSpace(c.Value) == "" {
				row[j] = Cell{}
			}
		}
	}
}

func dropIncompleteRows(rows [][]Cell) [][]Cell {
	kept := rows[:0]
next:
	for _, row := range rows {
		for _, c := range row {
			if !c.Valid {
				continue next
			}
		}
		kept = append(kept, row)
	}
	return kept
}

// Stats describes a dataset before and after cleaning.
type Stats struct {
	OriginalRows    int      `json:"original_rows" msgpack:"original_rows"`
	OriginalColumns int      `json:"original_columns" msgpack:"original_columns"`
	CleanedRows     int      `json:"cleaned_rows" msgpack:"cleaned_rows"`
	CleanedColumns  int      `json:"cleaned_columns" msgpack:"cleaned_columns"`
	ColumnNames     []string `json:"column_names" msgpack:"column_names"`
}

// CleanStats compares an original dataset with its cleaned form.
func CleanStats(original, cleaned *Dataset) Stats {
	return Stats{
		OriginalRows:    original.NumRows(),
		OriginalColumns: original.NumCols(),
		CleanedRows:     cleaned.NumRows(),
		CleanedColumns:  cleaned.NumCols(),
		ColumnNames:     append([]string(nil), cleaned.Columns...),
	}
}
