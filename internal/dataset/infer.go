package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindBool     Kind = "bool"
	KindDatetime Kind = "datetime"
	KindString   Kind = "string"
)

// Numeric reports whether values of this kind are numbers.
func (k Kind) Numeric() bool { return k == KindInt || k == KindFloat }

// ColumnKind infers the kind of the column at index j from its valid cells.
// A column with no valid cells is a string column.
func (d *Dataset) ColumnKind(j int) Kind {
	var n, ints, floats, bools, dates int
	for _, row := range d.Rows {
		c := row[j]
		if !c.Valid {
			continue
		}
		n++
		v := strings.TrimSpace(c.Value)
		if _, err := strconv.ParseInt(v, 10, 64); err == nil {
			ints++
			continue
		}
		if _, ok := ParseNumber(v); ok {
			floats++
			continue
		}
		if _, err := strconv.ParseBool(v); err == nil {
			bools++
			continue
		}
		if _, ok := ParseTime(v); ok {
			dates++
		}
	}
	switch {
	case n == 0:
		return KindString
	case ints == n:
		return KindInt
	case ints+floats == n:
		return KindFloat
	case bools == n:
		return KindBool
	case dates == n:
		return KindDatetime
	default:
		return KindString
	}
}

// Kinds infers every column kind in column order.
func (d *Dataset) Kinds() []Kind {
	out := make([]Kind, len(d.Columns))
	for j := range d.Columns {
		out[j] = d.ColumnKind(j)
	}
	return out
}

// ParseNumber parses plain, thousands-separated, comma-decimal and percent
// values ("1,234.5", "1.234,5", "12%").
func ParseNumber(s string) (float64, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, false
	}
	raw = strings.TrimSuffix(raw, "%")
	raw = strings.ReplaceAll(raw, "\u00A0", "")
	raw = strings.ReplaceAll(raw, " ", "")
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, finite(f)
	}
	cpos := strings.LastIndex(raw, ",")
	dpos := strings.LastIndex(raw, ".")
	switch {
	case cpos >= 0 && dpos >= 0 && cpos > dpos:
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
	case cpos >= 0 && dpos >= 0:
		raw = strings.ReplaceAll(raw, ",", "")
	case cpos >= 0 && strings.Count(raw, ",") == 1 && len(raw)-cpos-1 != 3:
		raw = strings.Replace(raw, ",", ".", 1)
	default:
		raw = strings.ReplaceAll(raw, ",", "")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, finite(f)
}

// finite rejects "NaN" and "Inf", which strconv accepts but a sheet means as text.
func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

var timeLayouts = []string{
	time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
	"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	"01-02-06", "1/2/06",
}

// ParseTime tries the common spreadsheet date layouts.
func ParseTime(s string) (time.Time, bool) {
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
