package transform

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/KaramelBytes/sheetask/internal/dataset"
)

// ErrNoRows is returned when a plan is applied to a dataset without rows.
var ErrNoRows = errors.New("dataset has no rows to modify")

// ExecutionError reports a plan that failed while running. The input dataset
// is never modified.
type ExecutionError struct {
	Index int // -1 when the failure is not tied to one operation
	Op    string
	Err   error
}

func (e *ExecutionError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("modification failed: %v", e.Err)
	}
	return fmt.Sprintf("modification failed at operation %d (%s): %v", e.Index+1, e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Apply runs plan against a copy of ds and returns the modified copy.
func Apply(ds *dataset.Dataset, plan *Plan) (out *dataset.Dataset, err error) {
	if plan == nil || len(plan.Operations) == 0 {
		return nil, &ExecutionError{Index: -1, Err: errors.New("empty plan")}
	}
	if ds.NumRows() == 0 {
		return nil, &ExecutionError{Index: -1, Err: ErrNoRows}
	}
	idx := -1
	op := ""
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &ExecutionError{Index: idx, Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	df := toFrame(ds.Clone())
	if df.Err != nil {
		return nil, &ExecutionError{Index: -1, Err: df.Err}
	}
	for i, o := range plan.Operations {
		idx, op = i, o.Op
		next, err := step(df, o)
		if err == nil && next.Err != nil {
			err = next.Err
		}
		if err != nil {
			return nil, &ExecutionError{Index: i, Op: o.Op, Err: err}
		}
		df = next
	}
	return fromFrame(ds.Name, df), nil
}

func step(df dataframe.DataFrame, op Operation) (dataframe.DataFrame, error) {
	switch op.Op {
	case OpFilter:
		return filter(df, op)
	case OpSort:
		if err := requireColumns(df, op.Column); err != nil {
			return df, err
		}
		order := dataframe.Sort(op.Column)
		if op.Descending {
			order = dataframe.RevSort(op.Column)
		}
		return df.Arrange(order), nil
	case OpRename:
		if err := requireColumns(df, op.Column); err != nil {
			return df, err
		}
		to := formatValue(op.To)
		if to != op.Column && hasColumn(df, to) {
			return df, fmt.Errorf("column %q already exists", to)
		}
		return df.Rename(to, op.Column), nil
	case OpSelect:
		if err := requireColumns(df, op.Columns...); err != nil {
			return df, err
		}
		return df.Select(op.Columns), nil
	case OpDrop:
		if err := requireColumns(df, op.Columns...); err != nil {
			return df, err
		}
		if len(op.Columns) >= df.Ncol() {
			return df, errors.New("cannot drop every column")
		}
		return df.Drop(op.Columns), nil
	case OpDerive:
		return derive(df, op)
	case OpReplace:
		return replace(df, op)
	case OpAggregate:
		return aggregate(df, op)
	case OpDedupe:
		return dedupe(df, op)
	case OpHead:
		if op.N >= df.Nrow() {
			return df, nil
		}
		idx := make([]int, op.N)
		for i := range idx {
			idx[i] = i
		}
		return df.Subset(idx), nil
	}
	return df, fmt.Errorf("unknown operation %q", op.Op)
}

func filter(df dataframe.DataFrame, op Operation) (dataframe.DataFrame, error) {
	if err := requireColumns(df, op.Column); err != nil {
		return df, err
	}
	col := df.Col(op.Column)
	numeric := isNumeric(col)
	want := formatValue(op.Value)
	wantNum, wantIsNum := toFloat(op.Value)
	if numeric && op.Operator != "contains" && !wantIsNum {
		return df, fmt.Errorf("column %q is numeric but value %q is not", op.Column, want)
	}
	match := func(el series.Element) bool {
		if el.IsNA() {
			return false
		}
		if op.Operator == "contains" {
			return strings.Contains(strings.ToLower(elemString(el)), strings.ToLower(want))
		}
		var c int
		if numeric {
			c = compareFloat(el.Float(), wantNum)
		} else {
			c = strings.Compare(el.String(), want)
		}
		switch op.Operator {
		case "==":
			return c == 0
		case "!=":
			return c != 0
		case ">":
			return c > 0
		case ">=":
			return c >= 0
		case "<":
			return c < 0
		case "<=":
			return c <= 0
		}
		return false
	}
	return df.Filter(dataframe.F{Colname: op.Column, Comparator: series.CompFunc, Comparando: match}), nil
}

func derive(df dataframe.DataFrame, op Operation) (dataframe.DataFrame, error) {
	if err := requireColumns(df, op.Left); err != nil {
		return df, err
	}
	left := df.Col(op.Left)
	if !isNumeric(left) {
		return df, fmt.Errorf("column %q is not numeric", op.Left)
	}
	lv := left.Float()
	rv := make([]float64, len(lv))
	rightInt := false
	switch r := op.Right.(type) {
	case float64:
		for i := range rv {
			rv[i] = r
		}
		rightInt = r == math.Trunc(r)
	case string:
		if err := requireColumns(df, r); err != nil {
			return df, err
		}
		right := df.Col(r)
		if !isNumeric(right) {
			return df, fmt.Errorf("column %q is not numeric", r)
		}
		rv = right.Float()
		rightInt = right.Type() == series.Int
	}

	vals := make([]float64, len(lv))
	for i := range lv {
		switch op.Operator {
		case "+":
			vals[i] = lv[i] + rv[i]
		case "-":
			vals[i] = lv[i] - rv[i]
		case "*":
			vals[i] = lv[i] * rv[i]
		case "/":
			if rv[i] == 0 {
				return df, fmt.Errorf("division by zero in row %d", i)
			}
			vals[i] = lv[i] / rv[i]
		}
	}
	if left.Type() == series.Int && rightInt && op.Operator != "/" {
		ints := make([]int, len(vals))
		for i, v := range vals {
			ints[i] = int(v)
		}
		return df.Mutate(series.New(ints, series.Int, op.Column)), nil
	}
	return df.Mutate(series.New(vals, series.Float, op.Column)), nil
}

func replace(df dataframe.DataFrame, op Operation) (dataframe.DataFrame, error) {
	if err := requireColumns(df, op.Column); err != nil {
		return df, err
	}
	col := df.Col(op.Column)
	from, to := formatValue(op.From), formatValue(op.To)
	vals := make([]string, col.Len())
	for i := range vals {
		v := elemString(col.Elem(i))
		if v == from {
			v = to
		}
		vals[i] = v
	}
	typ := col.Type()
	if isNumeric(col) {
		if _, err := strconv.ParseFloat(to, 64); err != nil {
			typ = series.String
		} else if typ == series.Int {
			if _, err := strconv.Atoi(to); err != nil {
				typ = series.Float
			}
		}
	}
	return df.Mutate(series.New(vals, typ, op.Column)), nil
}

var aggregationTypes = map[string]dataframe.AggregationType{
	"sum":    dataframe.Aggregation_SUM,
	"mean":   dataframe.Aggregation_MEAN,
	"min":    dataframe.Aggregation_MIN,
	"max":    dataframe.Aggregation_MAX,
	"count":  dataframe.Aggregation_COUNT,
	"median": dataframe.Aggregation_MEDIAN,
	"std":    dataframe.Aggregation_STD,
}

func aggregate(df dataframe.DataFrame, op Operation) (dataframe.DataFrame, error) {
	if err := requireColumns(df, append(append([]string{}, op.GroupBy...), op.Column)...); err != nil {
		return df, err
	}
	for _, g := range op.GroupBy {
		if g == op.Column {
			return df, fmt.Errorf("column %q cannot be both grouped and aggregated", g)
		}
	}
	if op.Func != "count" && !isNumeric(df.Col(op.Column)) {
		return df, fmt.Errorf("%s needs a numeric column, %q is not", op.Func, op.Column)
	}
	typ := aggregationTypes[op.Func]

	// Groups are keyed on exact cell text. gota joins multi-column keys with
	// "_", which merges groups such as ("a_b", "c") and ("a", "b_c").
	ids, reps := groupIDs(df, op.GroupBy)
	keyed := df.Select([]string{op.Column}).Mutate(series.New(ids, series.String, groupKeyColumn))
	res := keyed.GroupBy(groupKeyColumn).Aggregation([]dataframe.AggregationType{typ}, []string{op.Column})
	if res.Err != nil {
		return res, res.Err
	}
	gotaName := fmt.Sprintf("%s_%s", op.Column, typ)
	vals := make([]float64, len(reps))
	for i := range vals {
		vals[i] = math.NaN()
	}
	keys, aggs := res.Col(groupKeyColumn), res.Col(gotaName)
	for r := 0; r < res.Nrow(); r++ {
		g, err := strconv.Atoi(keys.Elem(r).String())
		if err != nil || g < 0 || g >= len(vals) {
			return df, fmt.Errorf("unexpected group key %q", keys.Elem(r).String())
		}
		vals[g] = aggs.Elem(r).Float()
	}

	name := op.Column + "_" + op.Func
	out := df.Subset(reps).Select(op.GroupBy).Mutate(series.New(vals, series.Float, name))
	orders := make([]dataframe.Order, len(op.GroupBy))
	for i, g := range op.GroupBy {
		orders[i] = dataframe.Sort(g)
	}
	return out.Arrange(orders...), nil
}

const groupKeyColumn = "\x1fgroup"

// groupIDs numbers the distinct value combinations of cols in order of first
// appearance. ids[i] is the group of row i and reps[g] the first row of group g.
func groupIDs(df dataframe.DataFrame, cols []string) (ids []string, reps []int) {
	cs := make([]series.Series, len(cols))
	for j, c := range cols {
		cs[j] = df.Col(c)
	}
	groups := make(map[string]int)
	ids = make([]string, df.Nrow())
	parts := make([]string, len(cols))
	for i := range ids {
		for j, s := range cs {
			parts[j] = elemString(s.Elem(i))
		}
		key := strings.Join(parts, "\x1f")
		g, ok := groups[key]
		if !ok {
			g = len(reps)
			groups[key] = g
			reps = append(reps, i)
		}
		ids[i] = strconv.Itoa(g)
	}
	return ids, reps
}

func dedupe(df dataframe.DataFrame, op Operation) (dataframe.DataFrame, error) {
	cols := op.Columns
	if len(cols) == 0 {
		cols = df.Names()
	}
	if err := requireColumns(df, cols...); err != nil {
		return df, err
	}
	cs := make([]series.Series, len(cols))
	for j, c := range cols {
		cs[j] = df.Col(c)
	}
	seen := make(map[string]struct{}, df.Nrow())
	keep := make([]int, 0, df.Nrow())
	parts := make([]string, len(cols))
	for i := 0; i < df.Nrow(); i++ {
		for j, s := range cs {
			parts[j] = elemString(s.Elem(i))
		}
		key := strings.Join(parts, "\x1f")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, i)
	}
	if len(keep) == df.Nrow() {
		return df, nil
	}
	return df.Subset(keep), nil
}

func requireColumns(df dataframe.DataFrame, cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !hasColumn(df, c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		names := append([]string(nil), df.Names()...)
		sort.Strings(names)
		return fmt.Errorf("column(s) %s not found (available: %s)", strings.Join(missing, ", "), strings.Join(names, ", "))
	}
	return nil
}

func hasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

func isNumeric(s series.Series) bool {
	return s.Type() == series.Int || s.Type() == series.Float
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		return dataset.ParseNumber(x)
	}
	return 0, false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// elemString renders a gota element the way cells are stored: floats without
// padding, missing values as "".
func elemString(el series.Element) string {
	if el.IsNA() {
		return ""
	}
	if el.Type() == series.Float {
		f := el.Float()
		if math.IsNaN(f) {
			return ""
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return el.String()
}

var seriesTypes = map[dataset.Kind]series.Type{
	dataset.KindInt:   series.Int,
	dataset.KindFloat: series.Float,
}

func toFrame(ds *dataset.Dataset) dataframe.DataFrame {
	kinds := ds.Kinds()
	types := make(map[string]series.Type, len(kinds))
	for j, k := range kinds {
		t, ok := seriesTypes[k]
		if !ok {
			t = series.String
		}
		types[ds.Columns[j]] = t
	}
	records := make([][]string, 0, ds.NumRows()+1)
	records = append(records, ds.Columns)
	for _, row := range ds.Rows {
		rec := make([]string, len(row))
		for j, c := range row {
			v := c.Value
			if kinds[j] == dataset.KindFloat {
				if f, ok := dataset.ParseNumber(v); ok {
					v = strconv.FormatFloat(f, 'f', -1, 64)
				}
			}
			rec[j] = strings.TrimSpace(v)
		}
		records = append(records, rec)
	}
	return dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(types),
		dataframe.NaNValues([]string{""}),
	)
}

func fromFrame(name string, df dataframe.DataFrame) *dataset.Dataset {
	cols := df.Names()
	out := &dataset.Dataset{Name: name, Columns: append([]string(nil), cols...), Rows: make([][]dataset.Cell, df.Nrow())}
	for i := range out.Rows {
		out.Rows[i] = make([]dataset.Cell, len(cols))
	}
	for j, c := range cols {
		s := df.Col(c)
		for i := 0; i < s.Len(); i++ {
			if v := elemString(s.Elem(i)); v != "" {
				out.Rows[i][j] = dataset.Text(v)
			}
		}
	}
	return out
}
