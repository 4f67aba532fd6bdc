package chart

import (
	"github.com/KaramelBytes/sheetask/internal/dataset"
)

func textColumn(ds *dataset.Dataset, name string) ([]string, error) {
	cells, err := column(ds, name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.Value
	}
	return out, nil
}

func numberColumn(ds *dataset.Dataset, name string) ([]float64, error) {
	cells, err := column(ds, name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(cells))
	for i, c := range cells {
		f, ok := dataset.ParseNumber(c.Value)
		if !ok {
			return nil, &ColumnError{Column: name, Reason: "value " + quote(c.Value) + " is not numeric"}
		}
		out[i] = f
	}
	return out, nil
}

func column(ds *dataset.Dataset, name string) ([]dataset.Cell, error) {
	if name == "" {
		return nil, &ColumnError{Column: name, Reason: "no column given"}
	}
	cells, err := ds.Column(name)
	if err != nil {
		return nil, &ColumnError{Column: name, Reason: err.Error()}
	}
	return cells, nil
}

func quote(s string) string { return "\"" + s + "\"" }

// categories returns the distinct values of xs in first-seen order and the
// position of each value.
func categories(xs []string) ([]string, map[string]int) {
	pos := make(map[string]int)
	var order []string
	for _, x := range xs {
		if _, ok := pos[x]; !ok {
			pos[x] = len(order)
			order = append(order, x)
		}
	}
	return order, pos
}
