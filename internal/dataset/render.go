package dataset

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// String renders every row as an aligned table with a 0-based row index.
// A table without rows renders its header in the empty-frame form.
func (d *Dataset) String() string {
	var sb strings.Builder
	if len(d.Rows) == 0 {
		fmt.Fprintf(&sb, "Empty DataFrame\nColumns: [%s]\nIndex: []", strings.Join(d.Columns, ", "))
		return sb.String()
	}
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', tabwriter.AlignRight)
	sb.Grow(len(d.Rows) * len(d.Columns) * 8)
	fmt.Fprint(tw, "\t")
	for _, c := range d.Columns {
		fmt.Fprintf(tw, "%s\t", c)
	}
	fmt.Fprintln(tw)
	for i, row := range d.Rows {
		fmt.Fprintf(tw, "%d\t", i)
		for _, c := range row {
			v := c.Value
			if !c.Valid {
				v = "NaN"
			}
			fmt.Fprintf(tw, "%s\t", sanitizeCell(v))
		}
		fmt.Fprintln(tw)
	}
	_ = tw.Flush()
	return strings.TrimRight(sb.String(), "\n")
}

// sanitizeCell keeps one cell on one line so the table stays aligned.
func sanitizeCell(v string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(v)
}
