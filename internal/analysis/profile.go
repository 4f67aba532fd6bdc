// Package analysis computes per-column summaries of a cleaned dataset.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/sheetask/internal/dataset"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Options tunes Profile.
type Options struct {
	// TopN is the number of most frequent values kept for text columns.
	TopN int
	// OutlierThreshold is the robust |z| above which a value counts as an outlier.
	OutlierThreshold float64
}

func (o Options) withDefaults() Options {
	if o.TopN <= 0 {
		o.TopN = 5
	}
	if o.OutlierThreshold <= 0 {
		o.OutlierThreshold = 3.5
	}
	return o
}

// Report summarizes every column of a dataset.
type Report struct {
	Name string          `json:"name"`
	Rows int             `json:"rows"`
	Cols []ColumnSummary `json:"columns"`
	// Corr lists Pearson correlations between numeric columns, strongest first.
	Corr []PairCorr `json:"correlations,omitempty"`
}

// ColumnSummary captures the inferred kind and statistics of one column.
type ColumnSummary struct {
	Name    string       `json:"name"`
	Kind    dataset.Kind `json:"kind"`
	NonNull int          `json:"non_null"`
	Missing int          `json:"missing"`
	Unique  int          `json:"unique"`

	// Numeric stats, zero for non-numeric columns.
	Min    float64 `json:"min,omitempty"`
	Max    float64 `json:"max,omitempty"`
	Mean   float64 `json:"mean,omitempty"`
	Std    float64 `json:"std,omitempty"`
	Median float64 `json:"median,omitempty"`

	// Outliers by robust z-score (median and MAD).
	Outliers         int     `json:"outliers,omitempty"`
	OutlierThreshold float64 `json:"outlier_threshold,omitempty"`

	TopValues []CategoryCount `json:"top_values,omitempty"`
}

type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type PairCorr struct {
	A string  `json:"a"`
	B string  `json:"b"`
	R float64 `json:"r"`
}

// Profile summarizes ds. It never fails; columns without values get zero stats.
func Profile(ds *dataset.Dataset, opt Options) *Report {
	opt = opt.withDefaults()
	r := &Report{Name: ds.Name, Rows: ds.NumRows()}
	kinds := ds.Kinds()
	for j, name := range ds.Columns {
		s := ColumnSummary{Name: name, Kind: kinds[j]}
		counts := map[string]int{}
		var vals []float64
		for _, row := range ds.Rows {
			c := row[j]
			if !c.Valid {
				s.Missing++
				continue
			}
			s.NonNull++
			counts[c.Value]++
			if kinds[j].Numeric() {
				if f, ok := dataset.ParseNumber(c.Value); ok {
					vals = append(vals, f)
				}
			}
		}
		s.Unique = len(counts)
		if kinds[j].Numeric() && len(vals) > 0 {
			numericStats(&s, vals, opt.OutlierThreshold)
		} else {
			s.TopValues = topValues(counts, opt.TopN)
		}
		r.Cols = append(r.Cols, s)
	}
	r.Corr = correlations(ds, kinds)
	return r
}

func numericStats(s *ColumnSummary, vals []float64, threshold float64) {
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	mean, std := stat.MeanStdDev(vals, nil)
	if math.IsNaN(std) {
		std = 0
	}
	s.Mean, s.Std = mean, std

	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	s.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	dev := make([]float64, len(sorted))
	for i, v := range sorted {
		dev[i] = math.Abs(v - s.Median)
	}
	sort.Float64s(dev)
	mad := stat.Quantile(0.5, stat.Empirical, dev, nil)
	s.OutlierThreshold = threshold
	if mad == 0 {
		return
	}
	for _, v := range vals {
		if math.Abs(0.6745*(v-s.Median)/mad) > threshold {
			s.Outliers++
		}
	}
}

func topValues(counts map[string]int, n int) []CategoryCount {
	out := make([]CategoryCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, CategoryCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// correlations pairs numeric columns over rows where both cells are numbers.
// Pairs with fewer than three such rows or a constant side are skipped.
func correlations(ds *dataset.Dataset, kinds []dataset.Kind) []PairCorr {
	var idx []int
	for j, k := range kinds {
		if k.Numeric() {
			idx = append(idx, j)
		}
	}
	var out []PairCorr
	for a := 0; a < len(idx); a++ {
		for b := a + 1; b < len(idx); b++ {
			var xs, ys []float64
			for _, row := range ds.Rows {
				x, okx := number(row[idx[a]])
				y, oky := number(row[idx[b]])
				if okx && oky {
					xs = append(xs, x)
					ys = append(ys, y)
				}
			}
			if len(xs) < 3 {
				continue
			}
			r := stat.Correlation(xs, ys, nil)
			if math.IsNaN(r) || math.IsInf(r, 0) {
				continue
			}
			out = append(out, PairCorr{A: ds.Columns[idx[a]], B: ds.Columns[idx[b]], R: r})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return math.Abs(out[i].R) > math.Abs(out[j].R) })
	return out
}

func number(c dataset.Cell) (float64, bool) {
	if !c.Valid {
		return 0, false
	}
	return dataset.ParseNumber(c.Value)
}

// Markdown renders a compact plain-text report.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		fmt.Fprintf(&b, "File: %s\n", r.Name)
	}
	fmt.Fprintf(&b, "Rows: %d\n", r.Rows)
	fmt.Fprintf(&b, "Columns: %d\n\n", len(r.Cols))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		missPct := 0.0
		if total := c.NonNull + c.Missing; total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		fmt.Fprintf(&b, "- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct)
		switch {
		case c.Kind.Numeric() && c.NonNull > 0:
			fmt.Fprintf(&b, "; min %.4g, max %.4g, mean %.4g, median %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Median, c.Std)
			if c.Outliers > 0 {
				fmt.Fprintf(&b, "; outliers: %d above |z|>%.1f", c.Outliers, c.OutlierThreshold)
			}
		case len(c.TopValues) > 0:
			b.WriteString("; top: ")
			for i, kv := range c.TopValues {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%s(%d)", safeVal(kv.Value), kv.Count)
			}
			if c.Unique > len(c.TopValues) {
				fmt.Fprintf(&b, "; unique=%d", c.Unique)
			}
		}
		b.WriteString("\n")
	}
	if len(r.Corr) > 0 {
		b.WriteString("\n[CORRELATIONS]\n")
		for _, p := range r.Corr {
			fmt.Fprintf(&b, "- %s ~ %s: r=%.3f\n", safeName(p.A), safeName(p.B), p.R)
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
