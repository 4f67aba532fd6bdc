package chart

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/interpret"
)

const (
	defaultBins = 10
	maxBins     = 1000
)

func globals(spec interpret.ChartSpec) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{PageTitle: spec.Title, Width: "960px", Height: "540px"}),
		charts.WithTitleOpts(opts.Title{Title: spec.Title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: true}),
		charts.WithLegendOpts(opts.Legend{Show: true}),
	}
}

func axes(x, y string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithXAxisOpts(opts.XAxis{Name: x}),
		charts.WithYAxisOpts(opts.YAxis{Name: y}),
	}
}

func xy(ds *dataset.Dataset, spec interpret.ChartSpec) ([]string, []float64, error) {
	xs, err := textColumn(ds, spec.XColumn)
	if err != nil {
		return nil, nil, err
	}
	ys, err := numberColumn(ds, spec.YColumn)
	if err != nil {
		return nil, nil, err
	}
	return xs, ys, nil
}

func newBar(ds *dataset.Dataset, spec interpret.ChartSpec) (Renderer, error) {
	xs, ys, err := xy(ds, spec)
	if err != nil {
		return nil, err
	}
	data := make([]opts.BarData, len(ys))
	for i, y := range ys {
		data[i] = opts.BarData{Value: y}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(append(globals(spec), axes(spec.XColumn, spec.YColumn)...)...)
	bar.SetXAxis(xs).AddSeries(spec.YColumn, data)
	return bar, nil
}

func newLine(ds *dataset.Dataset, spec interpret.ChartSpec) (Renderer, error) {
	xs, ys, err := xy(ds, spec)
	if err != nil {
		return nil, err
	}
	data := make([]opts.LineData, len(ys))
	for i, y := range ys {
		data[i] = opts.LineData{Value: y}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(append(globals(spec), axes(spec.XColumn, spec.YColumn)...)...)
	line.SetXAxis(xs).AddSeries(spec.YColumn, data)
	return line, nil
}

// newScatter plots numeric x on a value axis, or text x as categories.
func newScatter(ds *dataset.Dataset, spec interpret.ChartSpec) (Renderer, error) {
	ys, err := numberColumn(ds, spec.YColumn)
	if err != nil {
		return nil, err
	}
	sc := charts.NewScatter()
	sc.SetGlobalOptions(globals(spec)...)
	if xnum, err := numberColumn(ds, spec.XColumn); err == nil {
		data := make([]opts.ScatterData, len(ys))
		for i := range ys {
			data[i] = opts.ScatterData{Value: []interface{}{xnum[i], ys[i]}}
		}
		sc.SetGlobalOptions(
			charts.WithXAxisOpts(opts.XAxis{Name: spec.XColumn, Type: "value"}),
			charts.WithYAxisOpts(opts.YAxis{Name: spec.YColumn, Type: "value"}),
		)
		sc.AddSeries(spec.YColumn, data)
		return sc, nil
	}
	xs, err := textColumn(ds, spec.XColumn)
	if err != nil {
		return nil, err
	}
	data := make([]opts.ScatterData, len(ys))
	for i, y := range ys {
		data[i] = opts.ScatterData{Value: y}
	}
	sc.SetGlobalOptions(axes(spec.XColumn, spec.YColumn)...)
	sc.SetXAxis(xs).AddSeries(spec.YColumn, data)
	return sc, nil
}

func newPie(ds *dataset.Dataset, spec interpret.ChartSpec) (Renderer, error) {
	xs, ys, err := xy(ds, spec)
	if err != nil {
		return nil, err
	}
	names, pos := categories(xs)
	sums := make([]float64, len(names))
	for i, x := range xs {
		sums[pos[x]] += ys[i]
	}
	data := make([]opts.PieData, len(names))
	for i, n := range names {
		data[i] = opts.PieData{Name: n, Value: sums[i]}
	}
	pie := charts.NewPie()
	pie.SetGlobalOptions(globals(spec)...)
	pie.AddSeries(spec.YColumn, data)
	return pie, nil
}

func newHistogram(ds *dataset.Dataset, spec interpret.ChartSpec) (Renderer, error) {
	xs, err := numberColumn(ds, spec.XColumn)
	if err != nil {
		return nil, err
	}
	labels, counts := histogram(xs, histogramBins(spec, len(xs)))
	data := make([]opts.BarData, len(counts))
	for i, c := range counts {
		data[i] = opts.BarData{Value: c}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(append(globals(spec), axes(spec.XColumn, "count")...)...)
	bar.SetXAxis(labels).AddSeries("count", data)
	return bar, nil
}

// histogramBins reads the requested bin count, never more than n values or maxBins.
func histogramBins(spec interpret.ChartSpec, n int) int {
	bins := spec.IntParam("bins", defaultBins)
	if bins <= 0 {
		bins = defaultBins
	}
	return min(bins, n, maxBins)
}

// histogram splits xs into equal-width bins between its min and max.
func histogram(xs []float64, bins int) ([]string, []float64) {
	if len(xs) == 0 {
		return nil, nil
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)
	labels := make([]string, bins)
	for i := range labels {
		labels[i] = fmt.Sprintf("[%s, %s)", fmtNum(dividers[i]), fmtNum(dividers[i+1]))
	}
	return labels, counts
}

func fmtNum(f float64) string { return strconv.FormatFloat(f, 'g', 4, 64) }

// newBox draws one box of y per distinct x. An empty or repeated x column
// yields a single box.
func newBox(ds *dataset.Dataset, spec interpret.ChartSpec) (Renderer, error) {
	ys, err := numberColumn(ds, spec.YColumn)
	if err != nil {
		return nil, err
	}
	groups := []string{spec.YColumn}
	members := map[string][]float64{spec.YColumn: ys}
	if spec.XColumn != "" && spec.XColumn != spec.YColumn {
		xs, err := textColumn(ds, spec.XColumn)
		if err != nil {
			return nil, err
		}
		groups, _ = categories(xs)
		members = make(map[string][]float64, len(groups))
		for i, x := range xs {
			members[x] = append(members[x], ys[i])
		}
	}
	data := make([]opts.BoxPlotData, len(groups))
	for i, g := range groups {
		data[i] = opts.BoxPlotData{Value: fiveNumber(members[g])}
	}
	box := charts.NewBoxPlot()
	box.SetGlobalOptions(append(globals(spec), axes(spec.XColumn, spec.YColumn)...)...)
	box.SetXAxis(groups).AddSeries(spec.YColumn, data)
	return box, nil
}

// fiveNumber returns min, first quartile, median, third quartile and max.
func fiveNumber(v []float64) []float64 {
	if len(v) == 0 {
		return []float64{0, 0, 0, 0, 0}
	}
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	return []float64{
		s[0],
		stat.Quantile(0.25, stat.Empirical, s, nil),
		stat.Quantile(0.5, stat.Empirical, s, nil),
		stat.Quantile(0.75, stat.Empirical, s, nil),
		s[len(s)-1],
	}
}

// newHeatmap counts rows per (x, y) pair, or sums
// additional_parameters.value_column when given.
func newHeatmap(ds *dataset.Dataset, spec interpret.ChartSpec) (Renderer, error) {
	xs, err := textColumn(ds, spec.XColumn)
	if err != nil {
		return nil, err
	}
	ys, err := textColumn(ds, spec.YColumn)
	if err != nil {
		return nil, err
	}
	var weights []float64
	if vc := spec.StringParam("value_column"); vc != "" {
		if weights, err = numberColumn(ds, vc); err != nil {
			return nil, err
		}
	}
	xcats, xpos := categories(xs)
	ycats, ypos := categories(ys)
	grid := make([][]float64, len(xcats))
	for i := range grid {
		grid[i] = make([]float64, len(ycats))
	}
	for i := range xs {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		grid[xpos[xs[i]]][ypos[ys[i]]] += w
	}
	var data []opts.HeatMapData
	cells := make([]float64, 0, len(xcats)*len(ycats))
	for i := range xcats {
		for j := range ycats {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{i, j, grid[i][j]}})
			cells = append(cells, grid[i][j])
		}
	}
	lo, hi := 0.0, 1.0
	if len(cells) > 0 {
		lo, hi = floats.Min(cells), floats.Max(cells)
	}
	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(globals(spec)...)
	hm.SetGlobalOptions(
		charts.WithXAxisOpts(opts.XAxis{Name: spec.XColumn, Type: "category", SplitArea: &opts.SplitArea{Show: true}}),
		charts.WithYAxisOpts(opts.YAxis{Name: spec.YColumn, Type: "category", Data: ycats, SplitArea: &opts.SplitArea{Show: true}}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Min:     float32(lo),
			Max:     float32(hi),
			InRange: &opts.VisualMapInRange{Color: []string{"#f7fbff", "#6baed6", "#08306b"}},
		}),
	)
	hm.SetXAxis(xcats).AddSeries("value", data)
	return hm, nil
}
