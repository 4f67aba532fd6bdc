// Package chart maps chart specifications onto chart constructors.
package chart

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/interpret"
)

// Renderer writes a finished chart.
type Renderer interface {
	Render(w io.Writer) error
}

// Constructor builds a chart for spec from ds. Column names are used exactly
// as given in spec.
type Constructor func(ds *dataset.Dataset, spec interpret.ChartSpec) (Renderer, error)

// UnsupportedTypeError is returned for a chart type with no constructor.
type UnsupportedTypeError struct {
	Type      interpret.ChartType
	Supported []interpret.ChartType
}

func (e *UnsupportedTypeError) Error() string {
	names := make([]string, len(e.Supported))
	for i, t := range e.Supported {
		names[i] = string(t)
	}
	return fmt.Sprintf("unsupported chart type %q (supported: %s)", e.Type, strings.Join(names, ", "))
}

// ColumnError reports a column that is missing or unusable for the chart.
type ColumnError struct {
	Column string
	Reason string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("chart column %q: %s", e.Column, e.Reason)
}

// BuildError reports a constructor or renderer that failed unexpectedly.
type BuildError struct {
	Type interpret.ChartType
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building %s chart: %v", e.Type, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Chart is a rendered-on-demand chart and the spec it came from.
type Chart struct {
	Spec     interpret.ChartSpec
	renderer Renderer
}

// Render writes the chart as a standalone HTML page.
func (c *Chart) Render(w io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &BuildError{Type: c.Spec.ChartType, Err: fmt.Errorf("render panic: %v", r)}
		}
	}()
	return c.renderer.Render(w)
}

// HTML renders the chart into memory.
func (c *Chart) HTML() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Registry maps chart types to constructors. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	ctors map[interpret.ChartType]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[interpret.ChartType]Constructor)}
}

// Register binds t to c, replacing any earlier constructor.
func (r *Registry) Register(t interpret.ChartType, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[t] = c
}

// Types lists the registered chart types in sorted order.
func (r *Registry) Types() []interpret.ChartType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]interpret.ChartType, 0, len(r.ctors))
	for t := range r.ctors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch selects the constructor for spec.ChartType and builds the chart.
// A panicking constructor is reported as a *BuildError.
func (r *Registry) Dispatch(ds *dataset.Dataset, spec interpret.ChartSpec) (ch *Chart, err error) {
	r.mu.RLock()
	ctor, ok := r.ctors[spec.ChartType]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedTypeError{Type: spec.ChartType, Supported: r.Types()}
	}
	defer func() {
		if p := recover(); p != nil {
			ch, err = nil, &BuildError{Type: spec.ChartType, Err: fmt.Errorf("constructor panic: %v", p)}
		}
	}()
	rend, err := ctor(ds, spec)
	if err != nil {
		return nil, err
	}
	return &Chart{Spec: spec, renderer: rend}, nil
}

// Default returns a registry with every declared chart type.
func Default() *Registry {
	r := NewRegistry()
	r.Register(interpret.ChartBar, newBar)
	r.Register(interpret.ChartLine, newLine)
	r.Register(interpret.ChartScatter, newScatter)
	r.Register(interpret.ChartPie, newPie)
	r.Register(interpret.ChartHistogram, newHistogram)
	r.Register(interpret.ChartBox, newBox)
	r.Register(interpret.ChartHeatmap, newHeatmap)
	return r
}
