package interpret

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChartType names a chart family.
type ChartType string

const (
	ChartBar       ChartType = "bar"
	ChartLine      ChartType = "line"
	ChartScatter   ChartType = "scatter"
	ChartPie       ChartType = "pie"
	ChartHistogram ChartType = "histogram"
	ChartBox       ChartType = "box"
	ChartHeatmap   ChartType = "heatmap"
)

// ChartTypes lists every declared chart type.
var ChartTypes = []ChartType{ChartBar, ChartLine, ChartScatter, ChartPie, ChartHistogram, ChartBox, ChartHeatmap}

// ChartSpec is the chart description the oracle returns for a visualisation request.
type ChartSpec struct {
	ChartType            ChartType      `json:"chart_type"`
	XColumn              string         `json:"x_column"`
	YColumn              string         `json:"y_column"`
	Title                string         `json:"title"`
	AdditionalParameters map[string]any `json:"additional_parameters,omitempty"`
}

// IntParam returns an integer additional parameter, or def when absent or not numeric.
func (s ChartSpec) IntParam(key string, def int) int {
	switch v := s.AdditionalParameters[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}

// StringParam returns a string additional parameter or "".
func (s ChartSpec) StringParam(key string) string {
	v, _ := s.AdditionalParameters[key].(string)
	return v
}

// ParseError means the text was not a JSON object.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("chart response is not valid JSON: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError means the JSON object lacks required chart fields or has them
// with the wrong type.
type SchemaError struct {
	Missing []string
	Invalid []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return "invalid chart data: " + strings.Join(parts, "; ")
}

var requiredChartKeys = []string{"chart_type", "x_column", "y_column", "title"}

// ParseChartSpec parses oracle text as a chart spec. A response that is one
// fenced block is unwrapped first.
func ParseChartSpec(text string) (ChartSpec, error) {
	body := unwrapFence(strings.TrimSpace(text))

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return ChartSpec{}, &ParseError{Text: text, Err: err}
	}
	if raw == nil {
		return ChartSpec{}, &ParseError{Text: text, Err: fmt.Errorf("expected a JSON object, got null")}
	}

	var schemaErr SchemaError
	fields := make(map[string]string, len(requiredChartKeys))
	for _, k := range requiredChartKeys {
		v, ok := raw[k]
		if !ok {
			schemaErr.Missing = append(schemaErr.Missing, k)
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			schemaErr.Invalid = append(schemaErr.Invalid, k)
			continue
		}
		fields[k] = s
	}
	var params map[string]any
	if v, ok := raw["additional_parameters"]; ok {
		if err := json.Unmarshal(v, &params); err != nil {
			schemaErr.Invalid = append(schemaErr.Invalid, "additional_parameters")
		}
	}
	if len(schemaErr.Missing) > 0 || len(schemaErr.Invalid) > 0 {
		return ChartSpec{}, &schemaErr
	}

	return ChartSpec{
		ChartType:            ChartType(strings.ToLower(strings.TrimSpace(fields["chart_type"]))),
		XColumn:              fields["x_column"],
		YColumn:              fields["y_column"],
		Title:                fields["title"],
		AdditionalParameters: params,
	}, nil
}
