// Package transform holds the closed set of table operations an oracle may
// request and applies them to a copy of a dataset.
package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Operation names.
const (
	OpFilter    = "filter"
	OpSort      = "sort"
	OpRename    = "rename"
	OpSelect    = "select"
	OpDrop      = "drop"
	OpDerive    = "derive"
	OpReplace   = "replace"
	OpAggregate = "aggregate"
	OpDedupe    = "dedupe"
	OpHead      = "head"
)

var (
	filterOperators = map[string]bool{"==": true, "!=": true, ">": true, ">=": true, "<": true, "<=": true, "contains": true}
	deriveOperators = map[string]bool{"+": true, "-": true, "*": true, "/": true}
	aggregateFuncs  = map[string]bool{"sum": true, "mean": true, "min": true, "max": true, "count": true, "median": true, "std": true}
)

// Operation is one step of a Plan. Which fields apply depends on Op.
type Operation struct {
	Op         string   `json:"op"`
	Column     string   `json:"column,omitempty"`
	Columns    []string `json:"columns,omitempty"`
	Operator   string   `json:"operator,omitempty"`
	Value      any      `json:"value,omitempty"`
	Descending bool     `json:"descending,omitempty"`
	From       any      `json:"from,omitempty"`
	To         any      `json:"to,omitempty"`
	Left       string   `json:"left,omitempty"`
	Right      any      `json:"right,omitempty"`
	GroupBy    []string `json:"group_by,omitempty"`
	Func       string   `json:"func,omitempty"`
	N          int      `json:"n,omitempty"`
}

// Plan is an ordered list of operations.
type Plan struct {
	Operations []Operation `json:"operations"`
}

// PlanError reports a block that is not a valid plan.
type PlanError struct {
	Index  int // -1 when the whole block is at fault
	Op     string
	Reason string
}

func (e *PlanError) Error() string {
	if e.Index < 0 {
		return "invalid modification plan: " + e.Reason
	}
	return fmt.Sprintf("invalid modification plan: operation %d (%s): %s", e.Index+1, e.Op, e.Reason)
}

// ParsePlan decodes and validates a plan from the text of a fenced block.
// A bare JSON array of operations is accepted as well.
func ParsePlan(code string) (*Plan, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &PlanError{Index: -1, Reason: "empty block"}
	}
	var p Plan
	dec := json.NewDecoder(bytes.NewReader([]byte(code)))
	dec.UseNumber()
	if strings.HasPrefix(code, "[") {
		if err := dec.Decode(&p.Operations); err != nil {
			return nil, &PlanError{Index: -1, Reason: err.Error()}
		}
	} else if err := dec.Decode(&p); err != nil {
		return nil, &PlanError{Index: -1, Reason: err.Error()}
	}
	if len(p.Operations) == 0 {
		return nil, &PlanError{Index: -1, Reason: "no operations"}
	}
	for i := range p.Operations {
		op := &p.Operations[i]
		op.Op = strings.ToLower(strings.TrimSpace(op.Op))
		op.Value = normalizeNumber(op.Value)
		op.From = normalizeNumber(op.From)
		op.To = normalizeNumber(op.To)
		op.Right = normalizeNumber(op.Right)
		if reason := validate(op); reason != "" {
			return nil, &PlanError{Index: i, Op: op.Op, Reason: reason}
		}
	}
	return &p, nil
}

func normalizeNumber(v any) any {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}

func validate(op *Operation) string {
	switch op.Op {
	case OpFilter:
		if op.Column == "" {
			return "column is required"
		}
		if !filterOperators[op.Operator] {
			return fmt.Sprintf("unsupported operator %q", op.Operator)
		}
		if op.Value == nil {
			return "value is required"
		}
	case OpSort:
		if op.Column == "" {
			return "column is required"
		}
	case OpRename:
		to, _ := op.To.(string)
		if op.Column == "" || to == "" {
			return "column and to are required"
		}
	case OpSelect, OpDrop:
		if len(op.Columns) == 0 {
			return "columns is required"
		}
	case OpDerive:
		if op.Column == "" || op.Left == "" || op.Right == nil {
			return "column, left and right are required"
		}
		if !deriveOperators[op.Operator] {
			return fmt.Sprintf("unsupported operator %q", op.Operator)
		}
		switch op.Right.(type) {
		case string, float64:
		default:
			return "right must be a column name or a number"
		}
	case OpReplace:
		if op.Column == "" || op.From == nil || op.To == nil {
			return "column, from and to are required"
		}
	case OpAggregate:
		if len(op.GroupBy) == 0 || op.Column == "" {
			return "group_by and column are required"
		}
		op.Func = strings.ToLower(op.Func)
		if !aggregateFuncs[op.Func] {
			return fmt.Sprintf("unsupported func %q", op.Func)
		}
	case OpDedupe:
	case OpHead:
		if op.N <= 0 {
			return "n must be positive"
		}
	case "":
		return "op is required"
	default:
		return "unknown operation"
	}
	return ""
}

// Describe renders one operation as a short human-readable line.
func (op Operation) Describe() string {
	switch op.Op {
	case OpFilter:
		return fmt.Sprintf("keep rows where %s %s %s", op.Column, op.Operator, formatValue(op.Value))
	case OpSort:
		if op.Descending {
			return fmt.Sprintf("sort by %s descending", op.Column)
		}
		return fmt.Sprintf("sort by %s ascending", op.Column)
	case OpRename:
		return fmt.Sprintf("rename %s to %s", op.Column, formatValue(op.To))
	case OpSelect:
		return "keep columns " + strings.Join(op.Columns, ", ")
	case OpDrop:
		return "drop columns " + strings.Join(op.Columns, ", ")
	case OpDerive:
		return fmt.Sprintf("set %s = %s %s %s", op.Column, op.Left, op.Operator, formatValue(op.Right))
	case OpReplace:
		return fmt.Sprintf("replace %s with %s in %s", formatValue(op.From), formatValue(op.To), op.Column)
	case OpAggregate:
		return fmt.Sprintf("%s of %s grouped by %s", op.Func, op.Column, strings.Join(op.GroupBy, ", "))
	case OpDedupe:
		if len(op.Columns) == 0 {
			return "drop duplicate rows"
		}
		return "drop duplicate rows by " + strings.Join(op.Columns, ", ")
	case OpHead:
		return fmt.Sprintf("keep first %d rows", op.N)
	}
	return op.Op
}

// Describe lists every step of the plan.
func (p *Plan) Describe() []string {
	out := make([]string, len(p.Operations))
	for i, op := range p.Operations {
		out[i] = op.Describe()
	}
	return out
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
