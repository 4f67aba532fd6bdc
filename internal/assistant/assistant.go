// Package assistant runs the query, modification and chart flows over a
// cleaned dataset.
package assistant

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/sheetask/internal/chart"
	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/interpret"
	"github.com/KaramelBytes/sheetask/internal/logging"
	"github.com/KaramelBytes/sheetask/internal/mediator"
	"github.com/KaramelBytes/sheetask/internal/transform"
)

// BlockLang tags the fenced block that carries a modification plan.
const BlockLang = "transform"

// ErrNoPlan is returned by Apply when there is nothing to apply.
var ErrNoPlan = errors.New("no modification to apply")

// Oracle answers a query about a dataset.
type Oracle interface {
	Query(ctx context.Context, ds *dataset.Dataset, query string) (string, error)
}

// Analysis is the result of one query.
type Analysis struct {
	Response string
	// Code is the raw modification block, empty when the answer has none.
	Code string
	Plan *transform.Plan
	// Steps describes Plan for display.
	Steps []string
	// PlanErr is set when a block was present but unusable.
	PlanErr error
}

// HasModification reports whether a valid plan can be offered for confirmation.
func (a *Analysis) HasModification() bool { return a != nil && a.Plan != nil }

// Service wires an oracle to the interpreters.
type Service struct {
	oracle Oracle
	charts *chart.Registry
	logger *zap.Logger
}

// New returns a Service. A nil registry means chart.Default().
func New(o Oracle, charts *chart.Registry, logger *zap.Logger) *Service {
	if charts == nil {
		charts = chart.Default()
	}
	return &Service{oracle: o, charts: charts, logger: logging.OrNop(logger)}
}

// Analyze sends query to the oracle and extracts any modification plan.
// Oracle failures are returned; a bad plan is reported on the Analysis.
func (s *Service) Analyze(ctx context.Context, ds *dataset.Dataset, query string) (*Analysis, error) {
	text, err := s.oracle.Query(ctx, ds, query)
	if err != nil {
		return nil, err
	}
	a := &Analysis{Response: text}
	code, ok, err := interpret.ExtractBlock(text, BlockLang)
	switch {
	case err != nil:
		a.PlanErr = err
	case ok:
		a.Code = code
		plan, err := transform.ParsePlan(code)
		if err != nil {
			a.PlanErr = err
			break
		}
		a.Plan = plan
		a.Steps = plan.Describe()
	}
	if a.PlanErr != nil {
		s.logger.Info("modification block rejected", zap.Error(a.PlanErr))
	}
	return a, nil
}

// Apply runs plan against a copy of ds. ds is never modified.
func (s *Service) Apply(ds *dataset.Dataset, plan *transform.Plan) (*dataset.Dataset, error) {
	if plan == nil {
		return nil, ErrNoPlan
	}
	out, err := transform.Apply(ds, plan)
	if err != nil {
		s.logger.Info("modification failed", zap.Error(err))
		return nil, err
	}
	s.logger.Debug("modification applied",
		zap.Int("operations", len(plan.Operations)),
		zap.Int("rows", out.NumRows()),
		zap.Int("columns", out.NumCols()),
	)
	return out, nil
}

// Visualize asks the oracle for a chart spec matching description and builds it.
func (s *Service) Visualize(ctx context.Context, ds *dataset.Dataset, description string) (*chart.Chart, error) {
	if strings.TrimSpace(description) == "" {
		return nil, mediator.ErrEmptyQuery
	}
	text, err := s.oracle.Query(ctx, ds, mediator.ChartQuery(description))
	if err != nil {
		return nil, err
	}
	spec, err := interpret.ParseChartSpec(text)
	if err != nil {
		return nil, err
	}
	c, err := s.charts.Dispatch(ds, spec)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("chart built", zap.String("type", string(spec.ChartType)), zap.String("title", spec.Title))
	return c, nil
}
