package assistant

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/sheetask/internal/chart"
	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/interpret"
	"github.com/KaramelBytes/sheetask/internal/mediator"
	"github.com/KaramelBytes/sheetask/internal/transform"
)

type fakeOracle struct {
	reply   string
	err     error
	queries []string
}

func (f *fakeOracle) Query(_ context.Context, _ *dataset.Dataset, q string) (string, error) {
	f.queries = append(f.queries, q)
	return f.reply, f.err
}

func sales() *dataset.Dataset {
	return dataset.New("sales.csv", []string{"Region", "Sales"}, [][]string{
		{"North", "120"},
		{"South", "80"},
		{"East", "200"},
	})
}

const planReply = "Keep the big regions.\n```transform\n" +
	`{"operations":[{"op":"filter","column":"Sales","operator":">","value":100}]}` +
	"\n```\nTwo rows remain."

func TestAnalyzeWithPlan(t *testing.T) {
	s := New(&fakeOracle{reply: planReply}, nil, nil)
	a, err := s.Analyze(context.Background(), sales(), "keep sales over 100")
	require.NoError(t, err)
	assert.Equal(t, planReply, a.Response)
	require.True(t, a.HasModification())
	assert.NoError(t, a.PlanErr)
	assert.Len(t, a.Steps, 1)
	assert.Contains(t, a.Code, `"op":"filter"`)
}

func TestAnalyzeWithoutBlock(t *testing.T) {
	s := New(&fakeOracle{reply: "East sold the most."}, nil, nil)
	a, err := s.Analyze(context.Background(), sales(), "who sold most")
	require.NoError(t, err)
	assert.False(t, a.HasModification())
	assert.NoError(t, a.PlanErr)
	assert.Empty(t, a.Code)
}

func TestAnalyzeBadBlockKeepsText(t *testing.T) {
	cases := map[string]string{
		"unterminated": "Try this\n```transform\n{\"operations\":[]}",
		"unknown op":   "```transform\n{\"operations\":[{\"op\":\"exec\"}]}\n```",
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			a, err := New(&fakeOracle{reply: reply}, nil, nil).Analyze(context.Background(), sales(), "q")
			require.NoError(t, err)
			assert.Equal(t, reply, a.Response)
			assert.False(t, a.HasModification())
			assert.Error(t, a.PlanErr)
		})
	}
}

func TestAnalyzeOracleFailure(t *testing.T) {
	cause := &mediator.OracleError{Err: errors.New("down")}
	_, err := New(&fakeOracle{err: cause}, nil, nil).Analyze(context.Background(), sales(), "q")
	var oe *mediator.OracleError
	assert.True(t, errors.As(err, &oe))
}

func TestApplyIsCopyOnWrite(t *testing.T) {
	s := New(&fakeOracle{reply: planReply}, nil, nil)
	ds := sales()
	before := ds.Clone()
	a, err := s.Analyze(context.Background(), ds, "q")
	require.NoError(t, err)

	out, err := s.Apply(ds, a.Plan)
	require.NoError(t, err)
	assert.Equal(t, 2, out.NumRows())
	assert.True(t, ds.Equal(before))

	_, err = s.Apply(ds, nil)
	assert.ErrorIs(t, err, ErrNoPlan)

	bad := &transform.Plan{Operations: []transform.Operation{{Op: transform.OpSelect, Columns: []string{"Nope"}}}}
	_, err = s.Apply(ds, bad)
	var ee *transform.ExecutionError
	assert.True(t, errors.As(err, &ee))
	assert.True(t, ds.Equal(before))
}

type stub struct{}

func (stub) Render(w io.Writer) error {
	_, err := io.WriteString(w, "<html>")
	return err
}

func TestVisualize(t *testing.T) {
	var got interpret.ChartSpec
	reg := chart.NewRegistry()
	reg.Register(interpret.ChartBar, func(_ *dataset.Dataset, spec interpret.ChartSpec) (chart.Renderer, error) {
		got = spec
		return stub{}, nil
	})
	o := &fakeOracle{reply: `{"chart_type":"bar","x_column":"Region","y_column":"Sales","title":"T"}`}
	c, err := New(o, reg, nil).Visualize(context.Background(), sales(), "sales by region")
	require.NoError(t, err)
	assert.Equal(t, "T", c.Spec.Title)
	assert.Equal(t, "Region", got.XColumn)
	assert.Equal(t, []string{mediator.ChartQuery("sales by region")}, o.queries)
}

func TestVisualizeErrors(t *testing.T) {
	calls := 0
	reg := chart.NewRegistry()
	reg.Register(interpret.ChartBar, func(*dataset.Dataset, interpret.ChartSpec) (chart.Renderer, error) {
		calls++
		return stub{}, nil
	})
	var (
		pe *interpret.ParseError
		se *interpret.SchemaError
		ue *chart.UnsupportedTypeError
	)
	cases := []struct {
		name  string
		reply string
		want  any
	}{
		{"not json", "Here is your chart!", &pe},
		{"missing title", `{"chart_type":"bar","x_column":"Region","y_column":"Sales"}`, &se},
		{"unsupported", `{"chart_type":"radar","x_column":"Region","y_column":"Sales","title":"T"}`, &ue},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := New(&fakeOracle{reply: c.reply}, reg, nil).Visualize(context.Background(), sales(), "chart")
			assert.True(t, errors.As(err, c.want), "err = %v", err)
		})
	}
	assert.Zero(t, calls)

	_, err := New(&fakeOracle{}, reg, nil).Visualize(context.Background(), sales(), " ")
	assert.ErrorIs(t, err, mediator.ErrEmptyQuery)
}
