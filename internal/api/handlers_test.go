package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/sheetask/internal/analysis"
	"github.com/KaramelBytes/sheetask/internal/assistant"
	"github.com/KaramelBytes/sheetask/internal/chart"
	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/interpret"
	"github.com/KaramelBytes/sheetask/internal/mediator"
	"github.com/KaramelBytes/sheetask/internal/session"
)

const salesCSV = "Region,Sales,Notes\nNorth,120,\nSouth,80,\n,,\nEast,200,\nWest,,\n"

const planReply = "Filter the rows.\n```transform\n" +
	`{"operations":[{"op":"filter","column":"Sales","operator":">","value":100}]}` +
	"\n```\n"

// scriptedOracle returns replies in order, then repeats the last one.
type scriptedOracle struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (o *scriptedOracle) Query(context.Context, *dataset.Dataset, string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return "", o.err
	}
	i := o.calls - 1
	if i >= len(o.replies) {
		i = len(o.replies) - 1
	}
	return o.replies[i], nil
}

func newTestServer(o assistant.Oracle) (*echo.Echo, *session.Manager) {
	sessions := session.NewManager(session.Options{MaxSessions: 10})
	e := NewServer(&Dependencies{
		Sessions:    sessions,
		Assistant:   assistant.New(o, nil, nil),
		Version:     "test",
		MaxUploadMB: 1,
	})
	return e, sessions
}

func do(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, name, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/datasets", body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func jsonRequest(method, path string, v any) *http.Request {
	b, _ := json.Marshal(v)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func upload(t *testing.T, e *echo.Echo) datasetResponse {
	t.Helper()
	rec := do(e, uploadRequest(t, "sales.csv", salesCSV))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp datasetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var e APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func TestHealth(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, NewHealthHandler("1.2.3").HandleHealth(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"1.2.3"`)
}

func TestUploadCleansAndPreviews(t *testing.T) {
	e, _ := newTestServer(&scriptedOracle{replies: []string{"ok"}})
	resp := upload(t, e)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, session.StateIdle, resp.State)
	assert.Equal(t, 5, resp.Stats.OriginalRows)
	assert.Equal(t, 3, resp.Stats.CleanedRows)
	assert.Equal(t, []string{"Region", "Sales"}, resp.Stats.ColumnNames)
	assert.Equal(t, []string{"Region", "Sales"}, resp.Preview.Columns)
	assert.Equal(t, []string{"string", "int"}, resp.Preview.Kinds)
	assert.Len(t, resp.Preview.Rows, 3)
}

func TestUploadErrors(t *testing.T) {
	e, _ := newTestServer(&scriptedOracle{replies: []string{"ok"}})
	tests := []struct {
		name    string
		req     *http.Request
		errCode string
	}{
		{"unsupported extension", uploadRequest(t, "notes.pdf", "%PDF"), "UPLOAD_ERROR"},
		{"corrupt workbook", uploadRequest(t, "broken.xlsx", "not a zip"), "UPLOAD_ERROR"},
		{"missing file field", jsonRequest(http.MethodPost, "/api/datasets", map[string]string{}), "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.errCode, decodeError(t, rec).Code)
		})
	}
}

func TestGetDataset(t *testing.T) {
	e, _ := newTestServer(&scriptedOracle{replies: []string{"ok"}})
	id := upload(t, e).ID

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/datasets/"+id+"?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp datasetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Preview.Rows, 1)
	assert.Equal(t, 3, resp.Preview.TotalRows)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/api/datasets/"+id+"?format=msgpack", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))
	var packed datasetResponse
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &packed))
	assert.Equal(t, id, packed.ID)
	assert.Equal(t, 3, packed.Stats.CleanedRows)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/api/datasets/"+id+"?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/api/datasets/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, "dataset not found: missing", apiErr.Message)
}

func TestProfileDataset(t *testing.T) {
	e, _ := newTestServer(&scriptedOracle{replies: []string{"ok"}})
	id := upload(t, e).ID

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/datasets/"+id+"/profile", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report analysis.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 3, report.Rows)
	require.Len(t, report.Cols, 2)
	assert.Equal(t, "Sales", report.Cols[1].Name)
	assert.Equal(t, 3, report.Cols[1].NonNull)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/api/datasets/missing/profile", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteDataset(t *testing.T) {
	e, sessions := newTestServer(&scriptedOracle{replies: []string{"ok"}})
	id := upload(t, e).ID
	rec := do(e, httptest.NewRequest(http.MethodDelete, "/api/datasets/"+id, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, sessions.Len())
	rec = do(e, httptest.NewRequest(http.MethodDelete, "/api/datasets/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryApplyDownload(t *testing.T) {
	e, _ := newTestServer(&scriptedOracle{replies: []string{planReply}})
	id := upload(t, e).ID

	rec := do(e, jsonRequest(http.MethodPost, "/api/datasets/"+id+"/query", queryRequest{Query: "sales over 100"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var q queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, planReply, q.Response)
	require.NotNil(t, q.Modification)
	assert.False(t, q.Modification.Applied)
	assert.Len(t, q.Modification.Operations, 1)
	modID := q.Modification.ID

	rec = do(e, httptest.NewRequest(http.MethodGet, "/api/datasets/"+id+"/modifications/"+modID+"/download", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(e, httptest.NewRequest(http.MethodPost, "/api/datasets/"+id+"/modifications/"+modID+"/apply", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var applied modificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &applied))
	assert.True(t, applied.Applied)
	require.NotNil(t, applied.Result)
	assert.Equal(t, [][]string{{"North", "120"}, {"East", "200"}}, applied.Result.Rows)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/api/datasets/"+id+"/modifications/"+modID+"/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), DownloadName)
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	rows, err := f.GetRows(dataset.DefaultSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Region", "Sales"}, {"North", "120"}, {"East", "200"}}, rows)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/api/datasets/"+id, nil))
	var after datasetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))
	assert.Equal(t, session.StateApplied, after.State)
	assert.Equal(t, 3, after.Preview.TotalRows, "cleaned data must be untouched")

	rec = do(e, httptest.NewRequest(http.MethodPost, "/api/datasets/"+id+"/modifications/"+modID+"/apply", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplyExecutionError(t *testing.T) {
	bad := "```transform\n{\"operations\":[{\"op\":\"select\",\"columns\":[\"Profit\"]}]}\n```"
	e, sessions := newTestServer(&scriptedOracle{replies: []string{bad}})
	id := upload(t, e).ID
	rec := do(e, jsonRequest(http.MethodPost, "/api/datasets/"+id+"/query", queryRequest{Query: "profit only"}))
	require.Equal(t, http.StatusOK, rec.Code)
	var q queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	require.NotNil(t, q.Modification)

	rec = do(e, httptest.NewRequest(http.MethodPost, "/api/datasets/"+id+"/modifications/"+q.Modification.ID+"/apply", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "EXECUTION_ERROR", decodeError(t, rec).Code)

	s, err := sessions.Get(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateExecutionFailed, s.State)
	assert.Equal(t, 3, s.Cleaned.NumRows())
}

func TestQueryErrors(t *testing.T) {
	t.Run("empty query", func(t *testing.T) {
		e, _ := newTestServer(&scriptedOracle{replies: []string{"ok"}})
		id := upload(t, e).ID
		rec := do(e, jsonRequest(http.MethodPost, "/api/datasets/"+id+"/query", queryRequest{Query: " "}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
	})
	t.Run("oracle failure", func(t *testing.T) {
		e, sessions := newTestServer(&scriptedOracle{err: &mediator.OracleError{Err: errors.New("quota")}})
		id := upload(t, e).ID
		rec := do(e, jsonRequest(http.MethodPost, "/api/datasets/"+id+"/query", queryRequest{Query: "why"}))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "ORACLE_ERROR", decodeError(t, rec).Code)
		s, _ := sessions.Get(id)
		assert.Equal(t, session.StateFailed, s.State)
	})
	t.Run("busy", func(t *testing.T) {
		e, sessions := newTestServer(&scriptedOracle{replies: []string{"ok"}})
		id := upload(t, e).ID
		_, err := sessions.BeginQuery(id)
		require.NoError(t, err)
		rec := do(e, jsonRequest(http.MethodPost, "/api/datasets/"+id+"/query", queryRequest{Query: "why"}))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "CONFLICT", decodeError(t, rec).Code)
	})
	t.Run("malformed block keeps text", func(t *testing.T) {
		reply := "Do this:\n```transform\n{\"operations\":[{\"op\":\"eval\"}]}\n```"
		e, _ := newTestServer(&scriptedOracle{replies: []string{reply}})
		id := upload(t, e).ID
		rec := do(e, jsonRequest(http.MethodPost, "/api/datasets/"+id+"/query", queryRequest{Query: "x"}))
		require.Equal(t, http.StatusOK, rec.Code)
		var q queryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
		assert.Equal(t, reply, q.Response)
		assert.Nil(t, q.Modification)
		assert.NotEmpty(t, q.PlanError)
	})
}

func TestCharts(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantStatus int
		errCode    string
	}{
		{"bar", `{"chart_type":"bar","x_column":"Region","y_column":"Sales","title":"Sales by Region"}`, http.StatusOK, ""},
		{"not json", "Sure! Here is a chart.", http.StatusUnprocessableEntity, "CHART_PARSE_ERROR"},
		{"missing title", `{"chart_type":"bar","x_column":"Region","y_column":"Sales"}`, http.StatusUnprocessableEntity, "INVALID_CHART_DATA"},
		{"unsupported", `{"chart_type":"radar","x_column":"Region","y_column":"Sales","title":"T"}`, http.StatusUnprocessableEntity, "UNSUPPORTED_CHART"},
		{"missing column", `{"chart_type":"bar","x_column":"Country","y_column":"Sales","title":"T"}`, http.StatusUnprocessableEntity, "CHART_COLUMN_ERROR"},
		{"huge bins", `{"chart_type":"histogram","x_column":"Sales","y_column":"","title":"Sales spread","additional_parameters":{"bins":1e17}}`, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestServer(&scriptedOracle{replies: []string{tt.reply}})
			id := upload(t, e).ID
			rec := do(e, jsonRequest(http.MethodPost, "/api/datasets/"+id+"/charts", chartRequest{Description: "sales per region"}))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.errCode != "" {
				assert.Equal(t, tt.errCode, decodeError(t, rec).Code)
				return
			}
			assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMETextHTML))
			assert.NotEmpty(t, rec.Header().Get("X-Chart-Type"))
			assert.Contains(t, rec.Body.String(), "Sales ")
		})
	}
}

// panicOnceOracle panics on its first call and answers reply afterwards.
type panicOnceOracle struct {
	mu    sync.Mutex
	calls int
	reply string
}

func (o *panicOnceOracle) Query(context.Context, *dataset.Dataset, string) (string, error) {
	o.mu.Lock()
	o.calls++
	first := o.calls == 1
	o.mu.Unlock()
	if first {
		panic("oracle exploded")
	}
	return o.reply, nil
}

func TestPanicDoesNotLeaveSessionBusy(t *testing.T) {
	tests := []struct {
		name string
		path string
		body any
	}{
		{"query", "/query", queryRequest{Query: "total sales"}},
		{"chart", "/charts", chartRequest{Description: "sales per region"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, sessions := newTestServer(&panicOnceOracle{reply: "All good."})
			id := upload(t, e).ID

			rec := do(e, jsonRequest(http.MethodPost, "/api/datasets/"+id+tt.path, tt.body))
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			s, err := sessions.Get(id)
			require.NoError(t, err)
			assert.Equal(t, session.StateFailed, s.State)

			rec = do(e, jsonRequest(http.MethodPost, "/api/datasets/"+id+"/query", queryRequest{Query: "total sales"}))
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		})
	}
}

func TestChartConstructorPanic(t *testing.T) {
	reg := chart.NewRegistry()
	reg.Register(interpret.ChartBar, func(*dataset.Dataset, interpret.ChartSpec) (chart.Renderer, error) {
		panic("constructor exploded")
	})
	sessions := session.NewManager(session.Options{MaxSessions: 10})
	o := &scriptedOracle{replies: []string{
		`{"chart_type":"bar","x_column":"Region","y_column":"Sales","title":"T"}`,
		"Total sales are 400.",
	}}
	e := NewServer(&Dependencies{
		Sessions:    sessions,
		Assistant:   assistant.New(o, reg, nil),
		Version:     "test",
		MaxUploadMB: 1,
	})
	id := upload(t, e).ID

	rec := do(e, jsonRequest(http.MethodPost, "/api/datasets/"+id+"/charts", chartRequest{Description: "sales per region"}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "CHART_ERROR", decodeError(t, rec).Code)

	rec = do(e, jsonRequest(http.MethodPost, "/api/datasets/"+id+"/query", queryRequest{Query: "total sales"}))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestBodyLimit(t *testing.T) {
	e, _ := newTestServer(&scriptedOracle{replies: []string{"ok"}})
	big := "A,B\n" + strings.Repeat("1234567890,1234567890\n", 60000)
	rec := do(e, uploadRequest(t, "big.csv", big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
