package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/KaramelBytes/sheetask/internal/analysis"
	"github.com/KaramelBytes/sheetask/internal/assistant"
	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/session"
)

// errActionAborted marks a session action that ended without reaching its normal transition.
var errActionAborted = errors.New("action aborted unexpectedly")

// DownloadName is the file name offered for a modified dataset.
const DownloadName = "modified_excel_file.xlsx"

// DatasetHandler serves uploads, queries, modifications and charts.
type DatasetHandler struct {
	sessions  *session.Manager
	assistant *assistant.Service
	logger    *zap.Logger
}

// NewDatasetHandler creates a dataset handler.
func NewDatasetHandler(sessions *session.Manager, svc *assistant.Service, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{sessions: sessions, assistant: svc, logger: logger}
}

// HandleUpload loads a multipart "file" (optionally a named "sheet"), cleans
// it and opens a session.
func (h *DatasetHandler) HandleUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return NewValidationError("file")
	}
	f, err := fh.Open()
	if err != nil {
		return NewBadRequestError("cannot open uploaded file", err)
	}
	defer f.Close()

	original, err := dataset.Load(fh.Filename, f, dataset.LoadOptions{Sheet: c.FormValue("sheet")})
	if err != nil {
		return err
	}
	cleaned := dataset.Clean(original)
	s, err := h.sessions.Create(fh.Filename, original, cleaned)
	if err != nil {
		return err
	}
	h.logger.Info("dataset uploaded",
		zap.String("session", s.ID),
		zap.String("file", fh.Filename),
		zap.Int("rows", original.NumRows()),
		zap.Int("cleaned_rows", cleaned.NumRows()),
	)
	return c.JSON(http.StatusCreated, newDatasetResponse(s, defaultPreviewRows))
}

// HandleGet returns file information and a cleaned preview. ?limit= sets the
// preview size (0 for all rows); ?format=msgpack switches the encoding.
func (h *DatasetHandler) HandleGet(c echo.Context) error {
	limit := defaultPreviewRows
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return NewValidationError("limit")
		}
		limit = n
	}
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return datasetLookupError(err, c.Param("id"))
	}
	resp := newDatasetResponse(s, limit)
	switch strings.ToLower(c.QueryParam("format")) {
	case "", "json":
		return c.JSON(http.StatusOK, resp)
	case "msgpack":
		data, err := msgpack.Marshal(resp)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(http.StatusOK, "application/msgpack", data)
	default:
		return NewValidationError("format")
	}
}

// HandleProfile returns per-column statistics of the cleaned dataset.
func (h *DatasetHandler) HandleProfile(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return datasetLookupError(err, c.Param("id"))
	}
	return c.JSON(http.StatusOK, analysis.Profile(s.Cleaned, analysis.Options{}))
}

// HandleDelete discards a session.
func (h *DatasetHandler) HandleDelete(c echo.Context) error {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		return datasetLookupError(err, c.Param("id"))
	}
	return c.NoContent(http.StatusNoContent)
}

// datasetLookupError names the missing dataset in a 404.
func datasetLookupError(err error, id string) error {
	if errors.Is(err, session.ErrNotFound) {
		return NewNotFoundError("dataset", id)
	}
	return err
}

// HandleQuery sends a query to the oracle and records any proposed modification.
func (h *DatasetHandler) HandleQuery(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return NewValidationError("query")
	}
	id := c.Param("id")
	s, err := h.sessions.BeginQuery(id)
	if err != nil {
		return err
	}
	ended := false
	defer func() {
		if !ended {
			_, _ = h.sessions.EndQuery(id, query, nil, nil, errActionAborted)
		}
	}()
	a, qerr := h.assistant.Analyze(c.Request().Context(), s.Cleaned, query)
	var resp queryResponse
	if qerr == nil {
		resp.Response = a.Response
		if a.PlanErr != nil {
			resp.PlanError = a.PlanErr.Error()
		}
		mod, err := h.sessions.EndQuery(id, query, a.Plan, a.Steps, nil)
		ended = true
		if err != nil {
			return err
		}
		resp.Modification = newModification(mod, defaultPreviewRows)
		return c.JSON(http.StatusOK, resp)
	}
	_, err = h.sessions.EndQuery(id, query, nil, nil, qerr)
	ended = true
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	return qerr
}

// HandleApply executes a pending modification against a copy of the cleaned data.
func (h *DatasetHandler) HandleApply(c echo.Context) error {
	id, modID := c.Param("id"), c.Param("modId")
	s, mod, err := h.sessions.BeginApply(id, modID)
	if err != nil {
		return err
	}
	ended := false
	defer func() {
		if !ended {
			_, _ = h.sessions.EndApply(id, modID, nil, errActionAborted)
		}
	}()
	out, aerr := h.assistant.Apply(s.Cleaned, mod.Plan)
	applied, err := h.sessions.EndApply(id, modID, out, aerr)
	ended = true
	if aerr != nil {
		return aerr
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newModification(applied, defaultPreviewRows))
}

// HandleDownload returns the applied modification as a spreadsheet.
func (h *DatasetHandler) HandleDownload(c echo.Context) error {
	mod, err := h.sessions.Modification(c.Param("id"), c.Param("modId"))
	if err != nil {
		return err
	}
	if mod.Result == nil {
		return NewConflictError("modification has not been applied")
	}
	var buf bytes.Buffer
	if err := dataset.WriteXLSX(&buf, mod.Result); err != nil {
		return NewInternalError("failed to write spreadsheet", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+DownloadName+`"`)
	return c.Blob(http.StatusOK, dataset.XLSXContentType, buf.Bytes())
}

// HandleChart asks the oracle for a chart and returns it as HTML.
func (h *DatasetHandler) HandleChart(c echo.Context) error {
	var req chartRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if strings.TrimSpace(req.Description) == "" {
		return NewValidationError("description")
	}
	id := c.Param("id")
	s, err := h.sessions.BeginQuery(id)
	if err != nil {
		return err
	}
	ended := false
	defer func() {
		if !ended {
			_ = h.sessions.EndChart(id, errActionAborted)
		}
	}()
	ch, cerr := h.assistant.Visualize(c.Request().Context(), s.Cleaned, req.Description)
	var html []byte
	if cerr == nil {
		html, cerr = ch.HTML()
	}
	err = h.sessions.EndChart(id, cerr)
	ended = true
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	if cerr != nil {
		return cerr
	}
	c.Response().Header().Set("X-Chart-Type", string(ch.Spec.ChartType))
	return c.HTMLBlob(http.StatusOK, html)
}
