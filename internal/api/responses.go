package api

import (
	"github.com/KaramelBytes/sheetask/internal/dataset"
	"github.com/KaramelBytes/sheetask/internal/session"
	"github.com/KaramelBytes/sheetask/internal/transform"
)

const defaultPreviewRows = 10

type previewResponse struct {
	Columns   []string   `json:"columns" msgpack:"columns"`
	Kinds     []string   `json:"kinds" msgpack:"kinds"`
	Rows      [][]string `json:"rows" msgpack:"rows"`
	TotalRows int        `json:"total_rows" msgpack:"total_rows"`
	Text      string     `json:"text" msgpack:"text"`
}

func newPreview(ds *dataset.Dataset, limit int) previewResponse {
	head := ds.Head(limit)
	kinds := ds.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return previewResponse{
		Columns:   head.Columns,
		Kinds:     names,
		Rows:      head.Records(),
		TotalRows: ds.NumRows(),
		Text:      head.String(),
	}
}

type modificationResponse struct {
	ID         string                `json:"id" msgpack:"id"`
	Query      string                `json:"query" msgpack:"query"`
	Steps      []string              `json:"steps" msgpack:"steps"`
	Operations []transform.Operation `json:"operations" msgpack:"-"`
	Applied    bool                  `json:"applied" msgpack:"applied"`
	Result     *previewResponse      `json:"result,omitempty" msgpack:"result,omitempty"`
}

func newModification(m *session.Modification, limit int) *modificationResponse {
	if m == nil {
		return nil
	}
	out := &modificationResponse{ID: m.ID, Query: m.Query, Steps: m.Steps, Applied: m.Result != nil}
	if m.Plan != nil {
		out.Operations = m.Plan.Operations
	}
	if m.Result != nil {
		p := newPreview(m.Result, limit)
		out.Result = &p
	}
	return out
}

type datasetResponse struct {
	ID       string                `json:"id" msgpack:"id"`
	FileName string                `json:"file_name" msgpack:"file_name"`
	State    session.State         `json:"state" msgpack:"state"`
	Error    string                `json:"error,omitempty" msgpack:"error,omitempty"`
	Stats    dataset.Stats         `json:"stats" msgpack:"stats"`
	Preview  previewResponse       `json:"preview" msgpack:"preview"`
	Pending  *modificationResponse `json:"pending,omitempty" msgpack:"pending,omitempty"`
	Applied  *modificationResponse `json:"applied,omitempty" msgpack:"applied,omitempty"`
}

func newDatasetResponse(s session.Session, limit int) datasetResponse {
	return datasetResponse{
		ID:       s.ID,
		FileName: s.FileName,
		State:    s.State,
		Error:    s.LastError,
		Stats:    dataset.CleanStats(s.Original, s.Cleaned),
		Preview:  newPreview(s.Cleaned, limit),
		Pending:  newModification(s.Pending, limit),
		Applied:  newModification(s.Applied, limit),
	}
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Response     string                `json:"response"`
	Modification *modificationResponse `json:"modification,omitempty"`
	PlanError    string                `json:"plan_error,omitempty"`
}

type chartRequest struct {
	Description string `json:"description"`
}
