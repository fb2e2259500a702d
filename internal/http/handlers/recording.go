package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mjkirchner/tvrecorder/internal/models"
	"github.com/mjkirchner/tvrecorder/internal/recording"
)

// RecordingHandler exposes the Recording Pool's in-flight task list over
// HTTP.
type RecordingHandler struct {
	pool *recording.Pool
}

// NewRecordingHandler constructs a RecordingHandler over pool.
func NewRecordingHandler(pool *recording.Pool) *RecordingHandler {
	return &RecordingHandler{pool: pool}
}

// Register registers the recording routes with the API.
func (h *RecordingHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listRecordings",
		Method:      "GET",
		Path:        "/q/recording",
		Summary:     "List in-flight recording tasks",
		Description: "Returns every Recording Task Description currently held by the Recording Pool",
		Tags:        []string{"Recordings"},
	}, h.List)
}

// ListRecordingsInput is the input for listing recording tasks.
type ListRecordingsInput struct{}

// ListRecordingsOutput is the output for listing recording tasks.
type ListRecordingsOutput struct {
	Body struct {
		Recordings []models.RecordingTaskDescription `json:"recordings"`
	}
}

// List returns every in-flight Recording Task Description.
func (h *RecordingHandler) List(_ context.Context, _ *ListRecordingsInput) (*ListRecordingsOutput, error) {
	resp := &ListRecordingsOutput{}
	resp.Body.Recordings = h.pool.Iter()
	return resp, nil
}
