package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mjkirchner/tvrecorder/internal/catalog"
	"github.com/mjkirchner/tvrecorder/internal/models"
	"github.com/mjkirchner/tvrecorder/internal/tuner"
)

// ProgramsHandler serves the upstream program catalog, falling back to
// the local SQLite mirror when the upstream tuner cannot be reached.
type ProgramsHandler struct {
	tuner   *tuner.Client
	catalog *catalog.DB
	logger  *slog.Logger
}

// NewProgramsHandler constructs a ProgramsHandler.
func NewProgramsHandler(tuner *tuner.Client, catalog *catalog.DB, logger *slog.Logger) *ProgramsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgramsHandler{tuner: tuner, catalog: catalog, logger: logger}
}

// Register registers the programs route with the API.
func (h *ProgramsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listPrograms",
		Method:      "GET",
		Path:        "/programs",
		Summary:     "List the upstream program catalog",
		Description: "Forwards to the upstream tuner; falls back to the local catalog mirror when the tuner is unreachable",
		Tags:        []string{"Catalog"},
	}, h.List)
}

// ListProgramsInput is the input for listing programs.
type ListProgramsInput struct{}

// ListProgramsOutput is the output for listing programs.
type ListProgramsOutput struct {
	Body struct {
		Programs  []models.Program `json:"programs"`
		FromCache bool             `json:"from_cache"`
	}
}

// List forwards to the upstream tuner and falls back to the local
// catalog mirror on failure.
func (h *ProgramsHandler) List(ctx context.Context, _ *ListProgramsInput) (*ListProgramsOutput, error) {
	resp := &ListProgramsOutput{}

	programs, err := h.tuner.FetchPrograms(ctx)
	if err == nil {
		resp.Body.Programs = programs
		return resp, nil
	}

	h.logger.Warn("upstream tuner unreachable, serving catalog mirror", slog.Any("error", err))

	programs, mirrorErr := h.catalog.Programs(ctx)
	if mirrorErr != nil {
		return nil, huma.Error503ServiceUnavailable("upstream tuner unreachable and catalog mirror unavailable", err)
	}
	resp.Body.Programs = programs
	resp.Body.FromCache = true
	return resp, nil
}
