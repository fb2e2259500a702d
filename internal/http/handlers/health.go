package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mjkirchner/tvrecorder/internal/version"
)

// HealthHandler reports liveness and build information.
type HealthHandler struct{}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/",
		Summary:     "Health and version",
		Description: "Returns liveness and build version information",
		Tags:        []string{"Health"},
	}, h.Get)
}

// GetHealthInput is the input for the health check.
type GetHealthInput struct{}

// GetHealthOutput is the output for the health check.
type GetHealthOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// Get reports the service as healthy along with its build version.
func (h *HealthHandler) Get(_ context.Context, _ *GetHealthInput) (*GetHealthOutput, error) {
	resp := &GetHealthOutput{}
	resp.Body.Status = "ok"
	resp.Body.Version = version.Short()
	return resp, nil
}
