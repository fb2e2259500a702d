// Package epgsync keeps an external search index of programs and
// services in sync with the upstream tuner's EPG, and propagates live
// program revisions into the Schedule Queue.
package epgsync

import (
	"context"
	"encoding/json"

	"github.com/mjkirchner/tvrecorder/internal/models"
)

// EventResource tags which upstream resource an Event describes.
type EventResource string

const (
	ResourceProgram EventResource = "program"
	ResourceService EventResource = "service"
	ResourceTuner   EventResource = "tuner"
)

// Event is one line of the upstream's NDJSON event feed.
type Event struct {
	Resource EventResource   `json:"resource"`
	Data     json.RawMessage `json:"data"`
}

// TunerClient is the subset of the upstream tuner HTTP API the
// Synchroniser needs: program/service catalogs, a single-program lookup
// (used to re-fetch full detail after an event notification), and the
// NDJSON event stream.
type TunerClient interface {
	FetchPrograms(ctx context.Context) ([]models.Program, error)
	FetchServices(ctx context.Context) ([]json.RawMessage, error)
	GetProgram(ctx context.Context, id int64) (models.Program, error)
	StreamEvents(ctx context.Context) (<-chan Event, <-chan error)
}
