package epgsync

import (
	"context"
	"encoding/json"

	"github.com/mjkirchner/tvrecorder/internal/models"
)

// ProgramsIndexName is the external search index the Synchroniser keeps
// current — the catalog of record for the HTTP surface's programs view.
const ProgramsIndexName = "_programs"

// ServicesIndexName is the external search index for the service catalog.
const ServicesIndexName = "_services"

// SearchIndex is the subset of the upstream search engine's API the
// Synchroniser uses: create-if-missing index management plus bulk
// add-or-update.
type SearchIndex interface {
	CreateIndex(ctx context.Context, name, primaryKey string) error
	AddOrUpdate(ctx context.Context, indexName, primaryKey string, docs []json.RawMessage) error
}

// UpsertPrograms bulk-upserts programs into ProgramsIndexName.
func UpsertPrograms(ctx context.Context, idx SearchIndex, programs []models.Program) error {
	docs := make([]json.RawMessage, 0, len(programs))
	for _, p := range programs {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		docs = append(docs, data)
	}
	return idx.AddOrUpdate(ctx, ProgramsIndexName, "id", docs)
}

// UpsertServices bulk-upserts opaque service documents into ServicesIndexName.
func UpsertServices(ctx context.Context, idx SearchIndex, services []json.RawMessage) error {
	return idx.AddOrUpdate(ctx, ServicesIndexName, "id", services)
}
