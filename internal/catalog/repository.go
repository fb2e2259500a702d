package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/mjkirchner/tvrecorder/internal/models"
)

// RecordHistory inserts a completed recording's ledger entry.
func (db *DB) RecordHistory(ctx context.Context, entry RecordingHistoryEntry) error {
	if err := db.DB.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("recording history entry: %w", err)
	}
	return nil
}

// History returns the most recent history entries, newest first,
// bounded by limit.
func (db *DB) History(ctx context.Context, limit int) ([]RecordingHistoryEntry, error) {
	var entries []RecordingHistoryEntry
	q := db.DB.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("listing recording history: %w", err)
	}
	return entries, nil
}

// MirrorPrograms upserts the given programs into the mirror, called
// after every successful upstream refresh.
func (db *DB) MirrorPrograms(ctx context.Context, programs []models.Program) error {
	if len(programs) == 0 {
		return nil
	}
	rows := make([]ProgramMirror, 0, len(programs))
	for _, p := range programs {
		rows = append(rows, programMirrorFrom(p))
	}

	if err := db.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "service_id", "network_id", "event_id", "start_at", "duration", "updated_at"}),
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("mirroring programs: %w", err)
	}
	return nil
}

// MirrorServices upserts the given opaque service documents into the
// mirror, keyed by their own "id" field.
func (db *DB) MirrorServices(ctx context.Context, services []json.RawMessage) error {
	if len(services) == 0 {
		return nil
	}
	rows := make([]ServiceMirror, 0, len(services))
	for _, s := range services {
		var keyed struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(s, &keyed); err != nil {
			return fmt.Errorf("reading service id: %w", err)
		}
		rows = append(rows, ServiceMirror{ID: keyed.ID, Data: s})
	}

	if err := db.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("mirroring services: %w", err)
	}
	return nil
}

// Programs returns the mirrored program catalog, for use when the
// upstream tuner cannot be reached.
func (db *DB) Programs(ctx context.Context) ([]models.Program, error) {
	var rows []ProgramMirror
	if err := db.DB.WithContext(ctx).Order("start_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing mirrored programs: %w", err)
	}
	out := make([]models.Program, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toProgram())
	}
	return out, nil
}

// Services returns the mirrored service catalog as opaque documents.
func (db *DB) Services(ctx context.Context) ([]json.RawMessage, error) {
	var rows []ServiceMirror
	if err := db.DB.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing mirrored services: %w", err)
	}
	out := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Data)
	}
	return out, nil
}
