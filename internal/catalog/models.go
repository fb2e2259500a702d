package catalog

import (
	"encoding/json"
	"time"

	"github.com/mjkirchner/tvrecorder/internal/models"
)

// RecordingHistoryEntry is the durable record left behind once a
// Recording Task reaches its Lost terminal state — the history ledger
// the original design tracked only in logs.
type RecordingHistoryEntry struct {
	models.BaseModel
	ProgramID    int64  `gorm:"index;not null"`
	ProgramName  string `gorm:"not null"`
	SaveLocation string `gorm:"not null"`
	FinalPath    string `gorm:"not null"`
	StartedAt    time.Time
	EndedAt      time.Time
	Graceful     bool `gorm:"not null"`
}

// ProgramMirror is the local cache of one upstream Program, refreshed on
// every successful periodic sync, read by the HTTP surface only when
// the upstream tuner cannot be reached.
type ProgramMirror struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"index"`
	ServiceID int64  `gorm:"index"`
	NetworkID int64
	EventID   int64
	StartAt   time.Time `gorm:"index"`
	Duration  *int64
	UpdatedAt time.Time
}

// programMirrorFrom converts a Program into its mirror row.
func programMirrorFrom(p models.Program) ProgramMirror {
	return ProgramMirror{
		ID:        p.ID,
		Name:      p.DisplayName(),
		ServiceID: p.ServiceID,
		NetworkID: p.NetworkID,
		EventID:   p.EventID,
		StartAt:   p.StartAt,
		Duration:  p.Duration,
	}
}

// toProgram converts a mirror row back into a Program.
func (m ProgramMirror) toProgram() models.Program {
	name := m.Name
	return models.Program{
		ID:        m.ID,
		Name:      &name,
		ServiceID: m.ServiceID,
		NetworkID: m.NetworkID,
		EventID:   m.EventID,
		StartAt:   m.StartAt,
		Duration:  m.Duration,
	}
}

// ServiceMirror is the local cache of one opaque upstream service
// document, keyed by its own "id" field.
type ServiceMirror struct {
	ID        int64 `gorm:"primaryKey"`
	Data      json.RawMessage
	UpdatedAt time.Time
}
