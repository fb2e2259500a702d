package catalog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/mjkirchner/tvrecorder/internal/epgsync"
	"github.com/mjkirchner/tvrecorder/internal/models"
)

// upstreamClient is the subset of tuner.Client that MirroringTuner wraps.
// Defined here, rather than imported, to avoid a tuner->catalog->tuner
// import cycle: tuner.Client already satisfies this.
type upstreamClient interface {
	FetchPrograms(ctx context.Context) ([]models.Program, error)
	FetchServices(ctx context.Context) ([]json.RawMessage, error)
	GetProgram(ctx context.Context, id int64) (models.Program, error)
	OpenProgramStream(ctx context.Context, id int64) (io.ReadCloser, error)
	StreamEvents(ctx context.Context) (<-chan epgsync.Event, <-chan error)
}

// MirroringTuner wraps an upstream tuner client, writing every fetched
// program/service catalog through to the local SQLite mirror before
// returning it. It satisfies epgsync.TunerClient and recording.StreamOpener
// unchanged, so the EPG Synchroniser's periodic refresh transparently
// keeps the mirror warm without the Synchroniser needing to know the
// mirror exists.
type MirroringTuner struct {
	upstream upstreamClient
	db       *DB
	logger   *slog.Logger
}

// NewMirroringTuner constructs a MirroringTuner over upstream, writing
// through to db.
func NewMirroringTuner(upstream upstreamClient, db *DB, logger *slog.Logger) *MirroringTuner {
	if logger == nil {
		logger = slog.Default()
	}
	return &MirroringTuner{upstream: upstream, db: db, logger: logger}
}

// FetchPrograms fetches from upstream, then mirrors the result. A mirror
// write failure is logged, not returned: the upstream result is still
// authoritative and usable by the caller.
func (m *MirroringTuner) FetchPrograms(ctx context.Context) ([]models.Program, error) {
	programs, err := m.upstream.FetchPrograms(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.db.MirrorPrograms(ctx, programs); err != nil {
		m.logger.Warn("mirroring programs failed", slog.Any("error", err))
	}
	return programs, nil
}

// FetchServices fetches from upstream, then mirrors the result.
func (m *MirroringTuner) FetchServices(ctx context.Context) ([]json.RawMessage, error) {
	services, err := m.upstream.FetchServices(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.db.MirrorServices(ctx, services); err != nil {
		m.logger.Warn("mirroring services failed", slog.Any("error", err))
	}
	return services, nil
}

// GetProgram passes through to upstream unmirrored: single-program
// lookups are driven by EPG events, which already refresh the mirror
// through FetchPrograms's next periodic pass.
func (m *MirroringTuner) GetProgram(ctx context.Context, id int64) (models.Program, error) {
	return m.upstream.GetProgram(ctx, id)
}

// OpenProgramStream passes through to upstream.
func (m *MirroringTuner) OpenProgramStream(ctx context.Context, id int64) (io.ReadCloser, error) {
	return m.upstream.OpenProgramStream(ctx, id)
}

// StreamEvents passes through to upstream.
func (m *MirroringTuner) StreamEvents(ctx context.Context) (<-chan epgsync.Event, <-chan error) {
	return m.upstream.StreamEvents(ctx)
}
