package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjkirchner/tvrecorder/internal/epgsync"
	"github.com/mjkirchner/tvrecorder/internal/models"
)

type fakeUpstream struct {
	programs []models.Program
	services []json.RawMessage
	fetchErr error
}

func (f *fakeUpstream) FetchPrograms(context.Context) ([]models.Program, error) {
	return f.programs, f.fetchErr
}

func (f *fakeUpstream) FetchServices(context.Context) ([]json.RawMessage, error) {
	return f.services, f.fetchErr
}

func (f *fakeUpstream) GetProgram(_ context.Context, id int64) (models.Program, error) {
	for _, p := range f.programs {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Program{}, models.ErrProgramNotFound
}

func (f *fakeUpstream) OpenProgramStream(context.Context, int64) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeUpstream) StreamEvents(context.Context) (<-chan epgsync.Event, <-chan error) {
	events := make(chan epgsync.Event)
	errs := make(chan error)
	close(events)
	close(errs)
	return events, errs
}

func TestMirroringTuner_FetchProgramsMirrorsToDB(t *testing.T) {
	db := newTestDB(t)
	name := "evening news"
	upstream := &fakeUpstream{programs: []models.Program{
		{ID: 1, Name: &name, ServiceID: 10, StartAt: time.Now()},
	}}
	mt := NewMirroringTuner(upstream, db, nil)

	got, err := mt.FetchPrograms(t.Context())
	require.NoError(t, err)
	assert.Len(t, got, 1)

	mirrored, err := db.Programs(t.Context())
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
	assert.Equal(t, "evening news", mirrored[0].DisplayName())
}

func TestMirroringTuner_FetchServicesMirrorsToDB(t *testing.T) {
	db := newTestDB(t)
	upstream := &fakeUpstream{services: []json.RawMessage{
		json.RawMessage(`{"id":5,"name":"channel five"}`),
	}}
	mt := NewMirroringTuner(upstream, db, nil)

	got, err := mt.FetchServices(t.Context())
	require.NoError(t, err)
	assert.Len(t, got, 1)

	mirrored, err := db.Services(t.Context())
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
}

func TestMirroringTuner_FetchProgramsUpstreamErrorNotMirrored(t *testing.T) {
	db := newTestDB(t)
	upstream := &fakeUpstream{fetchErr: errors.New("upstream down")}
	mt := NewMirroringTuner(upstream, db, nil)

	_, err := mt.FetchPrograms(t.Context())
	assert.Error(t, err)

	mirrored, err := db.Programs(t.Context())
	require.NoError(t, err)
	assert.Empty(t, mirrored)
}

func TestMirroringTuner_GetProgramPassesThrough(t *testing.T) {
	db := newTestDB(t)
	name := "morning show"
	upstream := &fakeUpstream{programs: []models.Program{
		{ID: 7, Name: &name, StartAt: time.Now()},
	}}
	mt := NewMirroringTuner(upstream, db, nil)

	p, err := mt.GetProgram(t.Context(), 7)
	require.NoError(t, err)
	assert.Equal(t, "morning show", p.DisplayName())
}
