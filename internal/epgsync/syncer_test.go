package epgsync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjkirchner/tvrecorder/internal/models"
	"github.com/mjkirchner/tvrecorder/internal/scheduler"
)

type fakeIndex struct {
	mu      sync.Mutex
	created []string
	upserts map[string][]json.RawMessage
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{upserts: make(map[string][]json.RawMessage)}
}

func (f *fakeIndex) CreateIndex(ctx context.Context, name, primaryKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	return nil
}

func (f *fakeIndex) AddOrUpdate(ctx context.Context, indexName, primaryKey string, docs []json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts[indexName] = append(f.upserts[indexName], docs...)
	return nil
}

type fakeTuner struct {
	programs []models.Program
	services []json.RawMessage
	events   chan Event
	errs     chan error
}

func (f *fakeTuner) FetchPrograms(ctx context.Context) ([]models.Program, error) { return f.programs, nil }
func (f *fakeTuner) FetchServices(ctx context.Context) ([]json.RawMessage, error) {
	return f.services, nil
}
func (f *fakeTuner) GetProgram(ctx context.Context, id int64) (models.Program, error) {
	for _, p := range f.programs {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Program{ID: id}, nil
}
func (f *fakeTuner) StreamEvents(ctx context.Context) (<-chan Event, <-chan error) {
	return f.events, f.errs
}

func TestUpsertPrograms(t *testing.T) {
	idx := newFakeIndex()
	progs := []models.Program{{ID: 1}, {ID: 2}}
	require.NoError(t, UpsertPrograms(context.Background(), idx, progs))
	assert.Len(t, idx.upserts[ProgramsIndexName], 2)
}

func TestSyncer_HandleProgramEvent_UpdatesQueueTiming(t *testing.T) {
	q := scheduler.NewQueue()
	start := time.Date(2026, 7, 29, 20, 0, 0, 0, time.UTC)
	require.NoError(t, q.Add(models.Schedule{Program: models.Program{ID: 5, StartAt: start}}))

	newStart := start.Add(10 * time.Minute)
	dur := int64(1800000)
	tuner := &fakeTuner{
		programs: []models.Program{{ID: 5, StartAt: newStart, Duration: &dur}},
		events:   make(chan Event),
		errs:     make(chan error),
	}
	idx := newFakeIndex()

	s := New(tuner, idx, q, DefaultRefreshCron, nil)

	data, err := json.Marshal(models.Program{ID: 5})
	require.NoError(t, err)
	s.handleProgramEvent(context.Background(), data)

	snap := q.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, newStart, snap[0].Program.StartAt)
}

func TestSyncer_HandleEvent_ServiceUpserts(t *testing.T) {
	idx := newFakeIndex()
	s := New(&fakeTuner{}, idx, scheduler.NewQueue(), DefaultRefreshCron, nil)

	s.handleEvent(context.Background(), Event{Resource: ResourceService, Data: json.RawMessage(`{"id":1}`)})

	assert.Len(t, idx.upserts[ServicesIndexName], 1)
}

func TestSyncer_ConsumeEvents_StopsOnChannelClose(t *testing.T) {
	idx := newFakeIndex()
	s := New(&fakeTuner{}, idx, scheduler.NewQueue(), DefaultRefreshCron, nil)

	events := make(chan Event)
	errs := make(chan error)
	close(events)

	err := s.consumeEvents(context.Background(), events, errs)
	assert.NoError(t, err)
}
