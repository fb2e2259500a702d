package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjkirchner/tvrecorder/internal/models"
)

func TestIsInRange(t *testing.T) {
	base := time.Date(2026, 7, 29, 20, 0, 0, 0, time.UTC)

	assert.True(t, isInRange(base, base.Add(time.Hour), base))
	assert.False(t, isInRange(base, base.Add(time.Hour), base.Add(time.Hour)))
	assert.False(t, isInRange(base, base.Add(time.Hour), base.Add(-time.Minute)))

	assert.Panics(t, func() { isInRange(base, base, base) })
}

func TestScheduler_Tick_EmitsCreateOrUpdateDuringPreroll(t *testing.T) {
	q := NewQueue()
	now := time.Date(2026, 7, 29, 20, 0, 0, 0, time.UTC)
	dur := int64(30 * 60 * 1000)

	require.NoError(t, q.Add(models.Schedule{
		Program:  models.Program{ID: 1, StartAt: now.Add(5 * time.Minute), Duration: &dur},
		PlanID:   models.NonePlan(),
		IsActive: true,
	}))

	s := New(q, func(models.PlanID) (string, error) { return "common", nil }, nil)
	s.now = func() time.Time { return now }

	s.tick(context.Background())

	select {
	case cmd := <-s.commands:
		assert.Equal(t, CmdCreateOrUpdate, cmd.Kind)
		assert.Equal(t, int64(1), cmd.Desc.Program.ID)
	default:
		t.Fatal("expected a command to be emitted")
	}
}

func TestScheduler_Tick_EmitsTryCreateDuringBroadcast(t *testing.T) {
	q := NewQueue()
	now := time.Date(2026, 7, 29, 20, 0, 0, 0, time.UTC)
	dur := int64(30 * 60 * 1000)

	require.NoError(t, q.Add(models.Schedule{
		Program:  models.Program{ID: 2, StartAt: now.Add(-5 * time.Minute), Duration: &dur},
		PlanID:   models.NonePlan(),
		IsActive: true,
	}))

	s := New(q, func(models.PlanID) (string, error) { return "common", nil }, nil)
	s.now = func() time.Time { return now }

	s.tick(context.Background())

	select {
	case cmd := <-s.commands:
		assert.Equal(t, CmdTryCreate, cmd.Kind)
	default:
		t.Fatal("expected a command to be emitted")
	}
}

func TestScheduler_Tick_EmitsNothingOutsideWindow(t *testing.T) {
	q := NewQueue()
	now := time.Date(2026, 7, 29, 20, 0, 0, 0, time.UTC)
	dur := int64(30 * 60 * 1000)

	require.NoError(t, q.Add(models.Schedule{
		Program:  models.Program{ID: 3, StartAt: now.Add(time.Hour), Duration: &dur},
		PlanID:   models.NonePlan(),
		IsActive: true,
	}))

	s := New(q, func(models.PlanID) (string, error) { return "common", nil }, nil)
	s.now = func() time.Time { return now }

	s.tick(context.Background())

	select {
	case cmd := <-s.commands:
		t.Fatalf("expected no command, got %+v", cmd)
	default:
	}
}

func TestScheduler_Tick_PrunesExpiredBeforeEmitting(t *testing.T) {
	q := NewQueue()
	now := time.Date(2026, 7, 29, 20, 0, 0, 0, time.UTC)
	dur := int64(30 * 60 * 1000)

	require.NoError(t, q.Add(models.Schedule{
		Program:  models.Program{ID: 4, StartAt: now.Add(-2 * time.Hour), Duration: &dur},
		PlanID:   models.NonePlan(),
		IsActive: true,
	}))

	s := New(q, func(models.PlanID) (string, error) { return "common", nil }, nil)
	s.now = func() time.Time { return now }

	s.tick(context.Background())
	assert.Empty(t, q.Snapshot())
}
