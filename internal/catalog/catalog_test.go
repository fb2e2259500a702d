package catalog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjkirchner/tvrecorder/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{DSN: "file:" + t.Name() + "?mode=memory&cache=shared", LogLevel: "silent"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndListHistory(t *testing.T) {
	db := newTestDB(t)

	entry := RecordingHistoryEntry{
		ProgramID:    1,
		ProgramName:  "evening news",
		SaveLocation: "common",
		FinalPath:    "common/1_evening_news.m2ts",
		StartedAt:    time.Now().Add(-time.Hour),
		EndedAt:      time.Now(),
		Graceful:     true,
	}
	require.NoError(t, db.RecordHistory(t.Context(), entry))

	entries, err := db.History(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "evening news", entries[0].ProgramName)
}

func TestMirrorAndReadPrograms(t *testing.T) {
	db := newTestDB(t)

	name := "morning show"
	dur := int64(1800000)
	err := db.MirrorPrograms(t.Context(), []models.Program{
		{ID: 10, Name: &name, ServiceID: 1, StartAt: time.Now(), Duration: &dur},
	})
	require.NoError(t, err)

	programs, err := db.Programs(t.Context())
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.Equal(t, "morning show", programs[0].DisplayName())

	// Upsert again with a changed name; row count must stay 1.
	name2 := "morning show (updated)"
	err = db.MirrorPrograms(t.Context(), []models.Program{
		{ID: 10, Name: &name2, ServiceID: 1, StartAt: time.Now(), Duration: &dur},
	})
	require.NoError(t, err)

	programs, err = db.Programs(t.Context())
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.Equal(t, "morning show (updated)", programs[0].DisplayName())
}

func TestMirrorAndReadServices(t *testing.T) {
	db := newTestDB(t)

	err := db.MirrorServices(t.Context(), []json.RawMessage{
		json.RawMessage(`{"id":1,"name":"channel one"}`),
	})
	require.NoError(t, err)

	services, err := db.Services(t.Context())
	require.NoError(t, err)
	require.Len(t, services, 1)
}

func TestMirrorPrograms_EmptyIsNoOp(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.MirrorPrograms(t.Context(), nil))
	programs, err := db.Programs(t.Context())
	require.NoError(t, err)
	assert.Empty(t, programs)
}
