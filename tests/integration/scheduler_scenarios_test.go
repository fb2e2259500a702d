// Package integration exercises the concrete end-to-end scenarios
// against real, wired components rather than mocks: a live Scheduler
// reconciliation loop, a live Schedule Queue, and (for the HTTP
// scenario) a live admin server talking to a real tuner double over
// httptest.
package integration

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalhttp "github.com/mjkirchner/tvrecorder/internal/http"
	"github.com/mjkirchner/tvrecorder/internal/http/handlers"
	"github.com/mjkirchner/tvrecorder/internal/models"
	"github.com/mjkirchner/tvrecorder/internal/scheduler"
	"github.com/mjkirchner/tvrecorder/internal/storage"
	"github.com/mjkirchner/tvrecorder/internal/tuner"
)

// dirResolver always hands back the sandbox's "common" directory,
// standing in for a real plan-aware resolver in tests that don't care
// about save location.
func dirResolver(t *testing.T, sandbox *storage.Sandbox) scheduler.DirResolver {
	t.Helper()
	return func(models.PlanID) (string, error) {
		if err := sandbox.MkdirAll("common"); err != nil {
			return "", err
		}
		return "common", nil
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// waitForCommand reads from ch until one matching want arrives, or
// timeout elapses.
func waitForCommand(t *testing.T, ch <-chan scheduler.Command, programID int64, want scheduler.CommandKind, timeout time.Duration) (scheduler.Command, bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case cmd := <-ch:
			if cmd.Desc.Program.ID == programID && cmd.Kind == want {
				return cmd, true
			}
		case <-deadline:
			return scheduler.Command{}, false
		}
	}
}

// drainNoCommand asserts that no command for programID arrives on ch
// within window.
func drainNoCommand(t *testing.T, ch <-chan scheduler.Command, programID int64, window time.Duration) {
	t.Helper()
	deadline := time.After(window)
	for {
		select {
		case cmd := <-ch:
			if cmd.Desc.Program.ID == programID {
				t.Fatalf("unexpected command %v for program %d", cmd.Kind, programID)
			}
		case <-deadline:
			return
		}
	}
}

func int64Ptr(v int64) *int64 { return &v }

// TestEPGRevisionDuringPrerollShiftsEmissionTiming covers spec.md
// scenario 2: an EPG revision that arrives while a schedule is in
// pre-roll shifts when the Scheduler starts emitting CreateOrUpdate,
// rather than keeping the original start time's cadence.
func TestEPGRevisionDuringPrerollShiftsEmissionTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Second)
	defer cancel()

	queue := scheduler.NewQueue()
	sandbox, err := storage.NewSandbox(t.TempDir())
	require.NoError(t, err)

	const programID = 200
	now := time.Now()
	program := models.Program{ID: programID, StartAt: now.Add(time.Minute), Duration: int64Ptr(1800000)}
	require.NoError(t, queue.Add(models.Schedule{Program: program, PlanID: models.NonePlan(), IsActive: true}))

	sched := scheduler.New(queue, dirResolver(t, sandbox), discardLogger())
	sched.Start(ctx)
	defer sched.Stop()

	// The schedule starts in 1 minute, well inside the 10-minute
	// pre-roll window and well before broadcast, so the first several
	// ticks must emit CreateOrUpdate rather than TryCreate.
	_, ok := waitForCommand(t, sched.Commands(), programID, scheduler.CmdCreateOrUpdate, 12*time.Second)
	require.True(t, ok, "expected an initial CreateOrUpdate while start_at is near")

	// A live EPG revision pushes the program's start far into the
	// future, well outside the pre-roll window.
	queue.UpdateProgramTiming(programID, now.Add(20*time.Minute), int64Ptr(1800000))

	snap := queue.Snapshot()
	var revised models.Schedule
	for _, s := range snap {
		if s.Program.ID == programID {
			revised = s
		}
	}
	assert.True(t, revised.Program.StartAt.After(now.Add(19*time.Minute)), "revision should have taken effect in the queue")

	// No further CreateOrUpdate/TryCreate should fire for this program
	// until the new start_at re-enters the pre-roll window, which is
	// far beyond this test's patience — so across the next couple of
	// ticks we should observe silence.
	drainNoCommand(t, sched.Commands(), programID, 11*time.Second)
}

// TestDuplicateHTTPInsertIsRejected covers spec.md scenario 3: two
// PUT /new/sched requests for the same program id in succession leave
// exactly one Schedule Queue entry, the second request reporting the
// conflict rather than silently overwriting it.
func TestDuplicateHTTPInsertIsRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	const programID = 300
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.Program{ID: programID, StartAt: time.Now().Add(time.Hour)})
	}))
	defer upstream.Close()

	logger := discardLogger()
	tunerClient := tuner.New(upstream.URL, logger)
	queue := scheduler.NewQueue()

	srv := internalhttp.NewServer(internalhttp.DefaultServerConfig(), logger, "test")
	handlers.NewScheduleHandler(queue, tunerClient).Register(srv.API())

	admin := httptest.NewServer(srv.Router())
	defer admin.Close()

	url := admin.URL + "/new/sched?id=300"
	put := func() *http.Response {
		req, err := http.NewRequest(http.MethodPut, url, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp1 := put()
	defer resp1.Body.Close()
	assert.Equal(t, http.StatusOK, resp1.StatusCode, "first insert should succeed")

	resp2 := put()
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusConflict, resp2.StatusCode, "duplicate insert should be rejected")

	snap := queue.Snapshot()
	count := 0
	for _, s := range snap {
		if s.Program.ID == programID {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one queue entry should exist for the duplicated program")
}

// TestPremiereNeverArrivesIsPruned covers the queue-pruning half of
// spec.md scenario 5: once a schedule's broadcast window has fully
// elapsed, the next tick removes it from the queue regardless of
// whether its Recording Task ever matched the program in the EIT. The
// Task's own A -> Lost(graceful=false) timeout transition is already
// covered at the unit level; this test covers what the Scheduler does
// once that window has passed.
func TestPremiereNeverArrivesIsPruned(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	queue := scheduler.NewQueue()
	sandbox, err := storage.NewSandbox(t.TempDir())
	require.NoError(t, err)

	const programID = 500
	// start_at long enough in the past that start_at+1h (the
	// unknown-duration fallback) has already elapsed.
	program := models.Program{ID: programID, StartAt: time.Now().Add(-2 * time.Hour)}
	require.NoError(t, queue.Add(models.Schedule{Program: program, PlanID: models.NonePlan(), IsActive: true}))

	sched := scheduler.New(queue, dirResolver(t, sandbox), discardLogger())
	sched.Start(ctx)
	defer sched.Stop()

	require.Eventually(t, func() bool {
		for _, s := range queue.Snapshot() {
			if s.Program.ID == programID {
				return false
			}
		}
		return true
	}, 12*time.Second, 200*time.Millisecond, "expired schedule should be pruned by the next tick")
}

// TestCancelDuringPrerollStopsEmission covers spec.md scenario 6:
// cancelling a schedule while its Recording Task is still in pre-roll
// removes it from the queue and the Scheduler stops issuing commands
// for it on subsequent ticks.
func TestCancelDuringPrerollStopsEmission(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Second)
	defer cancel()

	queue := scheduler.NewQueue()
	sandbox, err := storage.NewSandbox(t.TempDir())
	require.NoError(t, err)

	const programID = 600
	program := models.Program{ID: programID, StartAt: time.Now().Add(time.Minute), Duration: int64Ptr(1800000)}
	require.NoError(t, queue.Add(models.Schedule{Program: program, PlanID: models.NonePlan(), IsActive: true}))

	sched := scheduler.New(queue, dirResolver(t, sandbox), discardLogger())
	sched.Start(ctx)
	defer sched.Stop()

	_, ok := waitForCommand(t, sched.Commands(), programID, scheduler.CmdCreateOrUpdate, 12*time.Second)
	require.True(t, ok, "expected pre-roll command before cancellation")

	require.True(t, queue.Remove(programID))

	drainNoCommand(t, sched.Commands(), programID, 11*time.Second)
}
