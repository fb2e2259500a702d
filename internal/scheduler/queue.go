// Package scheduler implements the Schedule Queue and the 5-second
// reconciliation loop that turns active schedules into Recording Pool
// commands.
package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mjkirchner/tvrecorder/internal/models"
)

// Queue is the shared, mutex-guarded set of Schedules. It enforces one
// invariant on every mutation: no two Schedules share a program id.
type Queue struct {
	mu   sync.Mutex
	byID map[int64]models.Schedule
}

// NewQueue constructs an empty Queue.
func NewQueue() *Queue {
	return &Queue{byID: make(map[int64]models.Schedule)}
}

// Add inserts sched, returning ErrDuplicateSchedule if its program id is
// already present.
func (q *Queue) Add(sched models.Schedule) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.byID[sched.Program.ID]; exists {
		return models.ErrDuplicateSchedule
	}
	q.byID[sched.Program.ID] = sched
	return nil
}

// Remove deletes the Schedule for programID, if any. It reports whether a
// Schedule was actually removed.
func (q *Queue) Remove(programID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.byID[programID]; !exists {
		return false
	}
	delete(q.byID, programID)
	return true
}

// Snapshot returns a copy of all current Schedules, for the HTTP surface.
func (q *Queue) Snapshot() []models.Schedule {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.Schedule, 0, len(q.byID))
	for _, s := range q.byID {
		out = append(out, s)
	}
	return out
}

// PruneExpired drops every Schedule whose end time (start_at+duration,
// or start_at+1h when duration is unknown) is in the past relative to
// now.
func (q *Queue) PruneExpired(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, s := range q.byID {
		if s.Program.EndAt().Before(now) {
			delete(q.byID, id)
		}
	}
}

// UpdateProgramTiming applies a live EPG revision: for the Schedule
// matching programID, if one exists, overwrite its start_at and
// duration in place.
func (q *Queue) UpdateProgramTiming(programID int64, startAt time.Time, duration *int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, exists := q.byID[programID]
	if !exists {
		return
	}
	s.Program.StartAt = startAt
	s.Program.Duration = duration
	q.byID[programID] = s
}

// withLockedActive runs fn once per currently-active Schedule, holding
// the Queue lock for the duration — used by the Scheduler tick, whose
// only awaits while holding the lock are the bounded command send.
func (q *Queue) withLockedActive(fn func(models.Schedule)) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, s := range q.byID {
		if s.IsActive {
			fn(s)
		}
	}
}

// Persist writes the Queue's contents to path as a JSON array of
// Schedule, mirroring q_schedules.json, written on Scheduler shutdown.
func (q *Queue) Persist(path string) error {
	q.mu.Lock()
	out := make([]models.Schedule, 0, len(q.byID))
	for _, s := range q.byID {
		out = append(out, s)
	}
	q.mu.Unlock()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling schedule queue: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Load reads a previously persisted q_schedules.json into a fresh Queue.
// A missing file yields an empty Queue, not an error — first run has
// nothing to load.
func Load(path string) (*Queue, error) {
	q := NewQueue()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var schedules []models.Schedule
	if err := json.Unmarshal(data, &schedules); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, s := range schedules {
		q.byID[s.Program.ID] = s
	}
	return q, nil
}
