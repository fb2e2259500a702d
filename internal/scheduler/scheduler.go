package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mjkirchner/tvrecorder/internal/models"
)

// tickInterval is the fixed reconciliation cadence.
const tickInterval = 5 * time.Second

// prerollWindow is how far ahead of a schedule's start_at the Scheduler
// begins issuing CreateOrUpdate, accepting EPG revisions that arrive
// during pre-roll.
const prerollWindow = 10 * time.Minute

// commandBufferSize bounds the Scheduler-to-Pool channel; backpressure
// (a full channel) blocks the tick, which is acceptable since the
// consumer is fast.
const commandBufferSize = 100

// CommandKind tags which Pool operation a Command carries.
type CommandKind int

const (
	// CmdCreateOrUpdate unconditionally (re)inserts a task description.
	CmdCreateOrUpdate CommandKind = iota
	// CmdTryCreate inserts only if no task exists for the program id.
	CmdTryCreate
)

// Command is one reconciliation tick's instruction to the Recording Pool.
type Command struct {
	Kind CommandKind
	Desc models.RecordingTaskDescription
}

// DirResolver creates (if missing) and returns the save directory for a
// plan id, e.g. "./word_{id}/", "./series_{id}/", "./common/".
type DirResolver func(plan models.PlanID) (string, error)

// Scheduler reconciles the Schedule Queue against the Recording Pool
// every tickInterval, emitting Commands on a bounded channel.
type Scheduler struct {
	queue    *Queue
	resolve  DirResolver
	now      func() time.Time
	logger   *slog.Logger
	commands chan Command

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Scheduler over queue, using resolve to compute save
// directories for each Schedule's plan id.
func New(queue *Queue, resolve DirResolver, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		queue:    queue,
		resolve:  resolve,
		now:      time.Now,
		logger:   logger,
		commands: make(chan Command, commandBufferSize),
	}
}

// Commands returns the channel the Pool consumer reads from.
func (s *Scheduler) Commands() <-chan Command {
	return s.commands
}

// Start begins the reconciliation loop in a background goroutine. It
// returns immediately; call Stop to end the loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop cancels the reconciliation loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick implements the reconciliation contract: prune expired schedules,
// then for each remaining active schedule emit CreateOrUpdate during
// pre-roll or TryCreate during broadcast.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	s.queue.PruneExpired(now)

	s.queue.withLockedActive(func(sched models.Schedule) {
		dir, err := s.resolve(sched.PlanID)
		if err != nil {
			s.logger.Warn("skipping schedule, could not resolve save directory",
				slog.Int64("program_id", sched.Program.ID), slog.Any("error", err))
			return
		}

		desc := models.RecordingTaskDescription{
			Program:      sched.Program,
			SaveLocation: dir,
		}

		start := sched.Program.StartAt
		end := sched.Program.EndAt()

		var cmd Command
		switch {
		case isInRange(start.Add(-prerollWindow), start, now):
			cmd = Command{Kind: CmdCreateOrUpdate, Desc: desc}
		case isInRange(start, end, now):
			cmd = Command{Kind: CmdTryCreate, Desc: desc}
		default:
			return
		}

		select {
		case s.commands <- cmd:
		case <-ctx.Done():
		}
	})
}

// isInRange reports whether value falls in the half-open interval
// [left, right).
func isInRange(left, right, value time.Time) bool {
	if !left.Before(right) {
		panic(fmt.Sprintf("isInRange: left (%s) must be before right (%s)", left, right))
	}
	return !value.Before(left) && value.Before(right)
}
