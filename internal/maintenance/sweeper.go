// Package maintenance runs periodic upkeep jobs against the recording
// output directory, scheduled with the same cron library used for the
// EPG refresh cadence.
package maintenance

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mjkirchner/tvrecorder/internal/storage"
)

// DefaultSweepCron runs the orphan sweep once an hour.
const DefaultSweepCron = "@every 1h0m0s"

// tmpSuffix is the in-progress file extension Writer uses before the
// Recording Task transitions into Rec and the file gets its final name.
const tmpSuffix = ".m2ts-tmp"

// Sweeper removes ".m2ts-tmp" files that have sat untouched for longer
// than staleAfter, the signature of a recording abandoned by a process
// crash rather than a normal state transition.
type Sweeper struct {
	sandbox    *storage.Sandbox
	schedule   cron.Schedule
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// New constructs a Sweeper over sandbox, rooted at the recording output
// directory. sweepCron is parsed with robfig/cron's standard parser,
// falling back to DefaultSweepCron on a parse error.
func New(sandbox *storage.Sandbox, sweepCron string, staleAfter time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if staleAfter <= 0 {
		staleAfter = 6 * time.Hour
	}
	sched, err := cron.ParseStandard(sweepCron)
	if err != nil {
		logger.Warn("invalid maintenance sweep schedule, using default",
			slog.String("expr", sweepCron), slog.Any("error", err))
		sched, _ = cron.ParseStandard(DefaultSweepCron)
	}
	return &Sweeper{
		sandbox:    sandbox,
		schedule:   sched,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled, sweeping on every scheduled tick.
func (s *Sweeper) Run(ctx context.Context) {
	next := s.schedule.Next(s.now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.Warn("maintenance sweep failed", slog.Any("error", err))
			}
			next = s.schedule.Next(s.now())
			timer.Reset(time.Until(next))
		}
	}
}

// SweepOnce walks the sandbox once, removing any ".m2ts-tmp" file whose
// modification time is older than staleAfter.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	cutoff := s.now().Add(-s.staleAfter)
	removed := 0

	err := s.sandbox.Walk(".", func(relPath string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if info.IsDir() || filepath.Ext(relPath) != tmpSuffix {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := s.sandbox.Remove(relPath); err != nil {
			s.logger.Warn("removing orphaned recording file failed",
				slog.String("path", relPath), slog.Any("error", err))
			return nil
		}
		s.logger.Info("removed orphaned recording file", slog.String("path", relPath))
		removed++
		return nil
	})
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Info("maintenance sweep complete", slog.Int("removed", removed))
	}
	return nil
}
