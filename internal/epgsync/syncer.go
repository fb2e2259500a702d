package epgsync

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mjkirchner/tvrecorder/internal/models"
	"github.com/mjkirchner/tvrecorder/internal/scheduler"
)

// DefaultRefreshCron is the periodic refresh cadence: every 600 seconds,
// expressed as a cron "@every" descriptor so operators can override it
// via configuration with any robfig/cron schedule expression.
const DefaultRefreshCron = "@every 600s"

// Syncer races a periodic full-catalog refresh against the upstream's
// NDJSON event stream. Both are expected to be long-lived; whichever
// terminates first ends the component.
type Syncer struct {
	tuner   TunerClient
	index   SearchIndex
	queue   *scheduler.Queue
	refresh cron.Schedule
	logger  *slog.Logger
}

// New constructs a Syncer. refreshCron is parsed with robfig/cron's
// standard parser (accepting "@every <duration>" descriptors); an
// unparsable expression falls back to DefaultRefreshCron.
func New(tuner TunerClient, index SearchIndex, queue *scheduler.Queue, refreshCron string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := cron.ParseStandard(refreshCron)
	if err != nil {
		logger.Warn("invalid epg refresh schedule, using default",
			slog.String("expr", refreshCron), slog.Any("error", err))
		sched = cron.Every(600 * time.Second)
	}
	return &Syncer{tuner: tuner, index: index, queue: queue, refresh: sched, logger: logger}
}

// Run blocks until ctx is cancelled or either sub-flow terminates.
func (s *Syncer) Run(ctx context.Context) error {
	done := make(chan error, 2)

	go func() { done <- s.runPeriodic(ctx) }()
	go func() { done <- s.runEvents(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (s *Syncer) runPeriodic(ctx context.Context) error {
	if err := s.index.CreateIndex(ctx, ProgramsIndexName, "id"); err != nil {
		s.logger.Warn("creating programs index failed, it may already exist", slog.Any("error", err))
	}
	if err := s.index.CreateIndex(ctx, ServicesIndexName, "id"); err != nil {
		s.logger.Warn("creating services index failed, it may already exist", slog.Any("error", err))
	}

	now := time.Now()
	for {
		next := s.refresh.Next(now)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case now = <-timer.C:
		}

		if err := s.refreshOnce(ctx); err != nil {
			s.logger.Warn("periodic epg refresh failed", slog.Any("error", err))
		}
	}
}

func (s *Syncer) refreshOnce(ctx context.Context) error {
	programs, err := s.tuner.FetchPrograms(ctx)
	if err != nil {
		return err
	}
	if err := UpsertPrograms(ctx, s.index, programs); err != nil {
		return err
	}

	services, err := s.tuner.FetchServices(ctx)
	if err != nil {
		return err
	}
	return UpsertServices(ctx, s.index, services)
}

func (s *Syncer) runEvents(ctx context.Context) error {
	for {
		events, errs := s.tuner.StreamEvents(ctx)

		if err := s.consumeEvents(ctx, events, errs); err != nil {
			s.logger.Warn("epg event stream disconnected, reconnecting", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// consumeEvents drains one connection's worth of events until it ends
// (io.EOF-equivalent: events channel closes) or a parse error breaks the
// inner loop, per the reconnect-after-log-line contract.
func (s *Syncer) consumeEvents(ctx context.Context, events <-chan Event, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Syncer) handleEvent(ctx context.Context, ev Event) {
	switch ev.Resource {
	case ResourceProgram:
		s.handleProgramEvent(ctx, ev.Data)
	case ResourceService:
		if err := UpsertServices(ctx, s.index, []json.RawMessage{ev.Data}); err != nil {
			s.logger.Warn("upserting service event failed", slog.Any("error", err))
		}
	case ResourceTuner:
		s.logger.Info("tuner event observed", slog.String("data", string(ev.Data)))
	default:
		s.logger.Warn("unrecognised event resource", slog.String("resource", string(ev.Resource)))
	}
}

func (s *Syncer) handleProgramEvent(ctx context.Context, data json.RawMessage) {
	var partial models.Program
	if err := json.Unmarshal(data, &partial); err != nil {
		s.logger.Warn("malformed program event", slog.Any("error", err))
		return
	}

	full, err := s.tuner.GetProgram(ctx, partial.ID)
	if err != nil {
		s.logger.Warn("fetching full program after event failed",
			slog.Int64("program_id", partial.ID), slog.Any("error", err))
		full = partial
	}

	if err := UpsertPrograms(ctx, s.index, []models.Program{full}); err != nil {
		s.logger.Warn("upserting program event failed", slog.Any("error", err))
	}

	s.queue.UpdateProgramTiming(full.ID, full.StartAt, full.Duration)
}
