package recording

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/mjkirchner/tvrecorder/internal/models"
	"github.com/mjkirchner/tvrecorder/internal/storage"
	"github.com/mjkirchner/tvrecorder/pkg/eit"
)

// Premiere wait budgets, per the state machine's transition table: A gives
// up one hour after it was entered, B1 three hours after it was entered.
const (
	aPremiereTimeout  = time.Hour
	b1PremiereTimeout = 3 * time.Hour
)

// Clock abstracts wall-clock time so tests can drive the state machine
// deterministically.
type Clock func() time.Time

// Task bridges a tuner byte stream into a Writer, gated by the EIT-driven
// recording state machine. One Task exists per in-flight Recording Pool
// entry.
type Task struct {
	desc    models.RecordingTaskDescription
	sandbox *storage.Sandbox
	filter  string
	logger  *slog.Logger
	now     Clock

	parser *eit.Parser
	state  models.RecordingState
	writer *Writer
}

// NewTask constructs a Task in the initial state A(since=now). It does not
// open a Writer until the first chunk arrives.
func NewTask(desc models.RecordingTaskDescription, sandbox *storage.Sandbox, filterPath string, logger *slog.Logger) *Task {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	return &Task{
		desc:    desc,
		sandbox: sandbox,
		filter:  filterPath,
		logger:  logger,
		now:     now,
		parser:  eit.New(logger),
		state:   models.NewState(models.StateA, now()),
	}
}

// State returns the task's current RecordingState.
func (t *Task) State() models.RecordingState {
	return t.state
}

// relPath computes the sandbox-relative output path for the given state,
// per §4.3: only the extension changes, ".m2ts" while Rec, ".m2ts-tmp"
// otherwise.
func (t *Task) relPath(kind models.RecordingStateKind) string {
	ext := ".m2ts-tmp"
	if kind == models.StateRec {
		ext = ".m2ts"
	}
	name := fmt.Sprintf("%d_%s%s", t.desc.Program.ID, t.desc.Program.DisplayName(), ext)
	return filepath.Join(t.desc.SaveLocation, name)
}

// nextState computes the transition table's output for the current state
// given an EIT result and the clock. It is a pure function of (state,
// result, now); events not covered by the table are no-ops.
func nextState(state models.RecordingState, result eit.Result, program models.Program, now time.Time) models.RecordingState {
	switch state.Kind {
	case models.StateA:
		switch result {
		case eit.FoundInFollowing:
			return models.NewState(models.StateB2, now)
		case eit.FoundInPresent:
			return models.NewState(models.StateRec, now)
		default:
			if state.Since.Add(aPremiereTimeout).Before(now) {
				return models.LostState(now, false)
			}
			if !now.Before(program.StartAt) {
				return models.NewState(models.StateB1, now)
			}
			return state
		}
	case models.StateB1:
		switch result {
		case eit.FoundInFollowing:
			return models.NewState(models.StateB2, now)
		case eit.FoundInPresent:
			return models.NewState(models.StateRec, now)
		default:
			if state.Since.Add(b1PremiereTimeout).Before(now) {
				return models.LostState(now, false)
			}
			return state
		}
	case models.StateB2:
		switch result {
		case eit.FoundInFollowing:
			return state
		case eit.FoundInPresent:
			return models.NewState(models.StateRec, now)
		default:
			return models.LostState(now, true)
		}
	case models.StateRec:
		switch result {
		case eit.FoundInPresent:
			return state
		default:
			return models.LostState(now, true)
		}
	default:
		return state
	}
}

// HandleChunk implements the write loop contract of §4.3: feed the chunk
// to the EIT parser, compute the next state, swap the Writer if the state
// (and thus the file extension) changed, then write the chunk.
func (t *Task) HandleChunk(ctx context.Context, chunk []byte) error {
	if t.state.Kind == models.StateLost {
		return fmt.Errorf("task is in terminal state Lost")
	}

	result := t.parser.Push(chunk, t.desc.Program.ID)
	next := nextState(t.state, result, t.desc.Program, t.now())

	if next.Kind != t.state.Kind {
		if err := t.transition(ctx, next); err != nil {
			// File-system errors on the new Writer keep the task on the
			// old Writer rather than aborting.
			t.logger.Warn("recording task transition failed, staying on current writer",
				slog.Int64("program_id", t.desc.Program.ID),
				slog.String("from", t.state.Kind.String()),
				slog.String("to", next.Kind.String()),
				slog.Any("error", err))
		}
	}

	if t.state.Kind == models.StateLost {
		return nil
	}

	if t.writer == nil {
		if err := t.openWriter(ctx, t.state.Kind); err != nil {
			return fmt.Errorf("opening writer: %w", err)
		}
	}

	_, err := t.writer.Write(chunk)
	return err
}

func (t *Task) transition(ctx context.Context, next models.RecordingState) error {
	if next.Kind == models.StateLost {
		t.state = next
		if t.writer != nil {
			err := t.writer.Shutdown()
			t.writer = nil
			return err
		}
		return nil
	}

	oldWriter := t.writer
	if err := t.openWriter(ctx, next.Kind); err != nil {
		return err
	}
	if oldWriter != nil {
		if err := oldWriter.Shutdown(); err != nil {
			t.logger.Warn("error shutting down previous writer",
				slog.Int64("program_id", t.desc.Program.ID), slog.Any("error", err))
		}
	}
	t.state = next
	return nil
}

func (t *Task) openWriter(ctx context.Context, kind models.RecordingStateKind) error {
	w, err := NewWriter(ctx, Config{
		FilterPath: t.filter,
		RelPath:    t.relPath(kind),
		Sandbox:    t.sandbox,
		Logger:     t.logger,
	})
	if err != nil {
		return err
	}
	t.writer = w
	return nil
}

// Shutdown closes the underlying Writer, if any. Called when the Pool
// removes this task's entry (external cancel) or the tuner stream ends.
func (t *Task) Shutdown() error {
	if t.writer == nil {
		return nil
	}
	err := t.writer.Shutdown()
	t.writer = nil
	return err
}
