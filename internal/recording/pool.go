package recording

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mjkirchner/tvrecorder/internal/models"
	"github.com/mjkirchner/tvrecorder/internal/storage"
)

// StreamOpener opens the tuner's per-program MPEG-TS byte stream. The
// returned ReadCloser is owned by the caller and must be closed once the
// copy loop is done with it.
type StreamOpener func(ctx context.Context, programID int64) (io.ReadCloser, error)

type entry struct {
	desc   models.RecordingTaskDescription
	cancel chan struct{}
}

// Pool owns the set of in-flight Recording Tasks, keyed by program id.
// All mutating operations take the lock, decide, and release it before
// awaiting anything external; spawning a task is fire-and-forget.
type Pool struct {
	mu      sync.Mutex
	entries map[int64]*entry

	sandbox    *storage.Sandbox
	filterPath string
	openStream StreamOpener
	logger     *slog.Logger
}

// NewPool constructs an empty Pool.
func NewPool(sandbox *storage.Sandbox, filterPath string, opener StreamOpener, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		entries:    make(map[int64]*entry),
		sandbox:    sandbox,
		filterPath: filterPath,
		openStream: opener,
		logger:     logger,
	}
}

// CreateOrUpdate unconditionally inserts or overwrites the description
// keyed by desc.Program.ID. If no task is currently running for that id,
// a new one is spawned.
func (p *Pool) CreateOrUpdate(ctx context.Context, desc models.RecordingTaskDescription) {
	p.mu.Lock()
	e, exists := p.entries[desc.Program.ID]
	if exists {
		e.desc = desc
		p.mu.Unlock()
		return
	}
	e = &entry{desc: desc, cancel: make(chan struct{})}
	p.entries[desc.Program.ID] = e
	p.mu.Unlock()

	go p.run(ctx, desc.Program.ID, e)
}

// TryCreate inserts and spawns a task only if no description with this id
// already exists. No-op otherwise — during broadcast this must never
// overwrite a task's own EIT-driven state.
func (p *Pool) TryCreate(ctx context.Context, desc models.RecordingTaskDescription) {
	p.mu.Lock()
	if _, exists := p.entries[desc.Program.ID]; exists {
		p.mu.Unlock()
		return
	}
	e := &entry{desc: desc, cancel: make(chan struct{})}
	p.entries[desc.Program.ID] = e
	p.mu.Unlock()

	go p.run(ctx, desc.Program.ID, e)
}

// TryRemove fires the cancel-signal and removes the description and its
// handle, if present.
func (p *Pool) TryRemove(id int64) {
	p.mu.Lock()
	e, exists := p.entries[id]
	if exists {
		delete(p.entries, id)
	}
	p.mu.Unlock()

	if exists {
		close(e.cancel)
	}
}

// Iter returns a snapshot of all current task descriptions, for the HTTP
// surface's read view.
func (p *Pool) Iter() []models.RecordingTaskDescription {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.RecordingTaskDescription, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.desc)
	}
	return out
}

// At returns the task description for id, if one exists.
func (p *Pool) At(id int64) (models.RecordingTaskDescription, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, exists := p.entries[id]
	if !exists {
		return models.RecordingTaskDescription{}, false
	}
	return e.desc, true
}

// run is the body of the task spawned for one program id: open the
// tuner's byte stream, construct a Task, then race the cancel-signal
// against the stream-to-task copy loop. Whichever wins, shut down the
// Writer and exit, clearing the Pool entry.
func (p *Pool) run(ctx context.Context, id int64, e *entry) {
	defer p.clear(id, e)

	stream, err := p.openStream(ctx, id)
	if err != nil {
		p.logger.Warn("failed to open tuner stream for recording task",
			slog.Int64("program_id", id), slog.Any("error", err))
		return
	}
	defer stream.Close()

	task := NewTask(e.desc, p.sandbox, p.filterPath, p.logger)
	defer task.Shutdown()

	copyDone := make(chan error, 1)
	go func() {
		copyDone <- copyLoop(ctx, task, stream)
	}()

	select {
	case <-e.cancel:
	case err := <-copyDone:
		if err != nil {
			p.logger.Warn("recording task stream ended with error",
				slog.Int64("program_id", id), slog.Any("error", err))
		}
	}
}

// clear removes this task's entry from the pool, but only if it is still
// the same entry (it may already have been replaced by a newer
// CreateOrUpdate/TryCreate for the same id).
func (p *Pool) clear(id int64, e *entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.entries[id]; ok && cur == e {
		delete(p.entries, id)
	}
}

func copyLoop(ctx context.Context, task *Task, src io.Reader) error {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := src.Read(buf)
		if n > 0 {
			if werr := task.HandleChunk(ctx, buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// recordingDump is the on-disk shape of q_recording.json: a map from
// program id to its task description.
type recordingDump map[int64]models.RecordingTaskDescription

// Persist writes the current set of task descriptions to path as JSON,
// mirroring the optional best-effort persistence of q_recording.json —
// recordings themselves are not guaranteed recoverable across restarts,
// but their descriptions are.
func (p *Pool) Persist(path string) error {
	p.mu.Lock()
	dump := make(recordingDump, len(p.entries))
	for id, e := range p.entries {
		dump[id] = e.desc
	}
	p.mu.Unlock()

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling recording dump: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// LoadDescriptions reads a previously persisted q_recording.json. The
// entries it returns are descriptive only: loading them does not spawn
// tasks or resume tuner streams (see the resume-on-restart policy
// decision recorded for the Recording Pool). The next Scheduler tick is
// what actually respawns anything still within its broadcast window.
func LoadDescriptions(path string) ([]models.RecordingTaskDescription, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var dump recordingDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	out := make([]models.RecordingTaskDescription, 0, len(dump))
	for _, desc := range dump {
		out = append(out, desc)
	}
	return out, nil
}
