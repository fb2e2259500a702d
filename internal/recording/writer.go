// Package recording implements the per-program recording state machine
// (Task), its output pipeline (Writer), and the keyed registry of
// in-flight tasks (Pool).
package recording

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/mjkirchner/tvrecorder/internal/storage"
)

// FilterArgs is the fixed argument vector used to invoke the stream
// conditioning filter subprocess. It is not configurable: every Writer
// that spawns a filter uses exactly this invocation.
var FilterArgs = []string{"-x", "18/38/39", "-n", "-1", "-a", "13", "-b", "5", "-c", "1", "-u", "1", "-d", "13"}

// killTimeout bounds how long Shutdown waits for the filter subprocess to
// exit gracefully before sending it an interrupt; SIGKILL follows 500ms
// after that if it still has not exited.
const killTimeout = 3 * time.Second

// Writer owns one output file and, when the filter binary is available,
// a subprocess piping Write calls through it before they reach disk. A
// Writer is single-use: once Shutdown is called it must be discarded.
type Writer struct {
	sandbox *storage.Sandbox
	logger  *slog.Logger

	relPath string
	file    *os.File

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cancel context.CancelFunc

	mu       sync.Mutex
	shutdown bool
}

// Config selects the filter binary and destination for a new Writer.
type Config struct {
	// FilterPath is the path to the conditioning filter binary. If empty
	// or unresolvable, NewWriter degrades to writing directly to the
	// destination file and logs a warning.
	FilterPath string
	// RelPath is the output file path, relative to the sandbox root.
	RelPath string
	Sandbox *storage.Sandbox
	Logger  *slog.Logger
}

// NewWriter opens the destination file for create-or-append and, if
// possible, starts the filter subprocess piping into it. Opening for
// append rather than truncating matters on respawn: a Task that re-enters
// a state whose final path a crashed predecessor had already been
// writing to must resume those bytes, not discard them. Subprocess spawn
// failure is not fatal: the Writer falls back to direct-to-file writing
// with a warning, per the tolerant degrade-on-subprocess-failure
// contract.
func NewWriter(ctx context.Context, cfg Config) (*Writer, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dir := filepath.Dir(cfg.RelPath)
	if dir != "." {
		if err := cfg.Sandbox.MkdirAll(dir); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	absPath, err := cfg.Sandbox.ResolvePath(cfg.RelPath)
	if err != nil {
		return nil, fmt.Errorf("resolving output path: %w", err)
	}

	file, err := os.OpenFile(absPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("opening output file: %w", err)
	}

	w := &Writer{
		sandbox: cfg.Sandbox,
		logger:  cfg.Logger,
		relPath: cfg.RelPath,
		file:    file,
	}

	if cfg.FilterPath == "" {
		cfg.Logger.Warn("no filter binary configured, writing stream directly to file",
			slog.String("path", cfg.RelPath))
		return w, nil
	}

	if err := w.startFilter(ctx, cfg.FilterPath); err != nil {
		cfg.Logger.Warn("failed to start filter subprocess, degrading to direct-to-file write",
			slog.String("path", cfg.RelPath),
			slog.Any("error", err))
	}

	return w, nil
}

func (w *Writer) startFilter(ctx context.Context, filterPath string) error {
	procCtx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(procCtx, filterPath, FilterArgs...)
	cmd.Stdout = w.file

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("opening filter stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("starting filter subprocess: %w", err)
	}

	w.cmd = cmd
	w.stdin = stdin
	w.cancel = cancel
	return nil
}

// Write sends bytes into the filter subprocess's stdin when one is
// running, or directly to the output file otherwise. Writes after
// Shutdown return ErrWriterClosed-shaped behavior via a plain error,
// matching the drop-safe contract: callers must stop calling Write once
// Shutdown has been invoked.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.shutdown {
		return 0, fmt.Errorf("write after shutdown")
	}
	if w.stdin != nil {
		return w.stdin.Write(p)
	}
	return w.file.Write(p)
}

// Shutdown flushes and closes the subprocess's stdin, waits for it to
// exit (interrupt after killTimeout, SIGKILL 500ms later), then closes the output
// file. It is safe to call more than once.
func (w *Writer) Shutdown() error {
	w.mu.Lock()
	if w.shutdown {
		w.mu.Unlock()
		return nil
	}
	w.shutdown = true
	w.mu.Unlock()

	if w.stdin != nil {
		_ = w.stdin.Close()
	}

	if w.cmd != nil {
		w.waitWithTimeout(killTimeout)
	}
	if w.cancel != nil {
		w.cancel()
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}
	return nil
}

func (w *Writer) waitWithTimeout(timeout time.Duration) {
	if w.cmd == nil || w.cmd.Process == nil {
		return
	}

	done := make(chan error, 1)
	go func() { done <- w.cmd.Wait() }()

	select {
	case <-done:
		return
	case <-time.After(timeout):
		w.logger.Warn("filter subprocess did not exit in time, terminating",
			slog.Int("pid", w.cmd.Process.Pid))
		_ = w.cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-done:
		return
	case <-time.After(500 * time.Millisecond):
		w.logger.Warn("filter subprocess did not respond to interrupt, killing",
			slog.Int("pid", w.cmd.Process.Pid))
		_ = w.cmd.Process.Kill()
		<-done
	}
}

// RelPath returns the sandbox-relative path this Writer is writing to.
func (w *Writer) RelPath() string {
	return w.relPath
}

// Rename atomically renames the underlying output file within the
// sandbox. Task does not call it: on a state change that alters the
// extension it opens a new Writer on the new path instead.
func (w *Writer) Rename(newRelPath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.sandbox.Rename(w.relPath, newRelPath); err != nil {
		return err
	}
	w.relPath = newRelPath
	return nil
}
