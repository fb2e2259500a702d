// Package eit incrementally parses MPEG-TS Event Information Table data,
// reporting whether a target program id currently appears in the stream's
// "present" or "following" event, or neither.
package eit

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/asticode/go-astits"
)

// Result is the outcome of a Push call for the target program.
type Result int

const (
	// NotFound means the target program id was not seen in either table,
	// or the accumulated bytes could not be parsed as MPEG-TS.
	NotFound Result = iota
	// FoundInPresent means the target program id matches the
	// currently-running event on its service.
	FoundInPresent
	// FoundInFollowing means the target program id matches the
	// next-to-run event on its service.
	FoundInFollowing
)

func (r Result) String() string {
	switch r {
	case FoundInPresent:
		return "present"
	case FoundInFollowing:
		return "following"
	default:
		return "not_found"
	}
}

// bufferCap bounds the internal ring so a stalled or garbled feed cannot
// grow memory unbounded; the EIT table repeats often enough that 8 KiB of
// trailing bytes is sufficient to observe a cycle.
const bufferCap = 8 * 1024

// Parser holds the accumulated, not-yet-fully-parsed byte buffer across
// calls to Push. It is not safe for concurrent use; each Recording Task
// owns exactly one Parser.
type Parser struct {
	buf    bytes.Buffer
	logger *slog.Logger
}

// New constructs an empty Parser.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Push appends chunk to the internal buffer, attempts to demux the
// accumulated bytes as MPEG-TS, and reports whether targetProgram appears
// as the present or following event on its service. Transport and parse
// errors are swallowed into NotFound: Push is a pure function of
// accumulated state plus the new chunk, never an error return, matching
// the tolerant, best-effort nature of live broadcast ingestion.
func (p *Parser) Push(chunk []byte, targetProgram int64) Result {
	p.buf.Write(chunk)
	if p.buf.Len() > bufferCap {
		overflow := p.buf.Len() - bufferCap
		p.buf.Next(overflow)
	}

	result := p.scan(targetProgram)
	if result == NotFound {
		p.logger.Debug("eit: target program not observed in buffer",
			slog.Int64("program_id", targetProgram),
			slog.Int("buffered_bytes", p.buf.Len()),
		)
	}
	return result
}

// scan demuxes a snapshot of the buffer and looks for targetProgram among
// the EIT present/following events carried by any service.
func (p *Parser) scan(targetProgram int64) (result Result) {
	defer func() {
		// A malformed partial TS packet must never crash the caller;
		// resynchronization happens naturally as more bytes accumulate.
		if r := recover(); r != nil {
			p.logger.Debug("eit: recovered from demux panic", slog.Any("panic", r))
			result = NotFound
		}
	}()

	reader := bytes.NewReader(p.buf.Bytes())
	dmx := astits.NewDemuxer(context.Background(), reader)

	for {
		data, err := dmx.NextData()
		if err != nil {
			if err == io.EOF || err == astits.ErrNoMorePackets {
				return NotFound
			}
			// Any other demux error on a partial buffer is expected and
			// discarded; more bytes may resolve it on the next Push.
			return NotFound
		}
		if data == nil || data.EIT == nil {
			continue
		}

		for _, event := range data.EIT.Events {
			if int64(event.ID) != targetProgram {
				continue
			}
			switch event.RunningStatus {
			case astits.RunningStatusRunning:
				return FoundInPresent
			case astits.RunningStatusStartsInAFewSeconds, astits.RunningStatusNotRunning, astits.RunningStatusPausing:
				return FoundInFollowing
			}
		}
	}
}

// Reset discards all accumulated state. Used when a Recording Task is
// retired and its Parser is about to be garbage collected, or reused for
// a fresh program id.
func (p *Parser) Reset() {
	p.buf.Reset()
}
