package models

import "time"

// RecordingStateKind tags which state a Recording Task's state machine is in.
type RecordingStateKind int

const (
	// StateA is the initial state before the broadcast window opens.
	StateA RecordingStateKind = iota
	// StateB1 is entered once the scheduled start time has passed with the
	// EIT still not mentioning the program (a clock-driven timeout, not an
	// EIT match).
	StateB1
	// StateB2 is entered once the program appears in the EIT "following" table.
	StateB2
	// StateRec is the active recording state.
	StateRec
	// StateLost is a terminal state: the task gave up tracking the program.
	StateLost
)

func (k RecordingStateKind) String() string {
	switch k {
	case StateA:
		return "A"
	case StateB1:
		return "B1"
	case StateB2:
		return "B2"
	case StateRec:
		return "Rec"
	case StateLost:
		return "Lost"
	default:
		return "unknown"
	}
}

// RecordingState is the current state of a Recording Task's state machine,
// carrying the timestamp the state was entered and, for Lost, whether the
// transition into it was graceful (present-program-lost from B2/Rec) or
// abrupt (an EIT timeout path).
type RecordingState struct {
	Kind     RecordingStateKind
	Since    time.Time
	Graceful bool // only meaningful when Kind == StateLost
}

// NewState constructs a non-Lost state entered at the given time.
func NewState(kind RecordingStateKind, since time.Time) RecordingState {
	return RecordingState{Kind: kind, Since: since}
}

// LostState constructs a Lost state, recording whether the transition was graceful.
func LostState(since time.Time, graceful bool) RecordingState {
	return RecordingState{Kind: StateLost, Since: since, Graceful: graceful}
}

// IsRecording reports whether bytes are currently being written to the
// final (non -tmp) output file.
func (s RecordingState) IsRecording() bool {
	return s.Kind == StateRec
}

// IsTerminal reports whether the task has given up and should be retired
// from the pool.
func (s RecordingState) IsTerminal() bool {
	return s.Kind == StateLost
}
