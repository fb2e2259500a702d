package models

import "errors"

// Sentinel errors for the core domain's validation and lookup paths.
var (
	// ErrProgramNotFound indicates a program id has no matching upstream program.
	ErrProgramNotFound = errors.New("program not found")

	// ErrDuplicateSchedule indicates a schedule already exists for a program id.
	ErrDuplicateSchedule = errors.New("schedule already exists for this program")

	// ErrScheduleNotFound indicates a schedule id has no queue entry.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrTaskNotFound indicates a program id has no active recording task.
	ErrTaskNotFound = errors.New("recording task not found")

	// ErrTaskAlreadyExists indicates try_create was called for a program
	// id the pool already has an entry for.
	ErrTaskAlreadyExists = errors.New("recording task already exists")

	// ErrUnknownPlanKind indicates a plan id tag that is neither none, word, nor series.
	ErrUnknownPlanKind = errors.New("unknown plan kind")

	// ErrInvalidDuration indicates a non-positive program duration.
	ErrInvalidDuration = errors.New("duration must be positive")

	// ErrWriterClosed indicates a write was attempted after shutdown.
	ErrWriterClosed = errors.New("writer is shut down")
)
