package domain

import "errors"

// Common errors
var (
	ErrNotFound  = errors.New("record not found")
	ErrForbidden = errors.New("access forbidden: you don't own this resource")

	// ErrStorage wraps durable write/read failures so callers can tell them
	// apart from "no record improvement"
	ErrStorage = errors.New("progress storage failure")

	// ErrRecordConflict means the stored record changed since it was read
	ErrRecordConflict = errors.New("exercise record changed concurrently")

	// History replay
	ErrInvalidHistoryEntry = errors.New("invalid history entry")
	ErrHistoryUnreadable   = errors.New("workout history unreadable")
	ErrDuplicateWorkout    = errors.New("workout already recorded")
	ErrRebuildInProgress   = errors.New("records rebuild already running")

	// Request validation
	ErrInvalidDate     = errors.New("invalid date")
	ErrMissingExercise = errors.New("exercise name is required")
)
