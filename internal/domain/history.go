package domain

import (
	"context"
	"time"
)

// HistoryExercise is one exercise within a stored workout
type HistoryExercise struct {
	Name        string       `json:"name" bson:"name"`
	MuscleGroup string       `json:"muscle_group,omitempty" bson:"muscle_group,omitempty"`
	Sets        []WorkoutSet `json:"sets" bson:"sets"`
}

// HistoryWorkout is a finished workout as kept for replay.
// Exercises is ordered so replay visits them the same way every time.
type HistoryWorkout struct {
	ID         string            `json:"id" bson:"_id,omitempty"` // Workout ID
	UserID     string            `json:"user_id" bson:"user_id"`
	Date       time.Time         `json:"date" bson:"date"`
	Bodyweight float64           `json:"bodyweight" bson:"bodyweight"` // User bodyweight at the time, for bodyweight exercises
	Exercises  []HistoryExercise `json:"exercises" bson:"exercises"`
	CreatedAt  time.Time         `json:"created_at" bson:"created_at"`
}

// Validate reports whether the workout can be replayed
func (w *HistoryWorkout) Validate() error {
	if w.ID == "" {
		return ErrInvalidHistoryEntry
	}
	if w.Date.IsZero() {
		return ErrInvalidHistoryEntry
	}
	for _, ex := range w.Exercises {
		if NormalizeExerciseName(ex.Name) == "" {
			return ErrInvalidHistoryEntry
		}
	}
	return nil
}

// HistoryCursor iterates a user's workout history in ascending date order.
// Decode reports per-entry failures, which callers may skip; Err reports a
// failure of the underlying source.
type HistoryCursor interface {
	Next(ctx context.Context) bool
	Decode() (*HistoryWorkout, error)
	Err() error
	Close(ctx context.Context) error
}

// WorkoutHistoryRepository stores finished workouts
type WorkoutHistoryRepository interface {
	Append(ctx context.Context, workout *HistoryWorkout) error
	// Exists reports whether a workout with this ID was already stored
	Exists(ctx context.Context, workoutID string) (bool, error)
	// Cursor iterates the user's workouts ordered by date, oldest first
	Cursor(ctx context.Context, userID string) (HistoryCursor, error)
	// ListUserIDs returns every user that has history
	ListUserIDs(ctx context.Context) ([]string, error)
}

// RebuildResult summarizes a full recalculation
type RebuildResult struct {
	Workouts int           `json:"workouts"` // Entries read from the history
	Applied  int           `json:"applied"`  // Entries replayed
	Skipped  int           `json:"skipped"`  // Entries that could not be decoded or validated
	Events   int           `json:"events"`   // Record events raised during replay
	Records  int           `json:"records"`  // Exercise records after the rebuild
	Duration time.Duration `json:"duration"`
}
