package domain

import (
	"context"
	"time"
)

// MaxRestDaysPerWeek is the upper bound of the rest-day allowance
const MaxRestDaysPerWeek = 7

// StreakState is the streak part of a user's profile
type StreakState struct {
	UserID          string     `json:"user_id" bson:"_id"`
	CurrentStreak   int        `json:"current_streak" bson:"current_streak"`
	LongestStreak   int        `json:"longest_streak" bson:"longest_streak"`
	LastWorkoutDate *time.Time `json:"last_workout_date,omitempty" bson:"last_workout_date,omitempty"` // Calendar day, see CalendarDay
	RestDaysPerWeek int        `json:"rest_days_per_week" bson:"rest_days_per_week"`
	IsPaused        bool       `json:"is_paused" bson:"is_paused"`
	UpdatedAt       time.Time  `json:"updated_at" bson:"updated_at"`
}

// StreakStatus is the derived state machine position
type StreakStatus string

const (
	StreakInactive StreakStatus = "inactive"
	StreakActive   StreakStatus = "active"
	StreakPaused   StreakStatus = "paused"
)

// Status derives the state from the counters
func (s StreakState) Status() StreakStatus {
	if s.IsPaused {
		return StreakPaused
	}
	if s.CurrentStreak == 0 {
		return StreakInactive
	}
	return StreakActive
}

// StreakTransitionKind describes what a streak mutation did
type StreakTransitionKind string

const (
	TransitionStarted   StreakTransitionKind = "started"
	TransitionExtended  StreakTransitionKind = "extended"
	TransitionUnchanged StreakTransitionKind = "unchanged"
	TransitionReset     StreakTransitionKind = "reset"
	TransitionResumed   StreakTransitionKind = "resumed"
	TransitionExpired   StreakTransitionKind = "expired"
	TransitionPaused    StreakTransitionKind = "paused"
	TransitionUnpaused  StreakTransitionKind = "unpaused"
)

// StreakTransition is emitted for every streak mutation
type StreakTransition struct {
	UserID         string               `json:"user_id"`
	Kind           StreakTransitionKind `json:"kind"`
	PreviousStreak int                  `json:"previous_streak"`
	CurrentStreak  int                  `json:"current_streak"`
	LongestStreak  int                  `json:"longest_streak"`
	NewLongest     bool                 `json:"new_longest"`
	Date           time.Time            `json:"date"`
}

// Changed reports whether the transition should be surfaced
func (t StreakTransition) Changed() bool {
	return t.Kind != TransitionUnchanged
}

// ClampRestDays keeps the allowance within [0,7]
func ClampRestDays(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxRestDaysPerWeek {
		return MaxRestDaysPerWeek
	}
	return n
}

// CalendarDay maps t to midnight UTC of the calendar day t falls on in its own
// location. Two days produced this way are always a whole number of 24h apart,
// which keeps day arithmetic free of DST artifacts.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StreakRepository persists streak state
type StreakRepository interface {
	// Get returns the user's streak, nil if the user never had one
	Get(ctx context.Context, userID string) (*StreakState, error)
	Save(ctx context.Context, state *StreakState) error
	// ListExpirable returns unpaused streaks with a positive count
	ListExpirable(ctx context.Context) ([]*StreakState, error)
}
