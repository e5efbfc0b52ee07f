package service

import (
	"math"
	"time"

	"github.com/mansoorceksport/ironlog/internal/domain"
)

// StreakEngine is the streak state machine. It holds no state of its own:
// every method takes the current StreakState and returns the next one plus
// the transition that led there.
//
//	Inactive (current = 0) --workout--> Active
//	Active --gap within allowance--> Active (+1)
//	Active --gap beyond allowance--> Active (reset to 1) on workout, Inactive on expiry check
//	Active/Inactive --pause--> Paused --workout--> Active (+1, any gap forgiven)
type StreakEngine struct{}

func NewStreakEngine() *StreakEngine {
	return &StreakEngine{}
}

// daysBetween counts calendar days from a to b
func daysBetween(a, b time.Time) int {
	hours := domain.CalendarDay(b).Sub(domain.CalendarDay(a)).Hours()
	return int(math.Round(hours / 24))
}

// RecordWorkout applies a finished workout on date
func (e *StreakEngine) RecordWorkout(state domain.StreakState, date time.Time) (domain.StreakState, domain.StreakTransition) {
	day := domain.CalendarDay(date)
	next := state

	if state.LastWorkoutDate == nil {
		next.CurrentStreak = 1
		next.LongestStreak = max(state.LongestStreak, 1)
		next.LastWorkoutDate = &day
		next.IsPaused = false
		return next, transition(state, next, domain.TransitionStarted, day)
	}

	last := domain.CalendarDay(*state.LastWorkoutDate)
	if last.Equal(day) {
		return state, transition(state, state, domain.TransitionUnchanged, day)
	}

	gapDays := daysBetween(last, day)
	if gapDays < 0 {
		// backfilled workout, the newer day already counted
		return state, transition(state, state, domain.TransitionUnchanged, day)
	}
	if gapDays == 0 {
		// different days rounding to zero: treat as the next day
		gapDays = 1
	}

	kind := domain.TransitionExtended
	switch {
	case state.IsPaused:
		next.CurrentStreak++
		next.IsPaused = false
		kind = domain.TransitionResumed
	case gapDays == 1:
		next.CurrentStreak++
	case gapDays-1 > state.RestDaysPerWeek:
		next.CurrentStreak = 1
		kind = domain.TransitionReset
	default:
		next.CurrentStreak++
	}

	next.LongestStreak = max(next.LongestStreak, next.CurrentStreak)
	next.LastWorkoutDate = &day
	return next, transition(state, next, kind, day)
}

// CheckExpiry zeroes a streak whose allowance ran out without any workout.
// Paused streaks never expire.
func (e *StreakEngine) CheckExpiry(state domain.StreakState, today time.Time) (domain.StreakState, domain.StreakTransition) {
	day := domain.CalendarDay(today)
	if state.IsPaused || state.LastWorkoutDate == nil || state.CurrentStreak == 0 {
		return state, transition(state, state, domain.TransitionUnchanged, day)
	}

	gapDays := daysBetween(*state.LastWorkoutDate, day)
	if gapDays-1 <= state.RestDaysPerWeek {
		return state, transition(state, state, domain.TransitionUnchanged, day)
	}

	next := state
	next.CurrentStreak = 0
	return next, transition(state, next, domain.TransitionExpired, day)
}

// SetPaused flips the pause flag and nothing else
func (e *StreakEngine) SetPaused(state domain.StreakState, paused bool, now time.Time) (domain.StreakState, domain.StreakTransition) {
	day := domain.CalendarDay(now)
	if state.IsPaused == paused {
		return state, transition(state, state, domain.TransitionUnchanged, day)
	}
	next := state
	next.IsPaused = paused
	kind := domain.TransitionUnpaused
	if paused {
		kind = domain.TransitionPaused
	}
	return next, transition(state, next, kind, day)
}

// SetRestDays changes the allowance, clamped to [0,7]
func (e *StreakEngine) SetRestDays(state domain.StreakState, restDays int) domain.StreakState {
	state.RestDaysPerWeek = domain.ClampRestDays(restDays)
	return state
}

func transition(prev, next domain.StreakState, kind domain.StreakTransitionKind, day time.Time) domain.StreakTransition {
	return domain.StreakTransition{
		UserID:         next.UserID,
		Kind:           kind,
		PreviousStreak: prev.CurrentStreak,
		CurrentStreak:  next.CurrentStreak,
		LongestStreak:  next.LongestStreak,
		NewLongest:     next.LongestStreak > prev.LongestStreak,
		Date:           day,
	}
}
