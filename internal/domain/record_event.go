package domain

import (
	"context"
	"time"
)

// MetricKind identifies one of the tracked record metrics
type MetricKind string

const (
	MetricWeight MetricKind = "weight"
	MetricOneRM  MetricKind = "oneRM"
	MetricFiveRM MetricKind = "fiveRM"
	MetricTenRM  MetricKind = "tenRM"
	MetricVolume MetricKind = "volume"
)

// MetricKinds in evaluation order for a single set, followed by volume
var MetricKinds = []MetricKind{MetricWeight, MetricOneRM, MetricFiveRM, MetricTenRM, MetricVolume}

// RecordEvent is emitted when a metric improves. It is not persisted.
type RecordEvent struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	ExerciseName string     `json:"exercise_name"`
	Kind         MetricKind `json:"kind"`
	Value        float64    `json:"value"`
	Weight       float64    `json:"weight"`
	Reps         int        `json:"reps,omitempty"`
	Sets         int        `json:"sets,omitempty"`
	AchievedAt   time.Time  `json:"achieved_at"`
	WorkoutID    string     `json:"workout_id"`
}

// EventNotifier consumes committed record and streak events.
// Implementations decide how (or whether) the user is told.
type EventNotifier interface {
	NotifyRecords(ctx context.Context, events []RecordEvent) error
	NotifyStreak(ctx context.Context, transition StreakTransition) error
}
