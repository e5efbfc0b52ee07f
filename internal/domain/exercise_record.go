package domain

import (
	"context"
	"time"
)

// MetricRecord is an achieved value for one record metric.
// A nil *MetricRecord means the metric has no record yet, which is different
// from a record of zero.
type MetricRecord struct {
	Value      float64   `json:"value" bson:"value"`
	Weight     float64   `json:"weight" bson:"weight"`                   // Source set weight (provenance for 1RM)
	Reps       int       `json:"reps" bson:"reps"`                       // Source set reps
	Sets       int       `json:"sets,omitempty" bson:"sets,omitempty"`   // Volume only: qualifying sets in that workout
	AchievedAt time.Time `json:"achieved_at" bson:"achieved_at"`         // Workout date, not wall clock
	WorkoutID  string    `json:"workout_id" bson:"workout_id"`           // Workout where the record was set
}

// beats reports whether value strictly improves on the current record.
// Equal values never replace an earlier record, so the first to reach a value keeps it.
func (m *MetricRecord) beats(value float64) bool {
	return m == nil || value > m.Value
}

// ExerciseRecord aggregates a user's records for one exercise
type ExerciseRecord struct {
	ID             string `json:"id" bson:"_id,omitempty"`
	UserID         string `json:"user_id" bson:"user_id"`
	ExerciseName   string `json:"exercise_name" bson:"exercise_name"`     // Display name as first logged
	NormalizedName string `json:"normalized_name" bson:"normalized_name"` // Lookup key
	MuscleGroup    string `json:"muscle_group,omitempty" bson:"muscle_group,omitempty"`

	BestWeight *MetricRecord `json:"best_weight,omitempty" bson:"best_weight,omitempty"`
	BestOneRM  *MetricRecord `json:"best_1rm,omitempty" bson:"best_1rm,omitempty"`
	BestFiveRM *MetricRecord `json:"best_5rm,omitempty" bson:"best_5rm,omitempty"`
	BestTenRM  *MetricRecord `json:"best_10rm,omitempty" bson:"best_10rm,omitempty"`
	BestVolume *MetricRecord `json:"best_volume,omitempty" bson:"best_volume,omitempty"`

	TotalWorkouts int        `json:"total_workouts" bson:"total_workouts"`
	LastPerformed *time.Time `json:"last_performed,omitempty" bson:"last_performed,omitempty"`
	LastWorkoutID string     `json:"last_workout_id,omitempty" bson:"last_workout_id,omitempty"` // Workout whose volume was applied last
	LastUpdated   time.Time  `json:"last_updated" bson:"last_updated"`

	// Revision changes on every durable write. A write based on an older
	// revision is rejected with ErrRecordConflict.
	Revision string `json:"-" bson:"revision"`
}

// NewExerciseRecord creates an empty aggregate for an exercise
func NewExerciseRecord(userID, exerciseName, muscleGroup string) *ExerciseRecord {
	return &ExerciseRecord{
		UserID:         userID,
		ExerciseName:   exerciseName,
		NormalizedName: NormalizeExerciseName(exerciseName),
		MuscleGroup:    muscleGroup,
	}
}

// Metric returns the record tracked for kind
func (r *ExerciseRecord) Metric(kind MetricKind) *MetricRecord {
	switch kind {
	case MetricWeight:
		return r.BestWeight
	case MetricOneRM:
		return r.BestOneRM
	case MetricFiveRM:
		return r.BestFiveRM
	case MetricTenRM:
		return r.BestTenRM
	case MetricVolume:
		return r.BestVolume
	}
	return nil
}

// Improve replaces the metric if value strictly beats it and reports whether it did
func (r *ExerciseRecord) Improve(kind MetricKind, candidate MetricRecord) bool {
	slot := r.slot(kind)
	if slot == nil || !(*slot).beats(candidate.Value) {
		return false
	}
	c := candidate
	*slot = &c
	return true
}

func (r *ExerciseRecord) slot(kind MetricKind) **MetricRecord {
	switch kind {
	case MetricWeight:
		return &r.BestWeight
	case MetricOneRM:
		return &r.BestOneRM
	case MetricFiveRM:
		return &r.BestFiveRM
	case MetricTenRM:
		return &r.BestTenRM
	case MetricVolume:
		return &r.BestVolume
	}
	return nil
}

// Clone returns a deep copy. Stores hand out clones so a mutation is only
// visible to others once it has been committed.
func (r *ExerciseRecord) Clone() *ExerciseRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.BestWeight = cloneMetric(r.BestWeight)
	c.BestOneRM = cloneMetric(r.BestOneRM)
	c.BestFiveRM = cloneMetric(r.BestFiveRM)
	c.BestTenRM = cloneMetric(r.BestTenRM)
	c.BestVolume = cloneMetric(r.BestVolume)
	if r.LastPerformed != nil {
		t := *r.LastPerformed
		c.LastPerformed = &t
	}
	return &c
}

func cloneMetric(m *MetricRecord) *MetricRecord {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// ExerciseRecordRepository is the durable storage for exercise records
type ExerciseRecordRepository interface {
	// Get returns the record for a normalized exercise name, nil if none exists
	Get(ctx context.Context, userID, normalizedName string) (*ExerciseRecord, error)
	// ListByUser returns all of a user's records sorted by normalized name
	ListByUser(ctx context.Context, userID string) ([]*ExerciseRecord, error)
	// Upsert writes the whole aggregate, keyed by user and normalized name.
	// It only succeeds while the stored revision equals record.Revision (an
	// empty revision means the record must not exist yet) and then sets
	// record.Revision to the new one. Otherwise it returns ErrRecordConflict.
	Upsert(ctx context.Context, record *ExerciseRecord) error
	// DeleteByUser removes every record of a user
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// RecordStore is a user-scoped collection of exercise records keyed by
// normalized exercise name. Returned records are copies; changes become
// visible only through Save.
type RecordStore interface {
	Get(ctx context.Context, exerciseName string) (*ExerciseRecord, error)
	GetOrCreate(ctx context.Context, exerciseName, muscleGroup string) (*ExerciseRecord, error)
	Save(ctx context.Context, record *ExerciseRecord) error
	List(ctx context.Context) ([]*ExerciseRecord, error)
	WipeAll(ctx context.Context) error
}
