package domain

import "time"

// WorkoutSet is one logged set. It is never mutated after logging; an edit
// produces a new value.
type WorkoutSet struct {
	Weight       float64    `json:"weight" bson:"weight"`
	Reps         int        `json:"reps" bson:"reps"`
	IsWarmup     bool       `json:"is_warmup" bson:"is_warmup"`
	IsBodyweight bool       `json:"is_bodyweight" bson:"is_bodyweight"`         // Weight is added on top of the user's bodyweight
	CompletedAt  *time.Time `json:"completed_at,omitempty" bson:"completed_at"` // nil = placeholder, never performed
}

// IsQualifyingSet reports whether a set counts toward records.
// Warm-ups, empty sets and sets that were never completed are routine input
// and simply do not qualify. userBodyweight is not consulted; it is taken so
// the signature matches EffectiveLoad and SetVolume.
func IsQualifyingSet(set WorkoutSet, userBodyweight float64) bool {
	return !set.IsWarmup && set.Weight > 0 && set.Reps > 0 && set.CompletedAt != nil
}

// EffectiveLoad is the load moved per rep
func EffectiveLoad(set WorkoutSet, userBodyweight float64) float64 {
	if set.IsBodyweight {
		return userBodyweight + set.Weight
	}
	return set.Weight
}

// SetVolume = effective load * reps
func SetVolume(set WorkoutSet, userBodyweight float64) float64 {
	return EffectiveLoad(set, userBodyweight) * float64(set.Reps)
}
