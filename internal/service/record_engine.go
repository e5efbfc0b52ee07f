package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mansoorceksport/ironlog/internal/domain"
	"github.com/mansoorceksport/ironlog/internal/telemetry"
	log "github.com/sirupsen/logrus"
)

// maxConflictAttempts bounds how often a write is recomputed after another
// writer changed the same record
const maxConflictAttempts = 3

// SetEntry is one finished set of an exercise
type SetEntry struct {
	ExerciseName string
	MuscleGroup  string
	Set          domain.WorkoutSet
	WorkoutDate  time.Time
	WorkoutID    string
	Bodyweight   float64 // Current user bodyweight, for bodyweight exercises
}

// VolumeEntry is every set of one exercise in one finished workout
type VolumeEntry struct {
	ExerciseName string
	MuscleGroup  string
	Sets         []domain.WorkoutSet
	WorkoutDate  time.Time
	WorkoutID    string
	Bodyweight   float64
}

// workoutVolumes builds one VolumeEntry per distinct exercise of a workout.
// An exercise listed twice is one exercise performed in that workout, its
// sets are pooled under the first listing's name.
func workoutVolumes(w *domain.HistoryWorkout) []VolumeEntry {
	var (
		out   []VolumeEntry
		index = make(map[string]int)
	)
	for _, ex := range w.Exercises {
		key := domain.NormalizeExerciseName(ex.Name)
		if i, ok := index[key]; ok {
			out[i].Sets = append(out[i].Sets, ex.Sets...)
			if out[i].MuscleGroup == "" {
				out[i].MuscleGroup = ex.MuscleGroup
			}
			continue
		}
		index[key] = len(out)
		out = append(out, VolumeEntry{
			ExerciseName: ex.Name,
			MuscleGroup:  ex.MuscleGroup,
			Sets:         append([]domain.WorkoutSet(nil), ex.Sets...),
			WorkoutDate:  w.Date,
			WorkoutID:    w.ID,
			Bodyweight:   w.Bodyweight,
		})
	}
	return out
}

// RecordEngine detects personal records for one user's record store.
// Calls must be serialized by the owner of the store.
type RecordEngine struct {
	userID  string
	store   domain.RecordStore
	metrics *telemetry.ProgressMetrics
	now     func() time.Time
}

func NewRecordEngine(userID string, store domain.RecordStore, metrics *telemetry.ProgressMetrics) *RecordEngine {
	return &RecordEngine{
		userID:  userID,
		store:   store,
		metrics: metrics,
		now:     time.Now,
	}
}

// retryOnConflict reruns apply on a fresh copy of the record while the
// store reports that someone else wrote it first
func (e *RecordEngine) retryOnConflict(exercise string, apply func() error) error {
	var err error
	for attempt := 1; attempt <= maxConflictAttempts; attempt++ {
		err = apply()
		if !errors.Is(err, domain.ErrRecordConflict) {
			return err
		}
		log.WithFields(log.Fields{
			"user_id":  e.userID,
			"exercise": exercise,
			"attempt":  attempt,
		}).Warn("record-engine: record changed by another writer, retrying")
	}
	return fmt.Errorf("%w: %w", domain.ErrStorage, err)
}

// RecordSet compares a finished set against the stored records and returns
// one event per improved metric, in the order weight, 1RM, 5RM, 10RM.
// Non-qualifying sets return no events and leave the store untouched.
// Events are only returned once the updated record has been saved.
func (e *RecordEngine) RecordSet(ctx context.Context, in SetEntry) ([]domain.RecordEvent, error) {
	if !domain.IsQualifyingSet(in.Set, in.Bodyweight) || domain.NormalizeExerciseName(in.ExerciseName) == "" {
		e.metrics.SetSkipped(ctx)
		log.WithFields(log.Fields{
			"user_id":  e.userID,
			"exercise": in.ExerciseName,
			"warmup":   in.Set.IsWarmup,
		}).Debug("record-engine: set does not qualify, skipped")
		return nil, nil
	}

	var events []domain.RecordEvent
	err := e.retryOnConflict(in.ExerciseName, func() error {
		var err error
		events, err = e.recordSet(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, ev := range events {
		e.metrics.RecordDetected(ctx, string(ev.Kind))
	}
	return events, nil
}

func (e *RecordEngine) recordSet(ctx context.Context, in SetEntry) ([]domain.RecordEvent, error) {
	record, err := e.store.GetOrCreate(ctx, in.ExerciseName, in.MuscleGroup)
	if err != nil {
		return nil, err
	}

	weight, reps := in.Set.Weight, in.Set.Reps
	candidates := []struct {
		kind  domain.MetricKind
		value float64
		ok    bool
	}{
		{domain.MetricWeight, weight, true},
		{domain.MetricOneRM, domain.EstimateOneRepMax(weight, reps), true},
		{domain.MetricFiveRM, weight, reps >= 5},
		{domain.MetricTenRM, weight, reps >= 10},
	}

	var events []domain.RecordEvent
	for _, c := range candidates {
		if !c.ok {
			continue
		}
		achieved := domain.MetricRecord{
			Value:      c.value,
			Weight:     weight,
			Reps:       reps,
			AchievedAt: in.WorkoutDate,
			WorkoutID:  in.WorkoutID,
		}
		if record.Improve(c.kind, achieved) {
			events = append(events, e.newEvent(record, c.kind, achieved))
		}
	}

	if len(events) == 0 {
		return nil, nil
	}

	record.LastUpdated = e.now()
	if err := e.store.Save(ctx, record); err != nil {
		return nil, err
	}
	return events, nil
}

// RecordWorkoutVolume applies one workout's sets of an exercise: it bumps the
// workout counters and checks the best single-workout volume.
// An exercise without qualifying sets did not really happen and is ignored.
// Applying the same workout ID again right after it was applied is a no-op,
// so a retried workout is not counted twice.
func (e *RecordEngine) RecordWorkoutVolume(ctx context.Context, in VolumeEntry) (*domain.RecordEvent, error) {
	var (
		totalVolume float64
		totalReps   int
		sets        int
	)
	for _, set := range in.Sets {
		if !domain.IsQualifyingSet(set, in.Bodyweight) {
			continue
		}
		totalVolume += domain.SetVolume(set, in.Bodyweight)
		totalReps += set.Reps
		sets++
	}
	if sets == 0 || domain.NormalizeExerciseName(in.ExerciseName) == "" {
		return nil, nil
	}

	var event *domain.RecordEvent
	err := e.retryOnConflict(in.ExerciseName, func() error {
		var err error
		event, err = e.recordWorkoutVolume(ctx, in, totalVolume, totalReps, sets)
		return err
	})
	if err != nil {
		return nil, err
	}

	if event != nil {
		e.metrics.RecordDetected(ctx, string(event.Kind))
	}
	return event, nil
}

func (e *RecordEngine) recordWorkoutVolume(ctx context.Context, in VolumeEntry, totalVolume float64, totalReps, sets int) (*domain.RecordEvent, error) {
	record, err := e.store.GetOrCreate(ctx, in.ExerciseName, in.MuscleGroup)
	if err != nil {
		return nil, err
	}
	if in.WorkoutID != "" && record.LastWorkoutID == in.WorkoutID {
		return nil, nil
	}

	// Frequency counters advance on every workout, record or not
	record.TotalWorkouts++
	record.LastWorkoutID = in.WorkoutID
	if record.LastPerformed == nil || in.WorkoutDate.After(*record.LastPerformed) {
		performed := in.WorkoutDate
		record.LastPerformed = &performed
	}

	var event *domain.RecordEvent
	achieved := domain.MetricRecord{
		Value:      totalVolume,
		Reps:       totalReps,
		Sets:       sets,
		AchievedAt: in.WorkoutDate,
		WorkoutID:  in.WorkoutID,
	}
	if record.Improve(domain.MetricVolume, achieved) {
		ev := e.newEvent(record, domain.MetricVolume, achieved)
		event = &ev
	}

	record.LastUpdated = e.now()
	if err := e.store.Save(ctx, record); err != nil {
		return nil, err
	}
	return event, nil
}

func (e *RecordEngine) newEvent(record *domain.ExerciseRecord, kind domain.MetricKind, m domain.MetricRecord) domain.RecordEvent {
	return domain.RecordEvent{
		ID:           domain.NewID(),
		UserID:       e.userID,
		ExerciseName: record.ExerciseName,
		Kind:         kind,
		Value:        m.Value,
		Weight:       m.Weight,
		Reps:         m.Reps,
		Sets:         m.Sets,
		AchievedAt:   m.AchievedAt,
		WorkoutID:    m.WorkoutID,
	}
}
