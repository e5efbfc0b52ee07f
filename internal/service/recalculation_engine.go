package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mansoorceksport/ironlog/internal/domain"
	"github.com/mansoorceksport/ironlog/internal/telemetry"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ironlog/progress"

// RecalculationEngine rebuilds a user's records from their full workout
// history. Replay goes through the same RecordEngine as live logging, so the
// result matches what incremental updates would have produced.
type RecalculationEngine struct {
	userID  string
	store   domain.RecordStore
	engine  *RecordEngine
	metrics *telemetry.ProgressMetrics
}

func NewRecalculationEngine(userID string, store domain.RecordStore, engine *RecordEngine, metrics *telemetry.ProgressMetrics) *RecalculationEngine {
	return &RecalculationEngine{
		userID:  userID,
		store:   store,
		engine:  engine,
		metrics: metrics,
	}
}

// RebuildAll wipes the store and replays the history, oldest workout first.
//
// Entries that cannot be decoded are skipped and counted. The context is
// checked before each workout and a started workout is always written in
// full, so on cancellation the store holds a correct prefix of the history
// and the partial result is returned with ctx.Err().
// A history that yields no entry at all because the source failed is fatal.
func (r *RecalculationEngine) RebuildAll(ctx context.Context, history domain.HistoryCursor) (*domain.RebuildResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "RecalculationEngine.RebuildAll",
		trace.WithAttributes(attribute.String("user.id", r.userID)),
	)
	defer span.End()

	start := time.Now()
	result := &domain.RebuildResult{}
	logger := log.WithField("user_id", r.userID)

	if err := r.store.WipeAll(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to wipe records: %w", err)
	}

	var lastDate time.Time
	for {
		// checkpoint: one workout is the unit of progress
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		if !history.Next(ctx) {
			break
		}
		result.Workouts++

		workout, err := history.Decode()
		if err == nil {
			err = workout.Validate()
		}
		if err != nil {
			result.Skipped++
			r.metrics.HistorySkipped(ctx)
			logger.Warnf("rebuild: skipping history entry #%d: %s", result.Workouts, err)
			continue
		}

		if workout.Date.Before(lastDate) {
			logger.Warnf("rebuild: workout %s is out of order (%s before %s)", workout.ID,
				workout.Date.Format(time.DateOnly), lastDate.Format(time.DateOnly))
		}
		lastDate = workout.Date

		// a cancellation must not cut a workout in half
		events, err := r.applyWorkout(context.WithoutCancel(ctx), workout)
		if err != nil {
			span.RecordError(err)
			return result, fmt.Errorf("failed to replay workout %s: %w", workout.ID, err)
		}
		result.Applied++
		result.Events += events
	}

	if err := ctx.Err(); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}
	if err := history.Err(); err != nil {
		span.RecordError(err)
		if result.Workouts == 0 {
			return result, fmt.Errorf("%w: %w", domain.ErrHistoryUnreadable, err)
		}
		// what was read is still a valid prefix
		logger.Warnf("rebuild: history source failed after %d entries: %s", result.Workouts, err)
		result.Skipped++
	}

	records, err := r.store.List(ctx)
	if err != nil {
		return result, err
	}
	result.Records = len(records)
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("rebuild.applied", result.Applied),
		attribute.Int("rebuild.skipped", result.Skipped),
	)
	logger.WithFields(log.Fields{
		"workouts": result.Workouts,
		"applied":  result.Applied,
		"skipped":  result.Skipped,
		"records":  result.Records,
	}).Info("rebuild: finished")

	return result, nil
}

// applyWorkout replays one workout: every set, then each exercise's volume
func (r *RecalculationEngine) applyWorkout(ctx context.Context, w *domain.HistoryWorkout) (int, error) {
	events := 0
	for _, ex := range w.Exercises {
		for _, set := range ex.Sets {
			evs, err := r.engine.RecordSet(ctx, SetEntry{
				ExerciseName: ex.Name,
				MuscleGroup:  ex.MuscleGroup,
				Set:          set,
				WorkoutDate:  w.Date,
				WorkoutID:    w.ID,
				Bodyweight:   w.Bodyweight,
			})
			if err != nil {
				return events, err
			}
			events += len(evs)
		}
	}

	for _, vol := range workoutVolumes(w) {
		ev, err := r.engine.RecordWorkoutVolume(ctx, vol)
		if err != nil {
			return events, err
		}
		if ev != nil {
			events++
		}
	}
	return events, nil
}
