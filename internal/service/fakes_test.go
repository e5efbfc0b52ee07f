package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mansoorceksport/ironlog/internal/domain"
	"github.com/mansoorceksport/ironlog/internal/repository"
)

var errMongoDown = errors.New("mongo: server selection timeout")

// flakyRecordRepo fails writes on demand
type flakyRecordRepo struct {
	*repository.MemoryExerciseRecordRepository
	mu         sync.Mutex
	failWrites bool
}

func newFlakyRecordRepo() *flakyRecordRepo {
	return &flakyRecordRepo{MemoryExerciseRecordRepository: repository.NewMemoryExerciseRecordRepository()}
}

func (r *flakyRecordRepo) setFailWrites(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWrites = v
}

func (r *flakyRecordRepo) Upsert(ctx context.Context, record *domain.ExerciseRecord) error {
	r.mu.Lock()
	fail := r.failWrites
	r.mu.Unlock()
	if fail {
		return errMongoDown
	}
	return r.MemoryExerciseRecordRepository.Upsert(ctx, record)
}

// flakyStreakRepo fails saves on demand
type flakyStreakRepo struct {
	*repository.MemoryStreakRepository
	mu        sync.Mutex
	failSaves bool
}

func (r *flakyStreakRepo) setFailSaves(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failSaves = v
}

func (r *flakyStreakRepo) Save(ctx context.Context, state *domain.StreakState) error {
	r.mu.Lock()
	fail := r.failSaves
	r.mu.Unlock()
	if fail {
		return errMongoDown
	}
	return r.MemoryStreakRepository.Save(ctx, state)
}

// cancellingRecordRepo honours ctx like a real driver and cancels it after
// a number of writes
type cancellingRecordRepo struct {
	*repository.MemoryExerciseRecordRepository
	cancel      context.CancelFunc
	cancelAfter int
	upserts     int
}

func (r *cancellingRecordRepo) Upsert(ctx context.Context, record *domain.ExerciseRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.MemoryExerciseRecordRepository.Upsert(ctx, record); err != nil {
		return err
	}
	r.upserts++
	if r.upserts == r.cancelAfter {
		r.cancel()
	}
	return nil
}

// recordingNotifier keeps every event it is handed
type recordingNotifier struct {
	mu      sync.Mutex
	records []domain.RecordEvent
	streaks []domain.StreakTransition
}

func (n *recordingNotifier) NotifyRecords(_ context.Context, events []domain.RecordEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, events...)
	return nil
}

func (n *recordingNotifier) NotifyStreak(_ context.Context, t domain.StreakTransition) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.streaks = append(n.streaks, t)
	return nil
}

func (n *recordingNotifier) recordCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.records)
}

func (n *recordingNotifier) streakKinds() []domain.StreakTransitionKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]domain.StreakTransitionKind, len(n.streaks))
	for i, t := range n.streaks {
		kinds[i] = t.Kind
	}
	return kinds
}

// gatedHistoryRepo blocks Cursor until the gate is closed
type gatedHistoryRepo struct {
	*repository.MemoryWorkoutHistoryRepository
	gate chan struct{}
}

func (r *gatedHistoryRepo) Cursor(ctx context.Context, userID string) (domain.HistoryCursor, error) {
	select {
	case <-r.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.MemoryWorkoutHistoryRepository.Cursor(ctx, userID)
}

// cancellingCursor cancels the context once the first workout was decoded
type cancellingCursor struct {
	domain.HistoryCursor
	cancel  context.CancelFunc
	decoded int
}

func (c *cancellingCursor) Decode() (*domain.HistoryWorkout, error) {
	c.decoded++
	if c.decoded == 1 {
		c.cancel()
	}
	return c.HistoryCursor.Decode()
}

func day(n int) time.Time {
	return time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func completed(weight float64, reps int) domain.WorkoutSet {
	at := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	return domain.WorkoutSet{Weight: weight, Reps: reps, CompletedAt: &at}
}

func warmup(weight float64, reps int) domain.WorkoutSet {
	s := completed(weight, reps)
	s.IsWarmup = true
	return s
}

// sampleHistory is three weeks of bench and squat with a warm-up, a
// placeholder set and a tie
func sampleHistory(userID string) []*domain.HistoryWorkout {
	return []*domain.HistoryWorkout{
		{
			ID: "w1", UserID: userID, Date: day(0), Bodyweight: 80,
			Exercises: []domain.HistoryExercise{
				{Name: "Bench Press", MuscleGroup: "chest", Sets: []domain.WorkoutSet{warmup(60, 10), completed(100, 5), completed(100, 5)}},
				{Name: "Squat", MuscleGroup: "legs", Sets: []domain.WorkoutSet{completed(120, 5)}},
			},
		},
		{
			ID: "w2", UserID: userID, Date: day(3), Bodyweight: 80,
			Exercises: []domain.HistoryExercise{
				{Name: "bench press", Sets: []domain.WorkoutSet{completed(90, 10), {Weight: 200, Reps: 1}}},
				{Name: "Pull Up", MuscleGroup: "back", Sets: []domain.WorkoutSet{
					{Weight: 10, Reps: 8, IsBodyweight: true, CompletedAt: completed(0, 0).CompletedAt},
				}},
			},
		},
		{
			ID: "w3", UserID: userID, Date: day(7), Bodyweight: 81,
			Exercises: []domain.HistoryExercise{
				{Name: "BENCH  PRESS", Sets: []domain.WorkoutSet{completed(105, 3), completed(100, 5)}},
				{Name: "Squat", Sets: []domain.WorkoutSet{completed(130, 3), completed(110, 12)}},
			},
		},
	}
}
