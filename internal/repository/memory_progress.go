package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mansoorceksport/ironlog/internal/domain"
)

// MemoryExerciseRecordRepository keeps records in process memory. The
// recalculation CLI uses it for dry runs.
type MemoryExerciseRecordRepository struct {
	mu      sync.RWMutex
	records map[string]map[string]*domain.ExerciseRecord // user -> normalized name -> record
}

func NewMemoryExerciseRecordRepository() *MemoryExerciseRecordRepository {
	return &MemoryExerciseRecordRepository{records: make(map[string]map[string]*domain.ExerciseRecord)}
}

func (r *MemoryExerciseRecordRepository) Get(_ context.Context, userID, normalizedName string) (*domain.ExerciseRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[userID][normalizedName].Clone(), nil
}

func (r *MemoryExerciseRecordRepository) ListByUser(_ context.Context, userID string) ([]*domain.ExerciseRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.ExerciseRecord, 0, len(r.records[userID]))
	for _, rec := range r.records[userID] {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedName < out[j].NormalizedName })
	return out, nil
}

func (r *MemoryExerciseRecordRepository) Upsert(_ context.Context, record *domain.ExerciseRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.records[record.UserID]
	if !ok {
		byName = make(map[string]*domain.ExerciseRecord)
		r.records[record.UserID] = byName
	}
	stored := byName[record.NormalizedName]
	if (stored == nil && record.Revision != "") || (stored != nil && stored.Revision != record.Revision) {
		return domain.ErrRecordConflict
	}

	record.Revision = domain.NewID()
	byName[record.NormalizedName] = record.Clone()
	return nil
}

func (r *MemoryExerciseRecordRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.records[userID]))
	delete(r.records, userID)
	return n, nil
}

// MemoryStreakRepository keeps streak state in process memory
type MemoryStreakRepository struct {
	mu     sync.RWMutex
	states map[string]domain.StreakState
}

func NewMemoryStreakRepository() *MemoryStreakRepository {
	return &MemoryStreakRepository{states: make(map[string]domain.StreakState)}
}

func (r *MemoryStreakRepository) Get(_ context.Context, userID string) (*domain.StreakState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.states[userID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (r *MemoryStreakRepository) Save(_ context.Context, state *domain.StreakState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.UserID] = *state
	return nil
}

func (r *MemoryStreakRepository) ListExpirable(_ context.Context) ([]*domain.StreakState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.StreakState
	for _, st := range r.states {
		if !st.IsPaused && st.CurrentStreak > 0 {
			st := st
			out = append(out, &st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// MemoryWorkoutHistoryRepository keeps finished workouts in process memory
type MemoryWorkoutHistoryRepository struct {
	mu       sync.RWMutex
	workouts map[string][]*domain.HistoryWorkout // user -> workouts in insertion order
	ids      map[string]struct{}
}

func NewMemoryWorkoutHistoryRepository() *MemoryWorkoutHistoryRepository {
	return &MemoryWorkoutHistoryRepository{
		workouts: make(map[string][]*domain.HistoryWorkout),
		ids:      make(map[string]struct{}),
	}
}

func (r *MemoryWorkoutHistoryRepository) Append(_ context.Context, workout *domain.HistoryWorkout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.ids[workout.ID]; dup {
		return domain.ErrDuplicateWorkout
	}
	w := *workout
	w.CreatedAt = time.Now()
	r.ids[w.ID] = struct{}{}
	r.workouts[w.UserID] = append(r.workouts[w.UserID], &w)
	return nil
}

func (r *MemoryWorkoutHistoryRepository) Exists(_ context.Context, workoutID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[workoutID]
	return ok, nil
}

// Cursor returns the user's workouts ordered by date, then insertion order
func (r *MemoryWorkoutHistoryRepository) Cursor(_ context.Context, userID string) (domain.HistoryCursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*domain.HistoryWorkout, len(r.workouts[userID]))
	copy(list, r.workouts[userID])
	sort.SliceStable(list, func(i, j int) bool { return list[i].Date.Before(list[j].Date) })
	return NewSliceHistoryCursor(list), nil
}

func (r *MemoryWorkoutHistoryRepository) ListUserIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.workouts))
	for id := range r.workouts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
