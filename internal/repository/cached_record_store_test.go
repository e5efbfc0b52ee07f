package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mansoorceksport/ironlog/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepo counts durable calls and fails on demand
type countingRepo struct {
	*MemoryExerciseRecordRepository
	mu        sync.Mutex
	lists     int
	upserts   int
	failWrite error
	failList  error
}

func newCountingRepo() *countingRepo {
	return &countingRepo{MemoryExerciseRecordRepository: NewMemoryExerciseRecordRepository()}
}

func (r *countingRepo) ListByUser(ctx context.Context, userID string) ([]*domain.ExerciseRecord, error) {
	r.mu.Lock()
	r.lists++
	err := r.failList
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.MemoryExerciseRecordRepository.ListByUser(ctx, userID)
}

func (r *countingRepo) Upsert(ctx context.Context, record *domain.ExerciseRecord) error {
	r.mu.Lock()
	r.upserts++
	err := r.failWrite
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.MemoryExerciseRecordRepository.Upsert(ctx, record)
}

func TestCachedRecordStore_WarmsOnce(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()

	seed := domain.NewExerciseRecord("u1", "Squat", "legs")
	seed.Improve(domain.MetricWeight, domain.MetricRecord{Value: 140})
	require.NoError(t, repo.MemoryExerciseRecordRepository.Upsert(ctx, seed))

	store := NewCachedRecordStore("u1", repo)
	for i := 0; i < 3; i++ {
		r, err := store.Get(ctx, "SQUAT")
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, 140.0, r.BestWeight.Value)
	}
	_, err := store.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.lists)
}

func TestCachedRecordStore_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	store := NewCachedRecordStore("u1", repo)

	r, err := store.GetOrCreate(ctx, "Front Squat", "legs")
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "u1", r.UserID)
	assert.Equal(t, "front squat", r.NormalizedName)
	assert.Zero(t, repo.upserts, "creating is not saving")

	missing, err := store.Get(ctx, "Front Squat")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCachedRecordStore_ReadersGetCopies(t *testing.T) {
	ctx := context.Background()
	store := NewCachedRecordStore("u1", newCountingRepo())

	r, _ := store.GetOrCreate(ctx, "Bench Press", "")
	r.Improve(domain.MetricWeight, domain.MetricRecord{Value: 100})
	require.NoError(t, store.Save(ctx, r))

	// mutating what a reader holds does not leak into the store
	r.BestWeight.Value = 500
	got, _ := store.Get(ctx, "bench press")
	got.BestWeight.Value = 600

	again, _ := store.Get(ctx, "bench press")
	assert.Equal(t, 100.0, again.BestWeight.Value)
}

func TestCachedRecordStore_FailedWriteLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	store := NewCachedRecordStore("u1", repo)

	r, _ := store.GetOrCreate(ctx, "Bench Press", "")
	r.Improve(domain.MetricWeight, domain.MetricRecord{Value: 100})
	require.NoError(t, store.Save(ctx, r))

	repo.failWrite = errors.New("connection reset")
	r.Improve(domain.MetricWeight, domain.MetricRecord{Value: 120})
	err := store.Save(ctx, r)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)

	got, _ := store.Get(ctx, "Bench Press")
	assert.Equal(t, 100.0, got.BestWeight.Value)

	durable, _ := repo.Get(ctx, "u1", "bench press")
	assert.Equal(t, 100.0, durable.BestWeight.Value)
}

func TestCachedRecordStore_LoadFailure(t *testing.T) {
	repo := newCountingRepo()
	repo.failList = errors.New("no reachable servers")
	store := NewCachedRecordStore("u1", repo)

	_, err := store.List(context.Background())
	assert.ErrorIs(t, err, domain.ErrStorage)

	// the next call retries the load
	repo.failList = nil
	_, err = store.List(context.Background())
	assert.NoError(t, err)
}

func TestCachedRecordStore_WipeAll(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	store := NewCachedRecordStore("u1", repo)
	other := NewCachedRecordStore("u2", repo)

	for _, name := range []string{"Squat", "Bench Press", "Deadlift"} {
		r, _ := store.GetOrCreate(ctx, name, "")
		r.Improve(domain.MetricWeight, domain.MetricRecord{Value: 100})
		require.NoError(t, store.Save(ctx, r))
	}
	r, _ := other.GetOrCreate(ctx, "Squat", "")
	r.Improve(domain.MetricWeight, domain.MetricRecord{Value: 60})
	require.NoError(t, other.Save(ctx, r))

	list, _ := store.List(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, "bench press", list[0].NormalizedName, "sorted by name")

	require.NoError(t, store.WipeAll(ctx))
	list, _ = store.List(ctx)
	assert.Empty(t, list)

	durable, _ := repo.ListByUser(ctx, "u1")
	assert.Empty(t, durable)
	kept, _ := repo.ListByUser(ctx, "u2")
	assert.Len(t, kept, 1)
}

func TestCachedRecordStore_ConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	store := NewCachedRecordStore("u1", newCountingRepo())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 100; i++ {
			r, err := store.GetOrCreate(ctx, "Squat", "")
			if err != nil {
				return
			}
			r.Improve(domain.MetricWeight, domain.MetricRecord{Value: float64(i)})
			_ = store.Save(ctx, r)
		}
	}()
	go func() {
		defer wg.Done()
		last := 0.0
		for i := 0; i < 100; i++ {
			r, err := store.Get(ctx, "Squat")
			if err != nil || r == nil {
				continue
			}
			assert.GreaterOrEqual(t, r.BestWeight.Value, last)
			last = r.BestWeight.Value
		}
	}()
	wg.Wait()
}

func TestCachedRecordStore_StaleWriteIsRejected(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()

	live := NewCachedRecordStore("u1", repo)
	r, _ := live.GetOrCreate(ctx, "Bench Press", "chest")
	r.Improve(domain.MetricWeight, domain.MetricRecord{Value: 200, WorkoutID: "bogus"})
	require.NoError(t, live.Save(ctx, r))

	// a rebuild through another store replaces the durable record
	rebuild := NewCachedRecordStore("u1", repo)
	require.NoError(t, rebuild.WipeAll(ctx))
	fresh, _ := rebuild.GetOrCreate(ctx, "Bench Press", "chest")
	fresh.Improve(domain.MetricWeight, domain.MetricRecord{Value: 100, WorkoutID: "w1"})
	require.NoError(t, rebuild.Save(ctx, fresh))

	stale, _ := live.Get(ctx, "bench press")
	assert.Equal(t, 200.0, stale.BestWeight.Value, "still served from the cache")
	stale.TotalWorkouts++
	err := live.Save(ctx, stale)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRecordConflict)
	assert.NotErrorIs(t, err, domain.ErrStorage)

	durable, _ := repo.Get(ctx, "u1", "bench press")
	assert.Equal(t, 100.0, durable.BestWeight.Value)
	assert.Equal(t, "w1", durable.BestWeight.WorkoutID)

	// the conflict dropped the cache, the next read sees the rebuilt record
	got, err := live.Get(ctx, "bench press")
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.BestWeight.Value)
	assert.Equal(t, 2, repo.lists)

	got.TotalWorkouts++
	require.NoError(t, live.Save(ctx, got))
}

func TestCachedRecordStore_SaveHandsBackRevision(t *testing.T) {
	ctx := context.Background()
	store := NewCachedRecordStore("u1", newCountingRepo())

	r, _ := store.GetOrCreate(ctx, "Squat", "")
	r.Improve(domain.MetricWeight, domain.MetricRecord{Value: 100})
	require.NoError(t, store.Save(ctx, r))
	first := r.Revision
	assert.NotEmpty(t, first)

	r.Improve(domain.MetricWeight, domain.MetricRecord{Value: 110})
	require.NoError(t, store.Save(ctx, r))
	assert.NotEqual(t, first, r.Revision)
}

func TestMemoryExerciseRecordRepository_Revisions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryExerciseRecordRepository()

	a := domain.NewExerciseRecord("u1", "Squat", "")
	require.NoError(t, repo.Upsert(ctx, a))

	// a second writer that never saw a
	b := domain.NewExerciseRecord("u1", "Squat", "")
	assert.ErrorIs(t, repo.Upsert(ctx, b), domain.ErrRecordConflict)

	// a revision for a record that is gone
	_, err := repo.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Upsert(ctx, a), domain.ErrRecordConflict)
}
