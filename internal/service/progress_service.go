package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mansoorceksport/ironlog/internal/domain"
	"github.com/mansoorceksport/ironlog/internal/telemetry"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultStoreCacheSize = 10000
	defaultStoreMaxAge    = 15 * time.Minute
)

// RecordStoreFactory builds the record store for one user
type RecordStoreFactory func(userID string) domain.RecordStore

// ProgressConfig tunes the progress service
type ProgressConfig struct {
	DefaultRestDaysPerWeek int
	RecordsCacheTTL        time.Duration
	RebuildTimeout         time.Duration
	StoreCacheSize         int           // users whose record store stays in memory
	StoreMaxAge            time.Duration // a store older than this is rebuilt from durable storage
}

// WorkoutInput is a finished workout as sent by the client
type WorkoutInput struct {
	WorkoutID  string
	Date       time.Time
	Bodyweight float64
	Exercises  []domain.HistoryExercise
}

// WorkoutResult is what finishing a workout changed
type WorkoutResult struct {
	WorkoutID  string                  `json:"workout_id"`
	Events     []domain.RecordEvent    `json:"events"`
	Streak     domain.StreakState      `json:"streak"`
	Transition domain.StreakTransition `json:"transition"`
}

// ProgressService owns the per-user progress state. Every mutation for a user
// runs under that user's lock, so records and streak have a single writer.
type ProgressService struct {
	newStore    RecordStoreFactory
	streakRepo  domain.StreakRepository
	historyRepo domain.WorkoutHistoryRepository
	cache       domain.ProgressCache
	notifier    domain.EventNotifier
	metrics     *telemetry.ProgressMetrics
	streaks     *StreakEngine
	cfg         ProgressConfig
	now         func() time.Time

	locks      userLocks
	storesMu   sync.Mutex
	stores     *lru.Cache[string, cachedStore]
	rebuilding sync.Map
}

type cachedStore struct {
	store   domain.RecordStore
	created time.Time
}

func NewProgressService(
	newStore RecordStoreFactory,
	streakRepo domain.StreakRepository,
	historyRepo domain.WorkoutHistoryRepository,
	cache domain.ProgressCache,
	notifier domain.EventNotifier,
	metrics *telemetry.ProgressMetrics,
	cfg ProgressConfig,
) *ProgressService {
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	if cfg.StoreCacheSize <= 0 {
		cfg.StoreCacheSize = defaultStoreCacheSize
	}
	if cfg.StoreMaxAge <= 0 {
		cfg.StoreMaxAge = defaultStoreMaxAge
	}
	// only fails for a non-positive size
	stores, _ := lru.New[string, cachedStore](cfg.StoreCacheSize)

	return &ProgressService{
		newStore:    newStore,
		streakRepo:  streakRepo,
		historyRepo: historyRepo,
		cache:       cache,
		notifier:    notifier,
		metrics:     metrics,
		streaks:     NewStreakEngine(),
		cfg:         cfg,
		now:         time.Now,
		locks:       userLocks{locks: make(map[string]*userLock)},
		stores:      stores,
	}
}

// userLocks hands out one mutex per user. A user's entry lives only while
// someone holds or waits for it.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (l *userLocks) lock(userID string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &userLock{}
		l.locks[userID] = m
	}
	m.refs++
	l.mu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()

		l.mu.Lock()
		defer l.mu.Unlock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, userID)
		}
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// storeFor returns the user's record store. Stores are kept for the most
// recently active users only and are rebuilt after StoreMaxAge, which also
// bounds how long reads can miss a write made by another process.
func (s *ProgressService) storeFor(userID string) domain.RecordStore {
	s.storesMu.Lock()
	defer s.storesMu.Unlock()

	now := s.now()
	if c, ok := s.stores.Get(userID); ok && now.Sub(c.created) < s.cfg.StoreMaxAge {
		return c.store
	}
	store := s.newStore(userID)
	s.stores.Add(userID, cachedStore{store: store, created: now})
	return store
}

func (s *ProgressService) engineFor(userID string) *RecordEngine {
	return NewRecordEngine(userID, s.storeFor(userID), s.metrics)
}

// StartSession warms the user's record cache and lazily expires a streak the
// user left unvisited.
func (s *ProgressService) StartSession(ctx context.Context, userID string, today time.Time) (*domain.StreakState, domain.StreakTransition, error) {
	if _, err := s.storeFor(userID).List(ctx); err != nil {
		return nil, domain.StreakTransition{}, err
	}
	return s.ExpireStreak(ctx, userID, today)
}

// LogSet records one finished set and returns the records it broke
func (s *ProgressService) LogSet(ctx context.Context, userID string, in SetEntry) ([]domain.RecordEvent, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ProgressService.LogSet",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.String("exercise", in.ExerciseName)),
	)
	defer span.End()

	unlock := s.locks.lock(userID)
	defer unlock()

	events, err := s.engineFor(userID).RecordSet(ctx, in)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(events) > 0 {
		s.afterRecords(ctx, userID, events)
	}
	span.SetAttributes(attribute.Int("records.new", len(events)))
	return events, nil
}

// CompleteWorkout applies each exercise's volume, advances the streak once
// and then stores the workout in the history.
//
// The history entry is written last: a workout only counts as recorded once
// everything it changes is committed. If a step fails the client may retry
// with the same workout ID; volume already applied for it is not applied
// again and a repeated day does not move the streak.
func (s *ProgressService) CompleteWorkout(ctx context.Context, userID string, in WorkoutInput) (*WorkoutResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ProgressService.CompleteWorkout",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if in.Date.IsZero() {
		return nil, domain.ErrInvalidDate
	}
	if in.WorkoutID == "" {
		in.WorkoutID = domain.NewID()
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	if s.historyRepo != nil {
		seen, err := s.historyRepo.Exists(ctx, in.WorkoutID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if seen {
			return nil, domain.ErrDuplicateWorkout
		}
	}

	workout := &domain.HistoryWorkout{
		ID:         in.WorkoutID,
		UserID:     userID,
		Date:       in.Date,
		Bodyweight: in.Bodyweight,
		Exercises:  in.Exercises,
	}

	engine := s.engineFor(userID)
	result := &WorkoutResult{WorkoutID: in.WorkoutID}
	for _, vol := range workoutVolumes(workout) {
		ev, err := engine.RecordWorkoutVolume(ctx, vol)
		if err != nil {
			span.RecordError(err)
			// earlier exercises may already be committed
			s.invalidateRecords(ctx, userID)
			return nil, fmt.Errorf("failed to apply volume for %s: %w", vol.ExerciseName, err)
		}
		if ev != nil {
			result.Events = append(result.Events, *ev)
		}
	}
	// counters moved even without a new record
	s.invalidateRecords(ctx, userID)
	if len(result.Events) > 0 {
		s.notifyRecords(ctx, userID, result.Events)
	}

	state, err := s.loadStreak(ctx, userID)
	if err != nil {
		return nil, err
	}
	next, tr := s.streaks.RecordWorkout(*state, in.Date)
	if err := s.commitStreak(ctx, &next, tr); err != nil {
		return nil, err
	}

	if s.historyRepo != nil {
		if err := s.historyRepo.Append(ctx, workout); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	result.Streak = next
	result.Transition = tr
	return result, nil
}

// GetRecords lists all records of a user, served from cache when possible
func (s *ProgressService) GetRecords(ctx context.Context, userID string) ([]*domain.ExerciseRecord, error) {
	if s.cache != nil {
		var cached []*domain.ExerciseRecord
		if err := s.cache.GetRecords(ctx, userID, &cached); err == nil {
			return cached, nil
		}
	}

	records, err := s.storeFor(userID).List(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		// ignore cache errors
		_ = s.cache.SetRecords(ctx, userID, records, s.cfg.RecordsCacheTTL)
	}
	return records, nil
}

// GetRecord returns the record of one exercise, matched by normalized name
func (s *ProgressService) GetRecord(ctx context.Context, userID, exerciseName string) (*domain.ExerciseRecord, error) {
	if domain.NormalizeExerciseName(exerciseName) == "" {
		return nil, domain.ErrMissingExercise
	}
	record, err := s.storeFor(userID).Get(ctx, exerciseName)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

// GetStreak returns the stored streak without running the expiry check
func (s *ProgressService) GetStreak(ctx context.Context, userID string) (*domain.StreakState, error) {
	return s.loadStreak(ctx, userID)
}

// SetPaused pauses or resumes the user's streak
func (s *ProgressService) SetPaused(ctx context.Context, userID string, paused bool) (*domain.StreakState, domain.StreakTransition, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	state, err := s.loadStreak(ctx, userID)
	if err != nil {
		return nil, domain.StreakTransition{}, err
	}
	next, tr := s.streaks.SetPaused(*state, paused, s.now())
	if err := s.commitStreak(ctx, &next, tr); err != nil {
		return nil, tr, err
	}
	return &next, tr, nil
}

// SetRestDays changes the rest-day allowance
func (s *ProgressService) SetRestDays(ctx context.Context, userID string, restDays int) (*domain.StreakState, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	state, err := s.loadStreak(ctx, userID)
	if err != nil {
		return nil, err
	}
	next := s.streaks.SetRestDays(*state, restDays)
	next.UpdatedAt = s.now()
	if err := s.streakRepo.Save(ctx, &next); err != nil {
		return nil, fmt.Errorf("%w: save streak: %w", domain.ErrStorage, err)
	}
	return &next, nil
}

// ExpireStreak runs the lazy expiry check for one user
func (s *ProgressService) ExpireStreak(ctx context.Context, userID string, today time.Time) (*domain.StreakState, domain.StreakTransition, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	state, err := s.loadStreak(ctx, userID)
	if err != nil {
		return nil, domain.StreakTransition{}, err
	}
	next, tr := s.streaks.CheckExpiry(*state, today)
	if err := s.commitStreak(ctx, &next, tr); err != nil {
		return nil, tr, err
	}
	return &next, tr, nil
}

// Rebuild recalculates the user's records from the stored workout history
func (s *ProgressService) Rebuild(ctx context.Context, userID string) (*domain.RebuildResult, error) {
	if s.historyRepo == nil {
		return nil, fmt.Errorf("%w: no history source configured", domain.ErrHistoryUnreadable)
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	cursor, err := s.historyRepo.Cursor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrHistoryUnreadable, err)
	}
	defer cursor.Close(context.Background())

	return s.rebuildFrom(ctx, userID, cursor)
}

// RebuildFrom recalculates the user's records from an arbitrary history source
func (s *ProgressService) RebuildFrom(ctx context.Context, userID string, history domain.HistoryCursor) (*domain.RebuildResult, error) {
	unlock := s.locks.lock(userID)
	defer unlock()
	return s.rebuildFrom(ctx, userID, history)
}

func (s *ProgressService) rebuildFrom(ctx context.Context, userID string, history domain.HistoryCursor) (*domain.RebuildResult, error) {
	store := s.storeFor(userID)
	engine := NewRecordEngine(userID, store, s.metrics)
	result, err := NewRecalculationEngine(userID, store, engine, s.metrics).RebuildAll(ctx, history)

	if s.cache != nil {
		_ = s.cache.InvalidateRecords(context.Background(), userID)
	}
	return result, err
}

// StartRebuild runs Rebuild in the background, off the request path.
// Only one rebuild per user runs at a time.
func (s *ProgressService) StartRebuild(userID string) error {
	if _, running := s.rebuilding.LoadOrStore(userID, struct{}{}); running {
		return domain.ErrRebuildInProgress
	}

	go func() {
		defer s.rebuilding.Delete(userID)

		timeout := s.cfg.RebuildTimeout
		if timeout <= 0 {
			timeout = 10 * time.Minute
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		result, err := s.Rebuild(ctx, userID)
		if err != nil {
			log.WithField("user_id", userID).Errorf("background rebuild failed: %s", err)
			return
		}
		log.WithFields(log.Fields{
			"user_id": userID,
			"applied": result.Applied,
			"skipped": result.Skipped,
		}).Info("background rebuild done")
	}()
	return nil
}

func (s *ProgressService) loadStreak(ctx context.Context, userID string) (*domain.StreakState, error) {
	state, err := s.streakRepo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load streak: %w", domain.ErrStorage, err)
	}
	if state == nil {
		state = &domain.StreakState{
			UserID:          userID,
			RestDaysPerWeek: domain.ClampRestDays(s.cfg.DefaultRestDaysPerWeek),
		}
	}
	return state, nil
}

// commitStreak saves a changed streak and only then tells the notifier
func (s *ProgressService) commitStreak(ctx context.Context, next *domain.StreakState, tr domain.StreakTransition) error {
	if !tr.Changed() {
		return nil
	}
	next.UpdatedAt = s.now()
	if err := s.streakRepo.Save(ctx, next); err != nil {
		return fmt.Errorf("%w: save streak: %w", domain.ErrStorage, err)
	}

	s.metrics.StreakTransition(ctx, string(tr.Kind))
	if err := s.notifier.NotifyStreak(ctx, tr); err != nil {
		log.WithField("user_id", next.UserID).Warnf("failed to notify streak transition: %s", err)
	}
	return nil
}

// afterRecords runs once record events are committed
func (s *ProgressService) afterRecords(ctx context.Context, userID string, events []domain.RecordEvent) {
	s.invalidateRecords(ctx, userID)
	s.notifyRecords(ctx, userID, events)
}

func (s *ProgressService) invalidateRecords(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateRecords(ctx, userID); err != nil {
		log.WithField("user_id", userID).Warnf("failed to invalidate records cache: %s", err)
	}
}

func (s *ProgressService) notifyRecords(ctx context.Context, userID string, events []domain.RecordEvent) {
	if err := s.notifier.NotifyRecords(ctx, events); err != nil {
		log.WithField("user_id", userID).Warnf("failed to notify records: %s", err)
	}
}

// IsStorageError reports whether err came from durable storage
func IsStorageError(err error) bool {
	return errors.Is(err, domain.ErrStorage)
}
