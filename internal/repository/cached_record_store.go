package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mansoorceksport/ironlog/internal/domain"
)

// CachedRecordStore is a user-scoped, write-through cache over the durable
// exercise record repository.
//
// The cache is loaded from durable storage on first use. Save writes to
// durable storage first and only then replaces the cached entry, so the cache
// never holds a record that is not committed. Readers always get clones.
//
// Another process may write the same records (a rebuild from the CLI, a
// second API instance). Such a write changes the durable revision, the next
// Save from here is rejected with ErrRecordConflict and the cache is dropped
// so the following read loads the current state.
type CachedRecordStore struct {
	userID  string
	durable domain.ExerciseRecordRepository

	mu      sync.RWMutex
	loaded  bool
	entries map[string]*domain.ExerciseRecord // normalized name -> committed record
}

// NewCachedRecordStore creates a record store for one user
func NewCachedRecordStore(userID string, durable domain.ExerciseRecordRepository) *CachedRecordStore {
	return &CachedRecordStore{
		userID:  userID,
		durable: durable,
		entries: make(map[string]*domain.ExerciseRecord),
	}
}

// ensureLoaded warms the cache; the caller must hold the write lock
func (s *CachedRecordStore) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	records, err := s.durable.ListByUser(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("%w: failed to load records: %w", domain.ErrStorage, err)
	}
	for _, r := range records {
		s.entries[r.NormalizedName] = r
	}
	s.loaded = true
	return nil
}

func (s *CachedRecordStore) isLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *CachedRecordStore) load(ctx context.Context) error {
	if s.isLoaded() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLoaded(ctx)
}

// Get returns a copy of the record, nil if the exercise has none
func (s *CachedRecordStore) Get(ctx context.Context, exerciseName string) (*domain.ExerciseRecord, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[domain.NormalizeExerciseName(exerciseName)].Clone(), nil
}

// GetOrCreate returns a copy of the record, or a fresh unsaved one
func (s *CachedRecordStore) GetOrCreate(ctx context.Context, exerciseName, muscleGroup string) (*domain.ExerciseRecord, error) {
	existing, err := s.Get(ctx, exerciseName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.MuscleGroup == "" && muscleGroup != "" {
			existing.MuscleGroup = muscleGroup
		}
		return existing, nil
	}

	record := domain.NewExerciseRecord(s.userID, exerciseName, muscleGroup)
	record.ID = domain.NewID()
	return record, nil
}

// Save commits the record to durable storage, then to the cache
func (s *CachedRecordStore) Save(ctx context.Context, record *domain.ExerciseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	committed := record.Clone()
	committed.UserID = s.userID
	if err := s.durable.Upsert(ctx, committed); err != nil {
		if errors.Is(err, domain.ErrRecordConflict) {
			s.reset()
			return fmt.Errorf("save record %q: %w", record.NormalizedName, err)
		}
		return fmt.Errorf("%w: failed to save record %q: %w", domain.ErrStorage, record.NormalizedName, err)
	}
	s.entries[committed.NormalizedName] = committed
	record.Revision = committed.Revision
	return nil
}

// reset drops the cache; the caller must hold the write lock
func (s *CachedRecordStore) reset() {
	s.entries = make(map[string]*domain.ExerciseRecord)
	s.loaded = false
}

// List returns copies of all records sorted by normalized name
func (s *CachedRecordStore) List(ctx context.Context) ([]*domain.ExerciseRecord, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*domain.ExerciseRecord, 0, len(s.entries))
	for _, r := range s.entries {
		records = append(records, r.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].NormalizedName < records[j].NormalizedName
	})
	return records, nil
}

// WipeAll deletes every record of the user, durable storage first
func (s *CachedRecordStore) WipeAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.durable.DeleteByUser(ctx, s.userID); err != nil {
		return fmt.Errorf("%w: failed to wipe records: %w", domain.ErrStorage, err)
	}
	s.entries = make(map[string]*domain.ExerciseRecord)
	s.loaded = true
	return nil
}
