package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mansoorceksport/ironlog/internal/domain"
	"github.com/mansoorceksport/ironlog/internal/repository"
	"github.com/mansoorceksport/ironlog/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	base := cliOptions{userID: "u1", source: sourceMongo, concurrency: 4}

	tests := []struct {
		name    string
		mutate  func(o *cliOptions)
		wantErr bool
	}{
		{"single user", func(o *cliOptions) {}, false},
		{"all users", func(o *cliOptions) { o.userID = ""; o.all = true }, false},
		{"no target", func(o *cliOptions) { o.userID = "" }, true},
		{"both targets", func(o *cliOptions) { o.all = true }, true},
		{"zero concurrency", func(o *cliOptions) { o.concurrency = 0 }, true},
		{"s3 without key", func(o *cliOptions) { o.source = sourceS3 }, true},
		{"s3 with key", func(o *cliOptions) { o.source = sourceS3; o.key = "history/u1/x.json" }, false},
		{"file without path", func(o *cliOptions) { o.source = sourceFile }, true},
		{"unknown source", func(o *cliOptions) { o.source = "ftp" }, true},
		{"all from file", func(o *cliOptions) { o.userID = ""; o.all = true; o.source = sourceFile; o.file = "x.json" }, true},
		{"export from s3", func(o *cliOptions) { o.export = true; o.source = sourceS3; o.key = "k" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base
			tt.mutate(&opts)
			err := validate(opts)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func newDryRunProgress(history domain.WorkoutHistoryRepository) (*service.ProgressService, *repository.MemoryExerciseRecordRepository) {
	records := repository.NewMemoryExerciseRecordRepository()
	svc := service.NewProgressService(
		func(userID string) domain.RecordStore {
			return repository.NewCachedRecordStore(userID, records)
		},
		nil, history, nil, service.NewLogNotifier(), nil, service.ProgressConfig{},
	)
	return svc, records
}

func TestRebuildUser_FromFile(t *testing.T) {
	export := `[
		{"id":"w2","user_id":"u1","date":"2025-03-04T00:00:00Z","exercises":[
			{"name":"Squat","sets":[{"weight":120,"reps":5,"completed_at":"2025-03-04T10:00:00Z"}]}]},
		{"id":"w1","user_id":"u1","date":"2025-03-01T00:00:00Z","exercises":[
			{"name":"Squat","sets":[{"weight":100,"reps":5,"completed_at":"2025-03-01T10:00:00Z"}]}]},
		"garbage"
	]`
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(export), 0o600))

	progress, records := newDryRunProgress(nil)
	opts := cliOptions{userID: "u1", source: sourceFile, file: path, concurrency: 1}

	res, err := rebuildUser(context.Background(), opts, progress, nil, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Skipped)

	squat, err := records.Get(context.Background(), "u1", "squat")
	require.NoError(t, err)
	require.NotNil(t, squat)
	assert.Equal(t, 120.0, squat.BestWeight.Value)
	assert.Equal(t, "w2", squat.BestWeight.WorkoutID)
	assert.Equal(t, 2, squat.TotalWorkouts)
}

func TestRebuildUser_MissingFile(t *testing.T) {
	progress, _ := newDryRunProgress(nil)
	opts := cliOptions{userID: "u1", source: sourceFile, file: filepath.Join(t.TempDir(), "nope.json")}

	_, err := rebuildUser(context.Background(), opts, progress, nil, "u1")
	assert.ErrorIs(t, err, domain.ErrHistoryUnreadable)
}

func TestExportUser_DryRun(t *testing.T) {
	ctx := context.Background()
	history := repository.NewMemoryWorkoutHistoryRepository()
	for i, id := range []string{"w1", "w2", "w3"} {
		require.NoError(t, history.Append(ctx, &domain.HistoryWorkout{
			ID: id, UserID: "u1", Date: time.Date(2025, 3, 1+i, 0, 0, 0, 0, time.UTC),
		}))
	}

	key, n, err := exportUser(ctx, history, nil, "u1", true)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Contains(t, key, "history/u1/")
	assert.Contains(t, key, "(dry run)")
}

func TestSummary_Add(t *testing.T) {
	s := &summary{}
	s.add("u1", &domain.RebuildResult{Workouts: 3, Applied: 2, Skipped: 1, Records: 4}, nil)
	s.add("u2", nil, domain.ErrHistoryUnreadable)

	assert.Equal(t, 2, s.users)
	assert.Equal(t, 1, s.failed)
	assert.Equal(t, 2, s.applied)
	assert.ErrorIs(t, s.errs, domain.ErrHistoryUnreadable)
}
