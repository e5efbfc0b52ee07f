package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/mansoorceksport/ironlog/internal/config"
	"github.com/mansoorceksport/ironlog/internal/domain"
	"github.com/mansoorceksport/ironlog/internal/repository"
	"github.com/mansoorceksport/ironlog/internal/service"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	sourceMongo = "mongo"
	sourceS3    = "s3"
	sourceFile  = "file"
)

type cliOptions struct {
	userID      string
	all         bool
	source      string
	key         string
	file        string
	export      bool
	dryRun      bool
	concurrency int
	timeout     time.Duration
}

// summary is shared by the per-user workers
type summary struct {
	mu       sync.Mutex
	users    int
	failed   int
	workouts int
	applied  int
	skipped  int
	events   int
	records  int
	errs     error
}

func (s *summary) add(userID string, res *domain.RebuildResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users++
	if res != nil {
		s.workouts += res.Workouts
		s.applied += res.Applied
		s.skipped += res.Skipped
		s.events += res.Events
		s.records += res.Records
	}
	if err != nil {
		s.failed++
		s.errs = multierr.Append(s.errs, fmt.Errorf("user %s: %w", userID, err))
	}
}

func main() {
	_ = godotenv.Load()

	var opts cliOptions
	flag.StringVar(&opts.userID, "user", "", "User ID to rebuild records for")
	flag.BoolVar(&opts.all, "all", false, "Rebuild every user with stored history (mongo source only)")
	flag.StringVar(&opts.source, "source", sourceMongo, "History source: mongo, s3 or file")
	flag.StringVar(&opts.key, "key", "", "Export object key (s3 source)")
	flag.StringVar(&opts.file, "file", "", "Export file path (file source)")
	flag.BoolVar(&opts.export, "export", false, "Upload each user's stored history to S3 instead of rebuilding")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Replay into memory without touching stored records")
	flag.IntVar(&opts.concurrency, "concurrency", 4, "Users rebuilt in parallel")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Minute, "Overall timeout")
	mongoURI := flag.String("mongo", envOr("MONGODB_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	dbName := flag.String("db", envOr("MONGODB_DATABASE", "ironlog"), "Database name")
	redisAddr := flag.String("redis", os.Getenv("REDIS_ADDR"), "Redis address; cached record lists are dropped after a rebuild (empty to skip)")
	flag.Parse()

	if err := validate(opts); err != nil {
		fmt.Println("Error:", err)
		fmt.Println("\nUsage: recalculate_records (-user <USER_ID> | -all) [-source mongo|s3|file] [-key <KEY>] [-file <PATH>]")
		fmt.Println("                          [-export] [-dry-run] [-concurrency N] [-mongo <URI>] [-db <NAME>] [-redis <ADDR>]")
		fmt.Println("\nRebuilds personal records from workout history. Existing records of each user are")
		fmt.Println("wiped and replayed oldest workout first.")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(*mongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	db := client.Database(*dbName)
	historyRepo := repository.NewMongoWorkoutHistoryRepository(db)

	var exports *repository.S3HistoryExportRepository
	if opts.export || opts.source == sourceS3 {
		exports, err = repository.NewS3HistoryExportRepository(ctx, config.LoadS3())
		if err != nil {
			log.Fatalf("Failed to initialize S3: %v", err)
		}
	}

	users := []string{opts.userID}
	if opts.all {
		users, err = historyRepo.ListUserIDs(ctx)
		if err != nil {
			log.Fatalf("Failed to list users: %v", err)
		}
	}
	fmt.Printf("🔍 %d user(s) to process\n\n", len(users))

	if opts.export {
		runExport(ctx, opts, users, historyRepo, exports)
		return
	}

	var recordRepo domain.ExerciseRecordRepository = repository.NewMongoExerciseRecordRepository(db)
	if opts.dryRun {
		recordRepo = repository.NewMemoryExerciseRecordRepository()
		fmt.Println("🏃 DRY RUN - records are replayed into memory")
	}

	var cache domain.ProgressCache
	if *redisAddr != "" && !opts.dryRun {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     *redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		defer redisClient.Close()
		cache = repository.NewRedisCacheRepository(redisClient)
	}

	progress := service.NewProgressService(
		func(userID string) domain.RecordStore {
			return repository.NewCachedRecordStore(userID, recordRepo)
		},
		nil, historyRepo, cache, service.NewLogNotifier(), nil, service.ProgressConfig{},
	)

	sum := &summary{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)

	for _, userID := range users {
		userID := userID
		g.Go(func() error {
			res, err := rebuildUser(gctx, opts, progress, exports, userID)
			sum.add(userID, res, err)
			if err != nil {
				fmt.Printf("❌ %s: %v\n", userID, err)
				return nil
			}
			fmt.Printf("✅ %s: %d workouts, %d applied, %d skipped, %d records (%s)\n",
				userID, res.Workouts, res.Applied, res.Skipped, res.Records, res.Duration.Round(time.Millisecond))
			return nil
		})
	}
	_ = g.Wait()

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("✅ Summary:\n")
	fmt.Printf("   Users processed: %d (failed: %d)\n", sum.users, sum.failed)
	fmt.Printf("   Workouts read: %d\n", sum.workouts)
	fmt.Printf("   Workouts applied: %d\n", sum.applied)
	fmt.Printf("   Entries skipped: %d\n", sum.skipped)
	fmt.Printf("   Record events: %d\n", sum.events)
	fmt.Printf("   Exercise records: %d\n", sum.records)

	if opts.dryRun {
		fmt.Println("\n⚠️  This was a dry run. No changes were made.")
		fmt.Println("   Run without -dry-run to apply changes.")
	}
	if sum.errs != nil {
		for _, err := range multierr.Errors(sum.errs) {
			log.Error(err)
		}
		os.Exit(1)
	}
}

func validate(opts cliOptions) error {
	if opts.userID == "" && !opts.all {
		return fmt.Errorf("one of -user or -all is required")
	}
	if opts.userID != "" && opts.all {
		return fmt.Errorf("-user and -all are exclusive")
	}
	if opts.concurrency < 1 {
		return fmt.Errorf("-concurrency must be at least 1")
	}
	switch opts.source {
	case sourceMongo:
	case sourceS3:
		if opts.key == "" {
			return fmt.Errorf("-key is required with -source s3")
		}
	case sourceFile:
		if opts.file == "" {
			return fmt.Errorf("-file is required with -source file")
		}
	default:
		return fmt.Errorf("unknown source %q", opts.source)
	}
	if opts.all && opts.source != sourceMongo {
		return fmt.Errorf("-all only works with -source mongo; an export holds one user")
	}
	if opts.export && opts.source != sourceMongo {
		return fmt.Errorf("-export reads from mongo")
	}
	return nil
}

func rebuildUser(
	ctx context.Context,
	opts cliOptions,
	progress *service.ProgressService,
	exports *repository.S3HistoryExportRepository,
	userID string,
) (*domain.RebuildResult, error) {
	switch opts.source {
	case sourceS3:
		cursor, err := exports.Open(ctx, opts.key)
		if err != nil {
			return nil, err
		}
		defer cursor.Close(ctx)
		return progress.RebuildFrom(ctx, userID, cursor)
	case sourceFile:
		f, err := os.Open(opts.file)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrHistoryUnreadable, err)
		}
		defer f.Close()
		return progress.RebuildFrom(ctx, userID, repository.NewJSONHistoryCursor(f))
	default:
		return progress.Rebuild(ctx, userID)
	}
}

// runExport copies each user's stored history into one S3 object
func runExport(
	ctx context.Context,
	opts cliOptions,
	users []string,
	historyRepo domain.WorkoutHistoryRepository,
	exports *repository.S3HistoryExportRepository,
) {
	var (
		mu   sync.Mutex
		errs error
		n    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)

	for _, userID := range users {
		userID := userID
		g.Go(func() error {
			key, count, err := exportUser(gctx, historyRepo, exports, userID, opts.dryRun)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("user %s: %w", userID, err))
				fmt.Printf("❌ %s: %v\n", userID, err)
				return nil
			}
			n++
			fmt.Printf("📦 %s: %d workouts -> %s\n", userID, count, key)
			return nil
		})
	}
	_ = g.Wait()

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("✅ Exported %d of %d user(s)\n", n, len(users))
	if errs != nil {
		os.Exit(1)
	}
}

func exportUser(
	ctx context.Context,
	historyRepo domain.WorkoutHistoryRepository,
	exports *repository.S3HistoryExportRepository,
	userID string,
	dryRun bool,
) (string, int, error) {
	cursor, err := historyRepo.Cursor(ctx, userID)
	if err != nil {
		return "", 0, err
	}
	defer cursor.Close(ctx)

	var workouts []*domain.HistoryWorkout
	for cursor.Next(ctx) {
		w, err := cursor.Decode()
		if err != nil {
			log.WithField("user_id", userID).Warnf("skipping undecodable workout: %s", err)
			continue
		}
		workouts = append(workouts, w)
	}
	if err := cursor.Err(); err != nil {
		return "", 0, err
	}

	key := repository.ExportKey(userID, time.Now())
	if dryRun {
		return key + " (dry run)", len(workouts), nil
	}
	if err := exports.Upload(ctx, key, workouts); err != nil {
		return "", 0, err
	}
	return key, len(workouts), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
