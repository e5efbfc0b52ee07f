package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mansoorceksport/ironlog/internal/config"
	"github.com/mansoorceksport/ironlog/internal/domain"
	"github.com/mansoorceksport/ironlog/internal/handler"
	"github.com/mansoorceksport/ironlog/internal/middleware"
	"github.com/mansoorceksport/ironlog/internal/repository"
	"github.com/mansoorceksport/ironlog/internal/service"
	"github.com/mansoorceksport/ironlog/internal/telemetry"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
)

// AppDependencies holds the dependencies required to start the application
type AppDependencies struct {
	Config      *config.Config
	MongoDB     *mongo.Database
	RedisClient *redis.Client

	// Progress is built from MongoDB and RedisClient when nil
	Progress *Progress
}

// Progress is the progress service together with the streak store the
// expiry sweep reads from
type Progress struct {
	Service *service.ProgressService
	Streaks domain.StreakRepository
}

// NewProgress wires the progress service over Mongo and Redis
func NewProgress(deps AppDependencies) *Progress {
	recordRepo := repository.NewMongoExerciseRecordRepository(deps.MongoDB)
	streakRepo := repository.NewMongoStreakRepository(deps.MongoDB)
	historyRepo := repository.NewMongoWorkoutHistoryRepository(deps.MongoDB)

	var (
		cache    domain.ProgressCache
		notifier domain.EventNotifier
	)
	if deps.RedisClient != nil {
		cache = repository.NewRedisCacheRepository(deps.RedisClient)
		notifier = repository.NewRedisEventPublisher(deps.RedisClient)
	}

	progressCfg := deps.Config.Progress
	svc := service.NewProgressService(
		func(userID string) domain.RecordStore {
			return repository.NewCachedRecordStore(userID, recordRepo)
		},
		streakRepo,
		historyRepo,
		cache,
		notifier,
		telemetry.NewProgressMetrics(),
		service.ProgressConfig{
			DefaultRestDaysPerWeek: progressCfg.DefaultRestDaysPerWeek,
			RecordsCacheTTL:        progressCfg.RecordsCacheTTL,
			RebuildTimeout:         progressCfg.RebuildTimeout,
			StoreCacheSize:         progressCfg.StoreCacheSize,
			StoreMaxAge:            progressCfg.StoreMaxAge,
		},
	)

	return &Progress{Service: svc, Streaks: streakRepo}
}

// NewApp creates and configures the Fiber application with the given dependencies
func NewApp(deps AppDependencies) *fiber.App {
	if deps.Progress == nil {
		deps.Progress = NewProgress(deps)
	}

	progressHandler := handler.NewProgressHandler(deps.Progress.Service)

	app := fiber.New(fiber.Config{
		AppName:      "IronLog Progress API",
		BodyLimit:    int(deps.Config.Server.MaxBodySizeKB * 1024),
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(telemetry.FiberMiddleware())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		AllowMethods: "GET, POST, PUT, OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "ironlog-progress",
		})
	})

	v1 := app.Group("/v1")

	// ===========================================
	// MEMBER API - /v1/me/* (requires 'member' role)
	// ===========================================
	me := v1.Group("/me")
	me.Use(middleware.VerifyToken(deps.Config.JWT.Secret))
	me.Use(middleware.AuthorizeRole(domain.RoleMember))
	if deps.RedisClient != nil {
		me.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Config.Progress.IdempotencyTTL))
	}

	me.Post("/sets", progressHandler.LogSet)
	me.Post("/workouts", progressHandler.CompleteWorkout)
	me.Post("/session", progressHandler.StartSession)

	meRecords := me.Group("/records")
	meRecords.Get("/", progressHandler.ListRecords)
	meRecords.Post("/rebuild", progressHandler.RebuildRecords)
	meRecords.Get("/:exercise", progressHandler.GetRecord)

	meStreak := me.Group("/streak")
	meStreak.Get("/", progressHandler.GetStreak)
	meStreak.Put("/pause", progressHandler.SetPaused)
	meStreak.Put("/settings", progressHandler.UpdateSettings)

	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	log.WithField("path", c.Path()).Errorf("Error: %v", err)
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
