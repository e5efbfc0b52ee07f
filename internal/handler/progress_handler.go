package handler

import (
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/ironlog/internal/domain"
	"github.com/mansoorceksport/ironlog/internal/middleware"
	"github.com/mansoorceksport/ironlog/internal/service"
	"github.com/mansoorceksport/ironlog/internal/telemetry"
	log "github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

type ProgressHandler struct {
	progressService *service.ProgressService
	now             func() time.Time
}

func NewProgressHandler(progressService *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{
		progressService: progressService,
		now:             time.Now,
	}
}

// --- Request DTOs ---

type setRequest struct {
	WorkoutID    string     `json:"workout_id"`
	WorkoutDate  string     `json:"workout_date"` // YYYY-MM-DD or RFC3339, defaults to today
	ExerciseName string     `json:"exercise_name"`
	MuscleGroup  string     `json:"muscle_group"`
	Weight       float64    `json:"weight"`
	Reps         int        `json:"reps"`
	IsWarmup     bool       `json:"is_warmup"`
	IsBodyweight bool       `json:"is_bodyweight"`
	CompletedAt  *time.Time `json:"completed_at"` // defaults to now, see completedOrNow
	Bodyweight   float64    `json:"bodyweight"`
}

// workoutRequest sets follow the same completed_at rule as setRequest
type workoutRequest struct {
	WorkoutID  string                   `json:"workout_id"`
	Date       string                   `json:"date"`
	Bodyweight float64                  `json:"bodyweight"`
	Exercises  []domain.HistoryExercise `json:"exercises"`
}

type sessionRequest struct {
	Today string `json:"today"` // the client's calendar day
}

type pauseRequest struct {
	Paused *bool `json:"paused"`
}

type settingsRequest struct {
	RestDaysPerWeek *int `json:"rest_days_per_week"`
}

// --- Records ---

// LogSet POST /v1/me/sets
func (h *ProgressHandler) LogSet(c *fiber.Ctx) error {
	var req setRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	if domain.NormalizeExerciseName(req.ExerciseName) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": domain.ErrMissingExercise.Error()})
	}
	if req.Weight < 0 || req.Reps < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "weight and reps must not be negative"})
	}

	date, err := h.parseDate(req.WorkoutDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	userID := middleware.UserID(c)
	telemetry.SetSpanAttribute(c, "user.id", userID)

	events, err := h.progressService.LogSet(c.UserContext(), userID, service.SetEntry{
		ExerciseName: req.ExerciseName,
		MuscleGroup:  req.MuscleGroup,
		Set: domain.WorkoutSet{
			Weight:       req.Weight,
			Reps:         req.Reps,
			IsWarmup:     req.IsWarmup,
			IsBodyweight: req.IsBodyweight,
			CompletedAt:  h.completedOrNow(req.CompletedAt),
		},
		WorkoutDate: date,
		WorkoutID:   req.WorkoutID,
		Bodyweight:  req.Bodyweight,
	})
	if err != nil {
		return errorResponse(c, err)
	}

	if events == nil {
		events = []domain.RecordEvent{}
	}
	return c.JSON(fiber.Map{"events": events})
}

// CompleteWorkout POST /v1/me/workouts
func (h *ProgressHandler) CompleteWorkout(c *fiber.Ctx) error {
	var req workoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	for _, ex := range req.Exercises {
		if domain.NormalizeExerciseName(ex.Name) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": domain.ErrMissingExercise.Error()})
		}
	}

	date, err := h.parseDate(req.Date)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	userID := middleware.UserID(c)
	telemetry.SetSpanAttribute(c, "user.id", userID)

	exercises := make([]domain.HistoryExercise, len(req.Exercises))
	for i, ex := range req.Exercises {
		sets := make([]domain.WorkoutSet, len(ex.Sets))
		for j, set := range ex.Sets {
			set.CompletedAt = h.completedOrNow(set.CompletedAt)
			sets[j] = set
		}
		ex.Sets = sets
		exercises[i] = ex
	}

	result, err := h.progressService.CompleteWorkout(c.UserContext(), userID, service.WorkoutInput{
		WorkoutID:  req.WorkoutID,
		Date:       date,
		Bodyweight: req.Bodyweight,
		Exercises:  exercises,
	})
	if err != nil {
		return errorResponse(c, err)
	}

	if result.Events == nil {
		result.Events = []domain.RecordEvent{}
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// completedOrNow stamps a set sent without completed_at: a set that reaches
// the API was performed. Sets and workouts must agree for rebuilds to match.
func (h *ProgressHandler) completedOrNow(at *time.Time) *time.Time {
	if at != nil {
		return at
	}
	now := h.now()
	return &now
}

// ListRecords GET /v1/me/records
func (h *ProgressHandler) ListRecords(c *fiber.Ctx) error {
	records, err := h.progressService.GetRecords(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	if records == nil {
		records = []*domain.ExerciseRecord{}
	}
	return c.JSON(records)
}

// GetRecord GET /v1/me/records/:exercise
func (h *ProgressHandler) GetRecord(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("exercise"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid exercise name"})
	}
	record, err := h.progressService.GetRecord(c.UserContext(), middleware.UserID(c), name)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(record)
}

// RebuildRecords POST /v1/me/records/rebuild
func (h *ProgressHandler) RebuildRecords(c *fiber.Ctx) error {
	if err := h.progressService.StartRebuild(middleware.UserID(c)); err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "rebuild started"})
}

// --- Streak ---

// GetStreak GET /v1/me/streak
func (h *ProgressHandler) GetStreak(c *fiber.Ctx) error {
	state, err := h.progressService.GetStreak(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(streakResponse(state))
}

// StartSession POST /v1/me/session
func (h *ProgressHandler) StartSession(c *fiber.Ctx) error {
	var req sessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
		}
	}
	today, err := h.parseDate(req.Today)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	state, tr, err := h.progressService.StartSession(c.UserContext(), middleware.UserID(c), today)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"streak":     streakResponse(state),
		"transition": tr,
	})
}

// SetPaused PUT /v1/me/streak/pause
func (h *ProgressHandler) SetPaused(c *fiber.Ctx) error {
	var req pauseRequest
	if err := c.BodyParser(&req); err != nil || req.Paused == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "paused is required"})
	}

	state, tr, err := h.progressService.SetPaused(c.UserContext(), middleware.UserID(c), *req.Paused)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"streak":     streakResponse(state),
		"transition": tr,
	})
}

// UpdateSettings PUT /v1/me/streak/settings
func (h *ProgressHandler) UpdateSettings(c *fiber.Ctx) error {
	var req settingsRequest
	if err := c.BodyParser(&req); err != nil || req.RestDaysPerWeek == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rest_days_per_week is required"})
	}

	state, err := h.progressService.SetRestDays(c.UserContext(), middleware.UserID(c), *req.RestDaysPerWeek)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(streakResponse(state))
}

// --- Helpers ---

func streakResponse(state *domain.StreakState) fiber.Map {
	return fiber.Map{
		"current_streak":     state.CurrentStreak,
		"longest_streak":     state.LongestStreak,
		"last_workout_date":  state.LastWorkoutDate,
		"rest_days_per_week": state.RestDaysPerWeek,
		"is_paused":          state.IsPaused,
		"status":             state.Status(),
	}
}

// parseDate accepts a calendar day or a full timestamp; empty means today
func (h *ProgressHandler) parseDate(s string) (time.Time, error) {
	if s == "" {
		return h.now(), nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, domain.ErrInvalidDate
}

// errorResponse maps service errors to HTTP statuses
func errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrDuplicateWorkout), errors.Is(err, domain.ErrRebuildInProgress):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidDate), errors.Is(err, domain.ErrMissingExercise):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case service.IsStorageError(err), errors.Is(err, domain.ErrHistoryUnreadable):
		log.WithField("path", c.Path()).Errorf("storage unavailable: %s", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "progress storage unavailable, try again"})
	default:
		log.WithField("path", c.Path()).Errorf("request failed: %s", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
