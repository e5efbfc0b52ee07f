package service

import (
	"context"
	"time"

	"github.com/mansoorceksport/ironlog/internal/domain"
	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"
)

// StreakExpiryJob sweeps streaks once a day so users who stopped opening the
// app still see their streak expire.
type StreakExpiryJob struct {
	progress   *ProgressService
	streakRepo domain.StreakRepository
	location   *time.Location
	timeout    time.Duration
	cron       *cron.Cron
}

func NewStreakExpiryJob(progress *ProgressService, streakRepo domain.StreakRepository, location *time.Location) *StreakExpiryJob {
	if location == nil {
		location = time.UTC
	}
	return &StreakExpiryJob{
		progress:   progress,
		streakRepo: streakRepo,
		location:   location,
		timeout:    5 * time.Minute,
	}
}

// Start schedules the sweep. spec is a six-field cron expression (with seconds).
func (j *StreakExpiryJob) Start(spec string) error {
	c := cron.NewWithLocation(j.location)
	if err := c.AddFunc(spec, j.runScheduled); err != nil {
		return err
	}
	c.Start()
	j.cron = c
	log.Printf("✓ Streak expiry sweep scheduled (%s, %s)", spec, j.location)
	return nil
}

// Stop stops the scheduler; a sweep in progress finishes on its own
func (j *StreakExpiryJob) Stop() {
	if j.cron != nil {
		j.cron.Stop()
	}
}

func (j *StreakExpiryJob) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.Run(ctx, time.Now().In(j.location)); err != nil {
		log.Errorf("streak expiry sweep failed: %s", err)
	}
}

// Run expires every streak whose allowance ran out by today and returns how
// many were expired. A failure on one user does not stop the sweep.
func (j *StreakExpiryJob) Run(ctx context.Context, today time.Time) (int, error) {
	states, err := j.streakRepo.ListExpirable(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, st := range states {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		_, tr, err := j.progress.ExpireStreak(ctx, st.UserID, today)
		if err != nil {
			log.WithField("user_id", st.UserID).Warnf("streak expiry failed: %s", err)
			continue
		}
		if tr.Kind == domain.TransitionExpired {
			expired++
		}
	}

	log.WithFields(log.Fields{"checked": len(states), "expired": expired}).Info("streak expiry sweep done")
	return expired, nil
}
