package service

import (
	"context"

	"github.com/mansoorceksport/ironlog/internal/domain"
	log "github.com/sirupsen/logrus"
)

// LogNotifier writes events to the log. Used when no publisher is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) NotifyRecords(_ context.Context, events []domain.RecordEvent) error {
	for _, ev := range events {
		log.WithFields(log.Fields{
			"user_id":  ev.UserID,
			"exercise": ev.ExerciseName,
			"kind":     ev.Kind,
			"value":    ev.Value,
			"reps":     ev.Reps,
		}).Info("🎉 new personal record")
	}
	return nil
}

func (n *LogNotifier) NotifyStreak(_ context.Context, t domain.StreakTransition) error {
	log.WithFields(log.Fields{
		"user_id":  t.UserID,
		"kind":     t.Kind,
		"previous": t.PreviousStreak,
		"current":  t.CurrentStreak,
	}).Info("streak changed")
	return nil
}
