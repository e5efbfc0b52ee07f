package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mansoorceksport/ironlog/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	RecordEventsChannel = "progress:records"
	StreakEventsChannel = "progress:streaks"
)

// RedisEventPublisher hands committed progress events to the notification
// workers over Redis pub/sub
type RedisEventPublisher struct {
	client *redis.Client
}

func NewRedisEventPublisher(client *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{client: client}
}

func (p *RedisEventPublisher) NotifyRecords(ctx context.Context, events []domain.RecordEvent) error {
	if len(events) == 0 {
		return nil
	}
	ctx, span := otel.Tracer("redis").Start(ctx, "redis.PublishRecords",
		trace.WithAttributes(attribute.Int("events.count", len(events))),
	)
	defer span.End()

	pipe := p.client.Pipeline()
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal record event: %w", err)
		}
		pipe.Publish(ctx, RecordEventsChannel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("publish record events: %w", err)
	}
	return nil
}

func (p *RedisEventPublisher) NotifyStreak(ctx context.Context, t domain.StreakTransition) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal streak transition: %w", err)
	}
	if err := p.client.Publish(ctx, StreakEventsChannel, data).Err(); err != nil {
		return fmt.Errorf("publish streak transition: %w", err)
	}
	return nil
}
