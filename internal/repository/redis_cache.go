package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const memberRecordsKeyPrefix = "member:records:"

var ErrCacheMiss = errors.New("cache miss")

// RedisCacheRepository implements domain.ProgressCache. Entries are JSON so
// every API instance can read what another one wrote.
type RedisCacheRepository struct {
	client *redis.Client
}

func NewRedisCacheRepository(client *redis.Client) *RedisCacheRepository {
	return &RedisCacheRepository{client: client}
}

func recordsKey(userID string) string {
	return memberRecordsKeyPrefix + userID
}

func startCacheSpan(ctx context.Context, op, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("cache.key", key))
	return otel.Tracer("redis").Start(ctx, "redis."+op, trace.WithAttributes(attrs...))
}

// GetRecords decodes a member's cached record list into dest.
// ErrCacheMiss means nothing is cached.
func (r *RedisCacheRepository) GetRecords(ctx context.Context, userID string, dest interface{}) error {
	key := recordsKey(userID)
	ctx, span := startCacheSpan(ctx, "GetRecords", key)
	defer span.End()

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		span.SetAttributes(attribute.String("cache.result", "miss"))
		return ErrCacheMiss
	case err != nil:
		span.RecordError(err)
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	span.SetAttributes(attribute.String("cache.result", "hit"))
	if err := json.Unmarshal(data, dest); err != nil {
		span.RecordError(err)
		return fmt.Errorf("decode cached records: %w", err)
	}
	return nil
}

// SetRecords caches a member's record list for ttl
func (r *RedisCacheRepository) SetRecords(ctx context.Context, userID string, data interface{}, ttl time.Duration) error {
	key := recordsKey(userID)
	ctx, span := startCacheSpan(ctx, "SetRecords", key, attribute.Int64("cache.ttl_seconds", int64(ttl.Seconds())))
	defer span.End()

	payload, err := json.Marshal(data)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("encode records: %w", err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// InvalidateRecords drops a member's cached record list. Called whenever a
// record changes or the records are rebuilt.
func (r *RedisCacheRepository) InvalidateRecords(ctx context.Context, userID string) error {
	key := recordsKey(userID)
	ctx, span := startCacheSpan(ctx, "InvalidateRecords", key)
	defer span.End()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
