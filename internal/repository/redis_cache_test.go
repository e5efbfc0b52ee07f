package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type cachedRecord struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestRedisCache_RecordsRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	cache := NewRedisCacheRepository(client)

	var dest []cachedRecord
	assert.ErrorIs(t, cache.GetRecords(ctx, "u1", &dest), ErrCacheMiss)

	in := []cachedRecord{{Name: "squat", Value: 140}, {Name: "bench press", Value: 100}}
	require.NoError(t, cache.SetRecords(ctx, "u1", in, time.Minute))
	assert.True(t, mr.Exists("member:records:u1"))

	require.NoError(t, cache.GetRecords(ctx, "u1", &dest))
	assert.Equal(t, in, dest)
}

func TestRedisCache_TTL(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	cache := NewRedisCacheRepository(client)

	require.NoError(t, cache.SetRecords(ctx, "u1", []cachedRecord{}, 5*time.Minute))
	assert.Equal(t, 5*time.Minute, mr.TTL("member:records:u1"))

	mr.FastForward(6 * time.Minute)
	var dest []cachedRecord
	assert.ErrorIs(t, cache.GetRecords(ctx, "u1", &dest), ErrCacheMiss)
}

func TestRedisCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	cache := NewRedisCacheRepository(client)

	for _, user := range []string{"u1", "u2"} {
		require.NoError(t, cache.SetRecords(ctx, user, []cachedRecord{{Name: "squat"}}, time.Minute))
	}

	require.NoError(t, cache.InvalidateRecords(ctx, "u1"))
	assert.False(t, mr.Exists("member:records:u1"))
	assert.True(t, mr.Exists("member:records:u2"))

	// invalidating twice is fine
	assert.NoError(t, cache.InvalidateRecords(ctx, "u1"))
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	cache := NewRedisCacheRepository(client)

	require.NoError(t, mr.Set("member:records:u1", "{not json"))

	var dest []cachedRecord
	err := cache.GetRecords(ctx, "u1", &dest)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_ServerDown(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	cache := NewRedisCacheRepository(client)
	mr.Close()

	var dest []cachedRecord
	err := cache.GetRecords(ctx, "u1", &dest)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
	assert.Error(t, cache.SetRecords(ctx, "u1", dest, time.Minute))
}
