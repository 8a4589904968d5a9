package customer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and a RedisCache pointing at it
func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, ttl), mr
}

func TestRedisCache_Get_Success(t *testing.T) {
	cache, mr := setupTestRedis(t, time.Minute)

	data, _ := json.Marshal(Profile{CustomerID: "c42", Tier: "gold", PointsBalance: 1200})
	require.NoError(t, mr.Set(cacheKey("c42"), string(data)))

	profile, err := cache.Get(context.Background(), "c42")
	require.NoError(t, err)
	assert.Equal(t, "gold", profile.Tier)
	assert.Equal(t, int64(1200), profile.PointsBalance)
}

func TestRedisCache_Get_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t, time.Minute)

	profile, err := cache.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, profile)
}

func TestRedisCache_Get_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t, time.Minute)
	require.NoError(t, mr.Set(cacheKey("c1"), "{not json"))

	_, err := cache.Get(context.Background(), "c1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
	assert.Contains(t, err.Error(), "unmarshal profile failed")
}

func TestRedisCache_Get_ConnectionError(t *testing.T) {
	cache, mr := setupTestRedis(t, time.Minute)
	mr.Close()

	_, err := cache.Get(context.Background(), "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis get failed")
}

func TestRedisCache_Set_WithJitteredTTL(t *testing.T) {
	cache, mr := setupTestRedis(t, 10*time.Minute)

	require.NoError(t, cache.Set(context.Background(), &Profile{CustomerID: "c7", Tier: "silver", PointsBalance: 5}))

	assert.True(t, mr.Exists(cacheKey("c7")))
	ttl := mr.TTL(cacheKey("c7"))
	assert.GreaterOrEqual(t, ttl, 10*time.Minute)
	assert.Less(t, ttl, 12*time.Minute)

	got, err := cache.Get(context.Background(), "c7")
	require.NoError(t, err)
	assert.Equal(t, "silver", got.Tier)
}

func TestRedisCache_Set_Expires(t *testing.T) {
	cache, mr := setupTestRedis(t, time.Minute)
	require.NoError(t, cache.Set(context.Background(), &Profile{CustomerID: "c7"}))

	mr.FastForward(2 * time.Minute)

	_, err := cache.Get(context.Background(), "c7")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Delete(t *testing.T) {
	cache, mr := setupTestRedis(t, time.Minute)
	require.NoError(t, cache.Set(context.Background(), &Profile{CustomerID: "c7"}))

	require.NoError(t, cache.Delete(context.Background(), "c7"))
	assert.False(t, mr.Exists(cacheKey("c7")))

	// deleting a missing key is not an error
	require.NoError(t, cache.Delete(context.Background(), "c7"))
}

func TestNewRedisCache_DefaultTTL(t *testing.T) {
	cache := NewRedisCache(nil, 0)
	assert.Equal(t, DefaultCacheTTL, cache.baseTTL)
}
