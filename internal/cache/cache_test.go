package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisCache(client, "leadgen:")
}

func TestRedisCache_SetGet(t *testing.T) {
	mr, c := newMiniRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "geo:mumbai", []byte(`{"lat":19.07}`), time.Hour))

	val, ok, err := c.Get(ctx, "geo:mumbai")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"lat":19.07}`, string(val))

	assert.True(t, mr.Exists("leadgen:geo:mumbai"))
	assert.Equal(t, time.Hour, mr.TTL("leadgen:geo:mumbai"))
}

func TestRedisCache_MissAndExpiry(t *testing.T) {
	mr, c := newMiniRedis(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "token", []byte("owner-1"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err = c.Get(ctx, "token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Errors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCache(client, "")
	ctx := context.Background()

	mock.ExpectGet("k").SetErr(errors.New("connection refused"))
	_, _, err := c.Get(ctx, "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: redis get k")

	mock.ExpectSet("k", []byte("v"), time.Second).SetErr(errors.New("readonly"))
	err = c.Set(ctx, "k", []byte("v"), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: redis set k")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := DialRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close() //nolint:errcheck

	_, err = DialRedis(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))

	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", string(v))

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok)

	v, ok, _ = c.Get(ctx, "b")
	assert.True(t, ok)
	assert.Equal(t, "2", string(v))
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, 0))
	buf[0] = 'x'

	v, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(v))
}

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*MemoryCache)(nil)
)
