package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_BuildKey(t *testing.T) {
	c := NewRedisCache(nil, " checkin:delivery ", time.Hour)
	assert.Equal(t, "checkin:delivery:U1:evt:Ev1", c.buildKey("U1:evt:Ev1"))

	bare := NewRedisCache(nil, "", time.Hour)
	assert.Equal(t, "U1:evt:Ev1", bare.buildKey("U1:evt:Ev1"))
}

func TestRedisCache_NilClientIsNoop(t *testing.T) {
	c := NewRedisCache(nil, "p", time.Hour)

	seen, err := c.Seen(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, c.Remember(context.Background(), "k"))

	var missing *RedisCache
	seen, err = missing.Seen(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	c := NewRedisCache(client, "checkin:delivery", 10*time.Minute)

	seen, err := c.Seen(ctx, "U1:evt:Ev1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, c.Remember(ctx, "U1:evt:Ev1"))

	seen, err = c.Seen(ctx, "U1:evt:Ev1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = c.Seen(ctx, "U1:evt:Ev2")
	require.NoError(t, err)
	assert.False(t, seen)

	assert.True(t, mr.Exists("checkin:delivery:U1:evt:Ev1"))
	assert.Equal(t, 10*time.Minute, mr.TTL("checkin:delivery:U1:evt:Ev1"))

	mr.FastForward(10 * time.Minute)
	seen, err = c.Seen(ctx, "U1:evt:Ev1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisCache_RememberKeepsFirstWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	c := NewRedisCache(client, "p", time.Minute)
	require.NoError(t, c.Remember(ctx, "k"))

	mr.FastForward(30 * time.Second)
	require.NoError(t, c.Remember(ctx, "k"))
	assert.Equal(t, 30*time.Second, mr.TTL("p:k"))
}

func TestRedisCache_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	_, err := NewRedisCache(client, "p", time.Minute).Seen(context.Background(), "k")
	assert.Error(t, err)
}
