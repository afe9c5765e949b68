package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter(t *testing.T) {
	rl := NewMemoryLimiter(3, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 2; i >= 0; i-- {
		res := rl.Allow(ctx, "1.2.3.4")
		require.True(t, res.Allowed)
		assert.Equal(t, i, res.Remaining)
	}

	res := rl.Allow(ctx, "1.2.3.4")
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.RetryAfter)

	// Other keys have their own window.
	assert.True(t, rl.Allow(ctx, "5.6.7.8").Allowed)

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow(ctx, "1.2.3.4").Allowed)
}

func TestSlidingWindowLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	l := New(client, &Config{RequestsPerWindow: 2, Window: time.Minute})
	_, isRedis := l.(*SlidingWindowLimiter)
	require.True(t, isRedis)

	first := l.Allow(ctx, "k")
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)
	assert.True(t, l.Allow(ctx, "k").Allowed)

	denied := l.Allow(ctx, "k")
	assert.False(t, denied.Allowed)
	assert.Greater(t, denied.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, denied.RetryAfter, time.Minute)

	assert.True(t, mr.Exists("ratelimit:k"))
	assert.True(t, l.Allow(ctx, "other").Allowed)
}

func TestSlidingWindowFallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	l := New(client, &Config{RequestsPerWindow: 1, Window: time.Minute})
	ctx := context.Background()
	assert.True(t, l.Allow(ctx, "k").Allowed)
	assert.False(t, l.Allow(ctx, "k").Allowed, "fallback should still enforce the limit")
}

func TestNewWithoutRedis(t *testing.T) {
	_, isMem := New(nil, nil).(*MemoryLimiter)
	assert.True(t, isMem)
}

func TestProtector(t *testing.T) {
	p := NewProtector(NewMemoryLimiter(10, time.Minute), 1)
	ctx := context.Background()

	res, release := p.Acquire(ctx, "a")
	require.True(t, res.Allowed)
	require.NotNil(t, release)

	res, r2 := p.Acquire(ctx, "b")
	assert.False(t, res.Allowed, "concurrency cap reached")
	assert.Nil(t, r2)

	release()
	res, release = p.Acquire(ctx, "b")
	assert.True(t, res.Allowed)
	release()
}
