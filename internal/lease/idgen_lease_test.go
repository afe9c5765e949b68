package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestAcquireExclusive(t *testing.T) {
	mr, client := setup(t)
	ctx := context.Background()

	a := New(client, 10*time.Second, "host-a")
	b := New(client, 10*time.Second, "host-b")

	assert.Equal(t, int64(-1), a.NodeID())
	require.NoError(t, a.Acquire(ctx, 7))
	assert.Equal(t, int64(7), a.NodeID())
	mr.CheckGet(t, "idgen:lease:7", a.Owner())

	assert.ErrorIs(t, b.Acquire(ctx, 7), ErrLeaseHeld)
	require.NoError(t, b.Acquire(ctx, 8))

	// Re-acquiring our own node id is allowed.
	require.NoError(t, a.Acquire(ctx, 7))
}

func TestAcquireAfterExpiry(t *testing.T) {
	mr, client := setup(t)
	ctx := context.Background()

	a := New(client, time.Second, "")
	b := New(client, time.Second, "")
	require.NoError(t, a.Acquire(ctx, 1))

	mr.FastForward(2 * time.Second)
	require.NoError(t, b.Acquire(ctx, 1))

	assert.ErrorIs(t, a.Refresh(ctx), ErrLeaseLost)
}

func TestRefreshExtendsTTL(t *testing.T) {
	mr, client := setup(t)
	ctx := context.Background()

	l := New(client, 3*time.Second, "host")
	assert.ErrorIs(t, l.Refresh(ctx), ErrNotAcquired)

	require.NoError(t, l.Acquire(ctx, 3))
	mr.FastForward(2 * time.Second)
	require.NoError(t, l.Refresh(ctx))
	mr.FastForward(2 * time.Second)
	assert.True(t, mr.Exists("idgen:lease:3"))
}

func TestReleaseOnlyOwnKey(t *testing.T) {
	mr, client := setup(t)
	ctx := context.Background()

	a := New(client, time.Minute, "a")
	require.NoError(t, a.Acquire(ctx, 5))

	// Someone else takes over the key behind our back.
	require.NoError(t, mr.Set("idgen:lease:5", "intruder"))
	require.NoError(t, a.Release(ctx))
	mr.CheckGet(t, "idgen:lease:5", "intruder")
	assert.Equal(t, int64(-1), a.NodeID())

	b := New(client, time.Minute, "b")
	mr.Del("idgen:lease:5")
	require.NoError(t, b.Acquire(ctx, 5))
	require.NoError(t, b.Release(ctx))
	assert.False(t, mr.Exists("idgen:lease:5"))
}

func TestRunStopsWhenLeaseLost(t *testing.T) {
	mr, client := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l := New(client, time.Minute, "a")
	require.NoError(t, l.Acquire(ctx, 9))
	mr.Del("idgen:lease:9")

	err := l.Run(ctx, 10*time.Millisecond)
	assert.True(t, errors.Is(err, ErrLeaseLost), "got %v", err)
}

func TestRunStopsOnCancel(t *testing.T) {
	_, client := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	l := New(client, time.Minute, "a")
	require.NoError(t, l.Acquire(ctx, 2))

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, 5*time.Millisecond) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, "closed", l.State())
}

func TestRunClampsTinyInterval(t *testing.T) {
	_, client := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// ttl/3 rounds down to zero here.
	l := New(client, 2*time.Nanosecond, "a")

	err := l.Run(ctx, 0)
	assert.ErrorIs(t, err, ErrNotAcquired)
}
