package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerConsumer(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rs := NewRedisStream(client, "audit")
	var (
		mu  sync.Mutex
		got []*Event
	)
	received := make(chan struct{}, 4)

	consumer := NewConsumer(rs, func(_ context.Context, ev *Event) error {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		received <- struct{}{}
		return nil
	}, "test")
	consumer.block = 50 * time.Millisecond
	require.NoError(t, consumer.Start(ctx))
	// Creating the group twice is fine.
	require.NoError(t, rs.CreateGroup(ctx, StreamGeneratorEvents))

	p := NewProducer(rs, "host-1")
	_, err := p.PublishGeneratorCreated(ctx, 3, "41/10/12")
	require.NoError(t, err)
	_, err = p.PublishClockRegression(ctx, 3, 4, false)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-ctx.Done():
			t.Fatal("timed out waiting for events")
		}
	}

	require.Eventually(t, func() bool {
		n, err := consumer.Pending(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond, "handled events should be acked")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, EventGeneratorCreated, got[0].Type)
	assert.Equal(t, "host-1", got[0].Instance)
	assert.Equal(t, int64(3), got[0].NodeID)
	assert.Equal(t, "41/10/12", got[0].Payload["layout"])
	assert.Equal(t, EventClockRegression, got[1].Type)
	assert.Equal(t, float64(4), got[1].Payload["delta_ms"])
}

func TestPendingAfterHandlerError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rs := NewRedisStream(client, "audit")
	require.NoError(t, rs.CreateGroup(ctx, StreamGeneratorEvents))

	_, err := NewProducer(rs, "h").PublishGeneratorRemoved(ctx, 1)
	require.NoError(t, err)

	done := make(chan struct{})
	consumeCtx, stop := context.WithCancel(ctx)
	go func() {
		defer close(done)
		rs.Consume(consumeCtx, StreamGeneratorEvents, "c", 20*time.Millisecond, func(string, []byte) error {
			stop()
			return assert.AnError
		})
	}()
	<-done

	n, err := rs.Pending(ctx, StreamGeneratorEvents)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
