package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idgen_server/core/domain"
	"idgen_server/internal/stream"
)

func TestEventPublisher_FlushesOnShutdown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	producer := stream.NewProducer(stream.NewRedisStream(client, "audit"), "host-1")
	pub := NewEventPublisher(producer, 16)

	ctx, cancel := context.WithCancel(context.Background())
	go pub.Start(ctx)

	pub.GeneratorCreated(ctx, domain.GeneratorInfo{NodeID: 1, Layout: "41/10/12"})
	pub.ClockRegression(ctx, 1, 3, false)
	pub.GeneratorRemoved(ctx, 1)
	pub.LeaseLost(1)

	cancel()
	select {
	case <-waitChan(pub):
	case <-time.After(5 * time.Second):
		t.Fatal("publisher did not stop")
	}

	n, err := client.XLen(context.Background(), stream.StreamGeneratorEvents).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Zero(t, pub.Dropped())
}

func TestEventPublisher_DropsWhenFull(t *testing.T) {
	pub := NewEventPublisher(nil, 1)

	// Nothing drains the queue, so only the first event fits.
	pub.GeneratorRemoved(context.Background(), 1)
	pub.GeneratorRemoved(context.Background(), 2)
	pub.GeneratorRemoved(context.Background(), 3)

	assert.Equal(t, int64(2), pub.Dropped())
}

func TestNopEvents(t *testing.T) {
	var ev NopEvents
	assert.NotPanics(t, func() {
		ev.GeneratorCreated(context.Background(), domain.GeneratorInfo{})
		ev.GeneratorRemoved(context.Background(), 1)
		ev.ClockRegression(context.Background(), 1, 2, true)
	})
}

func waitChan(p *EventPublisher) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		p.Wait()
		close(ch)
	}()
	return ch
}
