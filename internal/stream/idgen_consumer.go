package stream

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventHandler receives decoded generator events.
type EventHandler func(ctx context.Context, ev *Event) error

type Consumer struct {
	stream  *RedisStream
	handler EventHandler
	name    string
	block   time.Duration
}

func NewConsumer(stream *RedisStream, handler EventHandler, name string) *Consumer {
	return &Consumer{
		stream:  stream,
		handler: handler,
		name:    name,
		block:   5 * time.Second,
	}
}

// Start creates the consumer group and consumes in the background.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.stream.CreateGroup(ctx, StreamGeneratorEvents); err != nil {
		return err
	}
	go c.consume(ctx)
	return nil
}

// Pending reports the group's unacked backlog.
func (c *Consumer) Pending(ctx context.Context) (int64, error) {
	return c.stream.Pending(ctx, StreamGeneratorEvents)
}

func (c *Consumer) consume(ctx context.Context) {
	c.stream.Consume(ctx, StreamGeneratorEvents, c.name, c.block, func(id string, data []byte) error {
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.stream.log.WithError(err).Warn("failed to unmarshal event %s", id)
			return err
		}
		return c.handler(ctx, &ev)
	})
}
