package stream

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published on StreamGeneratorEvents.
const (
	EventGeneratorCreated = "generator.created"
	EventGeneratorRemoved = "generator.removed"
	EventClockRegression  = "clock.regression"
	EventLeaseLost        = "lease.lost"
)

type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Instance  string         `json:"instance"`
	NodeID    int64          `json:"node_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type Producer struct {
	stream   *RedisStream
	instance string
}

func NewProducer(stream *RedisStream, instance string) *Producer {
	return &Producer{stream: stream, instance: instance}
}

func (p *Producer) publish(ctx context.Context, typ string, nodeID int64, payload map[string]any) (string, error) {
	ev := &Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Instance:  p.instance,
		NodeID:    nodeID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	return p.stream.Publish(ctx, StreamGeneratorEvents, ev)
}

func (p *Producer) PublishGeneratorCreated(ctx context.Context, nodeID int64, layout string) (string, error) {
	return p.publish(ctx, EventGeneratorCreated, nodeID, map[string]any{"layout": layout})
}

func (p *Producer) PublishGeneratorRemoved(ctx context.Context, nodeID int64) (string, error) {
	return p.publish(ctx, EventGeneratorRemoved, nodeID, nil)
}

func (p *Producer) PublishClockRegression(ctx context.Context, nodeID, deltaMs int64, refused bool) (string, error) {
	return p.publish(ctx, EventClockRegression, nodeID, map[string]any{
		"delta_ms": deltaMs,
		"refused":  refused,
	})
}

func (p *Producer) PublishLeaseLost(ctx context.Context, nodeID int64) (string, error) {
	return p.publish(ctx, EventLeaseLost, nodeID, nil)
}
