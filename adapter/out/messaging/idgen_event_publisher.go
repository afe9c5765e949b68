// Package messaging publishes generator events to Redis Streams.
package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"idgen_server/core/domain"
	"idgen_server/core/port/out"
	"idgen_server/internal/stream"
	"idgen_server/pkg/logger"
)

var (
	_ out.GeneratorEvents = (*EventPublisher)(nil)
	_ out.GeneratorEvents = NopEvents{}
)

const (
	defaultQueueSize      = 1024
	defaultPublishTimeout = 2 * time.Second
)

// EventPublisher queues events and writes them from a single goroutine.
// Callers never wait on Redis; when the queue is full the event is dropped
// and counted.
type EventPublisher struct {
	producer *stream.Producer
	queue    chan func(ctx context.Context) error
	timeout  time.Duration
	log      *logger.Logger

	dropped atomic.Int64
	once    sync.Once
	done    chan struct{}
}

func NewEventPublisher(producer *stream.Producer, queueSize int) *EventPublisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &EventPublisher{
		producer: producer,
		queue:    make(chan func(ctx context.Context) error, queueSize),
		timeout:  defaultPublishTimeout,
		log:      logger.WithField("component", "event-publisher"),
		done:     make(chan struct{}),
	}
}

// Start drains the queue until ctx is cancelled. Queued events are flushed
// before it returns.
func (p *EventPublisher) Start(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case job := <-p.queue:
			p.run(job)
		case <-ctx.Done():
			for {
				select {
				case job := <-p.queue:
					p.run(job)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Start has returned.
func (p *EventPublisher) Wait() { <-p.done }

// Dropped reports how many events were discarded on a full queue.
func (p *EventPublisher) Dropped() int64 { return p.dropped.Load() }

func (p *EventPublisher) run(job func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := job(ctx); err != nil {
		p.log.WithError(err).Warn("failed to publish generator event")
	}
}

func (p *EventPublisher) enqueue(job func(ctx context.Context) error) {
	select {
	case p.queue <- job:
	default:
		if p.dropped.Add(1) == 1 {
			p.log.Warn("event queue full, dropping events")
		}
	}
}

func (p *EventPublisher) GeneratorCreated(_ context.Context, info domain.GeneratorInfo) {
	p.enqueue(func(ctx context.Context) error {
		_, err := p.producer.PublishGeneratorCreated(ctx, info.NodeID, info.Layout)
		return err
	})
}

func (p *EventPublisher) GeneratorRemoved(_ context.Context, nodeID int64) {
	p.enqueue(func(ctx context.Context) error {
		_, err := p.producer.PublishGeneratorRemoved(ctx, nodeID)
		return err
	})
}

func (p *EventPublisher) ClockRegression(_ context.Context, nodeID, deltaMs int64, refused bool) {
	p.enqueue(func(ctx context.Context) error {
		_, err := p.producer.PublishClockRegression(ctx, nodeID, deltaMs, refused)
		return err
	})
}

// LeaseLost is sent by the node lease watchdog.
func (p *EventPublisher) LeaseLost(nodeID int64) {
	p.enqueue(func(ctx context.Context) error {
		_, err := p.producer.PublishLeaseLost(ctx, nodeID)
		return err
	})
}

// NopEvents discards every event. It is used when Redis is not configured.
type NopEvents struct{}

func (NopEvents) GeneratorCreated(context.Context, domain.GeneratorInfo) {}
func (NopEvents) GeneratorRemoved(context.Context, int64)                {}
func (NopEvents) ClockRegression(context.Context, int64, int64, bool)    {}
