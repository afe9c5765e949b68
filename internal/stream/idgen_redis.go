package stream

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/redis/go-redis/v9"

	"idgen_server/pkg/logger"
)

const (
	// StreamGeneratorEvents carries generator lifecycle and clock events.
	StreamGeneratorEvents = "idgen:events"

	defaultMaxLen = 10000
)

type RedisStream struct {
	client redis.UniversalClient
	group  string
	maxLen int64
	log    *logger.Logger
}

func NewRedisStream(client redis.UniversalClient, group string) *RedisStream {
	return &RedisStream{
		client: client,
		group:  group,
		maxLen: defaultMaxLen,
		log:    logger.WithField("component", "stream"),
	}
}

func (s *RedisStream) CreateGroup(ctx context.Context, stream string) error {
	err := s.client.XGroupCreateMkStream(ctx, stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Publish appends data as JSON. The stream is trimmed approximately to
// maxLen entries.
func (s *RedisStream) Publish(ctx context.Context, stream string, data any) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{"data": jsonData},
	}).Result()
}

// Consume reads the group until ctx is done. Messages whose handler fails
// stay pending.
func (s *RedisStream) Consume(ctx context.Context, stream, consumer string, block time.Duration, handler func(id string, data []byte) error) {
	if block <= 0 {
		block = 5 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    block,
		}).Result()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, redis.Nil) {
				s.log.WithError(err).Warn("stream read error")
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}

		for _, st := range streams {
			for _, msg := range st.Messages {
				data, ok := msg.Values["data"].(string)
				if !ok {
					continue
				}

				if err := handler(msg.ID, []byte(data)); err != nil {
					s.log.WithError(err).Warn("handler error for %s", msg.ID)
					continue
				}

				if err := s.Ack(ctx, st.Stream, msg.ID); err != nil {
					s.log.WithError(err).Warn("ack failed for %s", msg.ID)
				}
			}
		}
	}
}

func (s *RedisStream) Ack(ctx context.Context, stream, id string) error {
	return s.client.XAck(ctx, stream, s.group, id).Err()
}

// Pending counts entries delivered to the group but not yet acked.
func (s *RedisStream) Pending(ctx context.Context, stream string) (int64, error) {
	info, err := s.client.XPending(ctx, stream, s.group).Result()
	if err != nil {
		return 0, err
	}
	return info.Count, nil
}
