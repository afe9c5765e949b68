package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/redis/go-redis/v9"

	"idgen_server/pkg/logger"
)

// RedisCache Redis 기반 캐시 구현
type RedisCache struct {
	client redis.UniversalClient
	log    *logger.Logger
}

// NewRedisCache 새 Redis 캐시 생성
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client, log: logger.Default().WithField("component", "cache")}
}

// Client returns the underlying connection.
func (c *RedisCache) Client() redis.UniversalClient {
	return c.client
}

// Get 캐시에서 값 조회
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Set 캐시에 값 저장
func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Delete 캐시에서 키 삭제
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Exists 키 존재 여부 확인
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.client.Exists(ctx, key).Result()
	return result > 0, err
}

// GetJSON reports false with a nil error when the key is missing.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, err
	}

	return true, nil
}

// SetJSON 값을 JSON으로 저장
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Increment 값 증가
func (c *RedisCache) Increment(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, key).Result()
}

// Expire TTL 설정
func (c *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Expire(ctx, key, ttl).Err()
}

// TTL 남은 TTL 조회
func (c *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.client.TTL(ctx, key).Result()
}

// TryExecute runs fn and logs any error instead of returning it. It reports
// whether fn succeeded. Cache writes that must never fail a request go
// through here.
func (c *RedisCache) TryExecute(ctx context.Context, op string, fn func(ctx context.Context, client redis.UniversalClient) error) bool {
	if err := fn(ctx, c.client); err != nil {
		c.log.WithError(err).WithField("op", op).Warn("redis operation failed")
		return false
	}
	return true
}

// Close 연결 종료
func (c *RedisCache) Close() error {
	return c.client.Close()
}
