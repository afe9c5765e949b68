// Package ratelimit limits API calls per client key. A Redis sliding window
// is used when Redis is configured; an in-memory fixed window otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerWindow int
	Window            time.Duration
	// MaxConcurrent caps in-flight requests across all keys. Zero disables
	// the cap.
	MaxConcurrent int
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerWindow: 600,
		Window:            time.Minute,
		MaxConcurrent:     256,
	}
}

// Result is the outcome of a single Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter decides whether a request for key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) Result
}

// New picks the Redis limiter when client is non-nil.
func New(client redis.UniversalClient, cfg *Config) Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	mem := NewMemoryLimiter(cfg.RequestsPerWindow, cfg.Window)
	if client == nil {
		return mem
	}
	return NewSlidingWindowLimiter(client, cfg.RequestsPerWindow, cfg.Window, mem)
}

// slidingWindowScript returns remaining capacity (>= 0) when the request
// is admitted, or the negative wait in milliseconds when it is not.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local max_requests = tonumber(ARGV[3])
local window_ms = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

local count = redis.call('ZCARD', key)
if count < max_requests then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window_ms * 2)
	return max_requests - count - 1
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #oldest > 0 then
	local wait = tonumber(oldest[2]) + window_ms - now
	if wait < 1 then wait = 1 end
	return -wait
end
return -window_ms
`)

// SlidingWindowLimiter implements sliding window rate limiting using Redis.
type SlidingWindowLimiter struct {
	redis    redis.UniversalClient
	limit    int
	window   time.Duration
	fallback Limiter

	mu  sync.Mutex
	seq uint64
}

// NewSlidingWindowLimiter creates a Redis limiter. fallback answers while
// Redis is failing; nil admits everything.
func NewSlidingWindowLimiter(client redis.UniversalClient, limit int, window time.Duration, fallback Limiter) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		redis:    client,
		limit:    limit,
		window:   window,
		fallback: fallback,
	}
}

func (l *SlidingWindowLimiter) member(now time.Time) string {
	l.mu.Lock()
	l.seq++
	seq := l.seq
	l.mu.Unlock()
	return fmt.Sprintf("%d-%d", now.UnixNano(), seq)
}

// Allow checks if request is allowed and returns wait duration if not.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) Result {
	now := time.Now()
	windowStart := now.Add(-l.window)
	redisKey := "ratelimit:" + key

	n, err := slidingWindowScript.Run(ctx, l.redis, []string{redisKey},
		now.UnixMilli(),
		windowStart.UnixMilli(),
		l.limit,
		l.window.Milliseconds(),
		l.member(now),
	).Int64()

	if err != nil {
		if l.fallback != nil {
			return l.fallback.Allow(ctx, key)
		}
		return Result{Allowed: true, Limit: l.limit, Remaining: l.limit}
	}

	if n >= 0 {
		return Result{
			Allowed:   true,
			Limit:     l.limit,
			Remaining: int(n),
			ResetAt:   now.Add(l.window),
		}
	}

	wait := time.Duration(-n) * time.Millisecond
	return Result{
		Limit:      l.limit,
		RetryAfter: wait,
		ResetAt:    now.Add(wait),
	}
}

// MemoryLimiter is a per-process fixed window limiter.
type MemoryLimiter struct {
	requests map[string]*requestInfo
	mu       sync.Mutex
	limit    int
	window   time.Duration
	lastGC   time.Time
	now      func() time.Time
}

type requestInfo struct {
	count     int
	expiresAt time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		requests: make(map[string]*requestInfo),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (rl *MemoryLimiter) Allow(_ context.Context, key string) Result {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastGC) > rl.window {
		rl.cleanup(now)
	}

	info, exists := rl.requests[key]
	if !exists || now.After(info.expiresAt) {
		info = &requestInfo{count: 1, expiresAt: now.Add(rl.window)}
		rl.requests[key] = info
		return Result{Allowed: true, Limit: rl.limit, Remaining: rl.limit - 1, ResetAt: info.expiresAt}
	}

	if info.count >= rl.limit {
		return Result{
			Limit:      rl.limit,
			RetryAfter: info.expiresAt.Sub(now),
			ResetAt:    info.expiresAt,
		}
	}

	info.count++
	return Result{Allowed: true, Limit: rl.limit, Remaining: rl.limit - info.count, ResetAt: info.expiresAt}
}

// cleanup drops expired windows. Caller holds mu.
func (rl *MemoryLimiter) cleanup(now time.Time) {
	for key, info := range rl.requests {
		if now.After(info.expiresAt) {
			delete(rl.requests, key)
		}
	}
	rl.lastGC = now
}

// Protector combines a concurrency cap with a Limiter.
type Protector struct {
	limiter   Limiter
	semaphore chan struct{}
}

func NewProtector(limiter Limiter, maxConcurrent int) *Protector {
	p := &Protector{limiter: limiter}
	if maxConcurrent > 0 {
		p.semaphore = make(chan struct{}, maxConcurrent)
	}
	return p
}

// Acquire reports whether key may proceed. When allowed, release must be
// called once the request completes.
func (p *Protector) Acquire(ctx context.Context, key string) (Result, func()) {
	release := func() {}
	if p.semaphore != nil {
		select {
		case p.semaphore <- struct{}{}:
			release = func() { <-p.semaphore }
		default:
			return Result{RetryAfter: time.Second}, nil
		}
	}

	res := p.limiter.Allow(ctx, key)
	if !res.Allowed {
		release()
		return res, nil
	}
	return res, release
}
