package metrics

import (
	"github.com/redis/go-redis/v9"
)

// PoolHealthStatus indicates the health of a connection pool.
type PoolHealthStatus string

const (
	PoolHealthy   PoolHealthStatus = "healthy"
	PoolDegraded  PoolHealthStatus = "degraded"
	PoolUnhealthy PoolHealthStatus = "unhealthy"
)

// PoolHealth represents the health assessment of a pool.
type PoolHealth struct {
	Status      PoolHealthStatus `json:"status"`
	Utilization float64          `json:"utilization"` // 0.0 - 1.0
	Timeouts    uint32           `json:"timeouts"`
	Message     string           `json:"message,omitempty"`
}

// AssessRedisPoolHealth evaluates a go-redis pool against its configured
// size.
func AssessRedisPoolHealth(stats *redis.PoolStats, poolSize int) PoolHealth {
	if stats == nil {
		return PoolHealth{Status: PoolUnhealthy, Message: "no pool"}
	}
	if poolSize <= 0 {
		return PoolHealth{Status: PoolHealthy, Message: "unlimited connections", Timeouts: stats.Timeouts}
	}

	inUse := int(stats.TotalConns) - int(stats.IdleConns)
	if inUse < 0 {
		inUse = 0
	}
	utilization := float64(inUse) / float64(poolSize)

	var status PoolHealthStatus
	var message string

	switch {
	case utilization >= 0.95:
		status = PoolUnhealthy
		message = "pool nearly exhausted"
	case utilization >= 0.80:
		status = PoolDegraded
		message = "high pool utilization"
	default:
		status = PoolHealthy
		message = "pool operating normally"
	}

	if stats.Timeouts > 0 && status == PoolHealthy {
		status = PoolDegraded
		message = "connection wait timeouts observed"
	}

	return PoolHealth{
		Status:      status,
		Utilization: utilization,
		Timeouts:    stats.Timeouts,
		Message:     message,
	}
}
