package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"idgen_server/pkg/metrics"
)

// LeaseState is implemented by the node lease.
type LeaseState interface {
	NodeID() int64
	State() string
}

type HealthHandler struct {
	redis     redis.UniversalClient
	poolSize  int
	lease     LeaseState
	instance  string
	startedAt time.Time
}

func NewHealthHandler(instance string) *HealthHandler {
	return &HealthHandler{instance: instance, startedAt: time.Now()}
}

func NewHealthHandlerWithDeps(instance string, client redis.UniversalClient, poolSize int, lease LeaseState) *HealthHandler {
	h := NewHealthHandler(instance)
	h.redis = client
	h.poolSize = poolSize
	h.lease = lease
	return h
}

func (h *HealthHandler) Register(app fiber.Router) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":    "ok",
		"instance":  h.instance,
		"uptime_s":  int64(time.Since(h.startedAt).Seconds()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.redis != nil {
		body["redis_pool"] = metrics.AssessRedisPoolHealth(h.redis.PoolStats(), h.poolSize)
	}
	if h.lease != nil {
		body["lease"] = fiber.Map{"node_id": h.lease.NodeID(), "breaker": h.lease.State()}
	}
	return c.JSON(body)
}

// Ready fails when Redis is configured but unreachable, or when the node
// lease is enabled but not held.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			ready = false
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	if h.lease != nil {
		if h.lease.NodeID() < 0 {
			checks["lease"] = "not held"
			ready = false
		} else {
			checks["lease"] = "held"
		}
	}

	status, code := "ready", fiber.StatusOK
	if !ready {
		status, code = "not ready", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": checks,
	})
}
