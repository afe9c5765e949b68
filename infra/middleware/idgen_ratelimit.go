package middleware

import (
	"math"
	"strconv"

	"idgen_server/pkg/apperr"
	"idgen_server/pkg/ratelimit"

	"github.com/gofiber/fiber/v2"
)

// RateLimit admits requests through p, keyed by client IP, and sets the
// X-RateLimit-* headers.
func RateLimit(p *ratelimit.Protector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, release := p.Acquire(c.UserContext(), c.IP())
		setRateLimitHeaders(c, res)

		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			return apperr.RateLimited(retry)
		}

		defer release()
		return c.Next()
	}
}

func setRateLimitHeaders(c *fiber.Ctx, res ratelimit.Result) {
	if res.Limit <= 0 {
		return
	}
	c.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if !res.ResetAt.IsZero() {
		c.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	}
}
