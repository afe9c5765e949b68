package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"idgen_server/infra/middleware"
	"idgen_server/pkg/apperr"
	"idgen_server/pkg/response"
)

// AuthHandler lets a token holder inspect or revoke its own token.
type AuthHandler struct {
	blacklist *middleware.TokenBlacklist
}

func NewAuthHandler(blacklist *middleware.TokenBlacklist) *AuthHandler {
	return &AuthHandler{blacklist: blacklist}
}

// Register mounts the routes behind auth.
func (h *AuthHandler) Register(router fiber.Router, auth fiber.Handler) {
	g := router.Group("/auth", auth)
	g.Get("/me", h.Me)
	g.Post("/revoke", h.Revoke)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"subject": c.Locals("subject"),
		"role":    c.Locals("role"),
	})
}

// Revoke blacklists the presented token until it would have expired.
func (h *AuthHandler) Revoke(c *fiber.Ctx) error {
	if h.blacklist == nil {
		return apperr.ConfigError("token revocation requires Redis")
	}
	claims, _ := c.Locals("claims").(jwt.MapClaims)
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return apperr.MissingField("jti")
	}

	ttl := time.Hour
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		ttl = time.Until(exp.Time)
	}
	if ttl <= 0 {
		return response.NoContent(c)
	}

	if err := h.blacklist.Revoke(c.UserContext(), jti, ttl); err != nil {
		return apperr.ExternalError("redis", err)
	}
	return response.NoContent(c)
}
