package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"idgen_server/pkg/apperr"
	"idgen_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RoleAdmin is the role claim required for generator management.
const RoleAdmin = "admin"

// TokenBlacklist manages revoked tokens
type TokenBlacklist struct {
	redis  redis.UniversalClient
	prefix string
}

// NewTokenBlacklist returns nil when client is nil; a nil blacklist
// revokes nothing.
func NewTokenBlacklist(client redis.UniversalClient) *TokenBlacklist {
	if client == nil {
		logger.Warn("Redis client not provided, token blacklist disabled")
		return nil
	}
	return &TokenBlacklist{
		redis:  client,
		prefix: "token:blacklist:",
	}
}

// Revoke adds a token id to the blacklist
func (b *TokenBlacklist) Revoke(ctx context.Context, tokenID string, expiry time.Duration) error {
	if b == nil {
		return nil
	}
	return b.redis.Set(ctx, b.prefix+tokenID, "1", expiry).Err()
}

// IsRevoked checks if a token id is blacklisted
func (b *TokenBlacklist) IsRevoked(ctx context.Context, tokenID string) bool {
	if b == nil {
		return false
	}
	exists, _ := b.redis.Exists(ctx, b.prefix+tokenID).Result()
	return exists > 0
}

// IssueToken signs an HS256 token for subject with the given role.
func IssueToken(secret, subject, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("JWT secret not configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"jti":  uuid.New().String(),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// JWTAuth validates an HS256 bearer token and stores its subject, role and
// claims in locals.
func JWTAuth(secret string, blacklist *TokenBlacklist) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		var tokenString string
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			return apperr.Unauthorized("missing authorization")
		}
		if secret == "" {
			return apperr.ConfigError("JWT secret not configured")
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unsupported signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		}, jwt.WithIssuedAt(), jwt.WithLeeway(time.Minute))

		if err != nil || !token.Valid {
			logger.WithError(err).Warn("JWT validation failed")
			return apperr.InvalidToken("invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return apperr.InvalidToken("invalid claims")
		}

		if jti, ok := claims["jti"].(string); ok && jti != "" {
			if blacklist.IsRevoked(c.UserContext(), jti) {
				return apperr.InvalidToken("token has been revoked")
			}
		}

		subject, _ := claims["sub"].(string)
		if subject == "" {
			return apperr.InvalidToken("missing subject in token")
		}
		role, _ := claims["role"].(string)

		c.Locals("subject", subject)
		c.Locals("role", role)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// RequireRole rejects requests whose token role differs from role. It must
// run after JWTAuth.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if got, _ := c.Locals("role").(string); got != role {
			return apperr.Forbidden("requires role " + role)
		}
		return c.Next()
	}
}
