package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/tabulate/internal/auth"
)

const claimsLocalKey = "auth_claims"

// RequireJWT rejects requests without a valid bearer token and stores the
// verified claims for RequireResourceAccess.
func RequireJWT(verifier *auth.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			return authError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Authentication required. Provide a Bearer token")
		}

		claims, err := verifier.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				return authError(c, fiber.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired")
			}
			log.Debug().Err(err).Str("request_id", RequestID(c)).Msg("Rejected bearer token")
			return authError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
		}

		c.Locals(claimsLocalKey, claims)
		return c.Next()
	}
}

// RequireResourceAccess checks the :resource route parameter against the
// token's resource grants. Requests without claims pass through.
func RequireResourceAccess() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Claims(c)
		if claims == nil {
			return c.Next()
		}

		resource := c.Params("resource")
		if !claims.CanRead(resource) {
			log.Warn().
				Str("subject", claims.Subject).
				Str("resource", resource).
				Str("request_id", RequestID(c)).
				Msg("Token does not grant resource")
			return authError(c, fiber.StatusForbidden, "FORBIDDEN", "Token does not grant access to "+resource)
		}
		return c.Next()
	}
}

// Claims returns the verified token claims, or nil when auth is off
func Claims(c *fiber.Ctx) *auth.Claims {
	claims, _ := c.Locals(claimsLocalKey).(*auth.Claims)
	return claims
}

func authError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":      message,
		"code":       code,
		"request_id": RequestID(c),
	})
}
