package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"anchor-backend/internal/apperr"
	"anchor-backend/internal/registry"
)

const securityContextKey = "security_context"

// Middleware validates the bearer token and stores the security context on
// the request. The user id comes from the JWT subject; the team scope, when
// the caller works inside one, comes from the X-Team-Id header.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return apperr.Unauthorized("Missing bearer token")
		}

		claims, err := ParseAccessToken(strings.TrimPrefix(header, "Bearer "), secret)
		if err != nil {
			return err
		}

		c.Locals(securityContextKey, registry.SecurityContext{
			UserID: claims.Subject,
			TeamID: c.Get("X-Team-Id"),
		})
		return c.Next()
	}
}

// GetSecurityContext returns the security context set by Middleware, or the
// zero value when the route is unauthenticated. Engine operations reject
// the zero value themselves.
func GetSecurityContext(c *fiber.Ctx) registry.SecurityContext {
	sec, _ := c.Locals(securityContextKey).(registry.SecurityContext)
	return sec
}

// SetSecurityContext injects a security context directly; used by tests.
func SetSecurityContext(c *fiber.Ctx, sec registry.SecurityContext) {
	c.Locals(securityContextKey, sec)
}
