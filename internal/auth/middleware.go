package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"kitloop-backend/internal/engine"
	"kitloop-backend/internal/metadata"
)

// AuthMiddleware returns a Fiber middleware that validates JWT tokens
// and sets the UserContext on the request.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		user, err := claims.UserContext()
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		c.Locals("user", user)
		return c.Next()
	}
}

// RequirePermission is a route guard that only lets the request through when
// the authenticated user may perform action on resource.
func RequirePermission(action metadata.Action, resource metadata.Resource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := engine.CheckPermission(GetUser(c), action, resource); err != nil {
			return err
		}
		return c.Next()
	}
}

// GetUser extracts the UserContext from a Fiber context.
func GetUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}
