package middleware

import (
	"crypto/subtle"

	"unitfund-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const apiKeyHeader = "X-API-Key"

// RequireAPIKey guards the internal API. An empty key disables the routes entirely.
func RequireAPIKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return response.Error(c, "Internal API is not configured", fiber.StatusServiceUnavailable, nil)
		}
		got := c.Get(apiKeyHeader)
		if got == "" {
			return response.Unauthorized(c, "Missing API key")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return response.Unauthorized(c, "Invalid API key")
		}
		return c.Next()
	}
}
