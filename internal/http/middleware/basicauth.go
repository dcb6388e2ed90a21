package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
)

// BasicAuth guards ops endpoints. With no user configured every request is refused.
func BasicAuth(user, pass string) fiber.Handler {
	users := map[string]string{}
	if user != "" && pass != "" {
		users[user] = pass
	}
	return basicauth.New(basicauth.Config{
		Users: users,
		Unauthorized: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Unauthorized",
			})
		},
	})
}
