package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RequireUpgrade lets only websocket handshakes through to the display endpoint.
func RequireUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Display adapts a connection handler into the /ws/display route.
func Display(serve func(*websocket.Conn)) fiber.Handler {
	return websocket.New(serve)
}
