package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"qlink/internal/apperror"
)

// ErrorHandler renders every error returned by a handler as {"success": false, "message": ...}.
// Internal failures are logged and reported with a generic message.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"success": false, "message": fe.Message})
		}

		status := apperror.HTTPStatus(err)
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"request_id", c.Locals("requestid"),
				"error", err,
			)
		}
		return c.Status(status).JSON(fiber.Map{"success": false, "message": apperror.PublicMessage(err)})
	}
}
