// Package handler holds the fiber handlers for the QLink API.
package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"qlink/internal/apperror"
	"qlink/internal/http/middleware"
)

var (
	errInvalidBody = apperror.Invalid("Invalid request body")
	errInvalidID   = apperror.Invalid("Invalid id")
)

// ok writes {"success": true, ...fields}.
func ok(c *fiber.Ctx, fields fiber.Map) error {
	body := fiber.Map{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	return c.JSON(body)
}

// bind parses a JSON or form body into dst. An empty body leaves dst untouched so
// the service reports the missing field itself.
func bind(c *fiber.Ctx, dst any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(dst); err != nil {
		return errInvalidBody
	}
	return nil
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// caller returns the authenticated identity. Routes using it sit behind RequireAuth.
func caller(c *fiber.Ctx) *middleware.Identity {
	if id := middleware.IdentityFrom(c); id != nil {
		return id
	}
	return &middleware.Identity{}
}
