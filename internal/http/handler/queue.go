package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"qlink/internal/helper"
	"qlink/internal/models"
)

type QueueService interface {
	Join(ctx context.Context, userID, deptID int64) (models.JoinResult, error)
	CallNext(ctx context.Context, staffID, deptID int64) (int, error)
	Done(ctx context.Context, staffID, queueID int64) error
	Skip(ctx context.Context, staffID, queueID int64) error
	Cancel(ctx context.Context, userID, queueID int64) error
	Status(ctx context.Context, userID int64) (*models.QueueStatusView, error)
	DepartmentStatus(ctx context.Context) ([]models.DepartmentStatus, error)
	StaffStatus(ctx context.Context, deptID int64) (models.StaffStatus, error)
}

// Hours describes the configured opening window.
type Hours struct {
	OpenAt     string
	CloseAt    string
	ETAMinutes int
	Location   *time.Location
	Now        func() time.Time
}

type QueueHandler struct {
	svc   QueueService
	hours Hours
}

func NewQueueHandler(svc QueueService, hours Hours) *QueueHandler {
	if hours.Now == nil {
		hours.Now = time.Now
	}
	if hours.Location == nil {
		hours.Location = time.Local
	}
	return &QueueHandler{svc: svc, hours: hours}
}

func (h *QueueHandler) Join(c *fiber.Ctx) error {
	var req models.JoinQueueRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.svc.Join(c.UserContext(), caller(c).UserID, req.DeptID)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{
		"message":   "Successfully joined the queue",
		"queue_id":  res.QueueID,
		"ticket_no": res.TicketNo,
	})
}

func (h *QueueHandler) CallNext(c *fiber.Ctx) error {
	var req models.CallNextRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ticket, err := h.svc.CallNext(c.UserContext(), caller(c).UserID, req.DeptID)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"ticket_no": ticket})
}

func (h *QueueHandler) Done(c *fiber.Ctx) error {
	var req models.QueueActionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.svc.Done(c.UserContext(), caller(c).UserID, req.QueueID); err != nil {
		return err
	}
	return ok(c, fiber.Map{"message": "Marked as done"})
}

func (h *QueueHandler) Skip(c *fiber.Ctx) error {
	var req models.QueueActionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.svc.Skip(c.UserContext(), caller(c).UserID, req.QueueID); err != nil {
		return err
	}
	return ok(c, fiber.Map{"message": "Skipped and moved to the end of the queue"})
}

func (h *QueueHandler) Cancel(c *fiber.Ctx) error {
	var req models.QueueActionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.svc.Cancel(c.UserContext(), caller(c).UserID, req.QueueID); err != nil {
		return err
	}
	return ok(c, fiber.Map{"message": "Queue cancelled"})
}

// Status returns the caller's active entry for today, or "queue": null.
func (h *QueueHandler) Status(c *fiber.Ctx) error {
	view, err := h.svc.Status(c.UserContext(), caller(c).UserID)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"queue": view})
}

func (h *QueueHandler) DepartmentStatus(c *fiber.Ctx) error {
	rows, err := h.svc.DepartmentStatus(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"departments": rows})
}

func (h *QueueHandler) StaffStatus(c *fiber.Ctx) error {
	status, err := h.svc.StaffStatus(c.UserContext(), int64(c.QueryInt("dept_id")))
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{
		"now_serving":       status.NowServing,
		"next_in_line":      status.NextInLine,
		"currently_serving": status.CurrentlyServing,
	})
}

// Config exposes the opening hours so kiosks can show whether joining is possible.
func (h *QueueHandler) Config(c *fiber.Ctx) error {
	now := h.hours.Now().In(h.hours.Location)
	return ok(c, fiber.Map{
		"data": fiber.Map{
			"open_at":     h.hours.OpenAt,
			"close_at":    h.hours.CloseAt,
			"is_open":     helper.IsQueueOpen(h.hours.OpenAt, h.hours.CloseAt, now),
			"eta_minutes": h.hours.ETAMinutes,
			"server_time": now.Format(time.RFC3339),
		},
	})
}
