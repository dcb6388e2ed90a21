package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"qlink/internal/models"
)

type DepartmentService interface {
	List(ctx context.Context, activeOnly bool) ([]models.Department, error)
	Create(ctx context.Context, adminID int64, req models.CreateDepartmentRequest) (int64, error)
	Update(ctx context.Context, adminID, id int64, req models.UpdateDepartmentRequest) (*models.Department, error)
}

type DepartmentHandler struct {
	svc DepartmentService
}

func NewDepartmentHandler(svc DepartmentService) *DepartmentHandler {
	return &DepartmentHandler{svc: svc}
}

// List returns active departments for the join form.
func (h *DepartmentHandler) List(c *fiber.Ctx) error {
	depts, err := h.svc.List(c.UserContext(), true)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"departments": depts})
}

// ListAll includes inactive departments for the admin screen.
func (h *DepartmentHandler) ListAll(c *fiber.Ctx) error {
	depts, err := h.svc.List(c.UserContext(), false)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"departments": depts})
}

func (h *DepartmentHandler) Create(c *fiber.Ctx) error {
	req := models.CreateDepartmentRequest{IsActive: true}
	if err := bind(c, &req); err != nil {
		return err
	}

	id, err := h.svc.Create(c.UserContext(), caller(c).UserID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Department created",
		"dept_id": id,
	})
}

func (h *DepartmentHandler) Update(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req models.UpdateDepartmentRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	dept, err := h.svc.Update(c.UserContext(), caller(c).UserID, id, req)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"message": "Department updated", "department": dept})
}
