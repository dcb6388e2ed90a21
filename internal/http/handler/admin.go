package handler

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"qlink/internal/models"
	"qlink/internal/report"
)

type ReportService interface {
	AdminStats(ctx context.Context) (models.AdminStats, error)
	Overview(ctx context.Context) (models.AnalyticsOverview, error)
	RecentActivity(ctx context.Context) ([]models.Activity, error)
	Staff(ctx context.Context) ([]models.UserResponse, error)
	Users(ctx context.Context, filter models.UserFilter) (models.UserPage, error)
	Visitors(ctx context.Context, start, end string) (models.VisitorReport, error)
}

type AdminHandler struct {
	reports  ReportService
	accounts AuthService
}

func NewAdminHandler(reports ReportService, accounts AuthService) *AdminHandler {
	return &AdminHandler{reports: reports, accounts: accounts}
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.reports.AdminStats(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"stats": stats})
}

func (h *AdminHandler) Overview(c *fiber.Ctx) error {
	o, err := h.reports.Overview(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"data": o})
}

func (h *AdminHandler) RecentActivity(c *fiber.Ctx) error {
	items, err := h.reports.RecentActivity(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"activities": items})
}

func (h *AdminHandler) Staff(c *fiber.Ctx) error {
	staff, err := h.reports.Staff(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"staff": staff})
}

// Users lists accounts. Query: role (comma separated), is_active, search, page, limit.
func (h *AdminHandler) Users(c *fiber.Ctx) error {
	filter := models.UserFilter{
		Search: c.Query("search"),
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 20),
	}
	if roles := c.Query("role"); roles != "" {
		for _, r := range strings.Split(roles, ",") {
			if r = strings.TrimSpace(r); r != "" {
				filter.Roles = append(filter.Roles, r)
			}
		}
	}
	if active := c.Query("is_active"); active != "" {
		v := active == "1" || active == "true"
		filter.IsActive = &v
	}

	page, err := h.reports.Users(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"data": page})
}

func (h *AdminHandler) CreateStaff(c *fiber.Ctx) error {
	return h.createAccount(c, models.RoleStaff, models.RoleAdmin)
}

// CreateAdmin backs the ops bootstrap route, which only has basic auth and no user.
func (h *AdminHandler) CreateAdmin(c *fiber.Ctx) error {
	return h.createAccount(c, models.RoleAdmin)
}

func (h *AdminHandler) createAccount(c *fiber.Ctx, roles ...string) error {
	var req models.CreateAccountRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	id, err := h.accounts.CreateAccount(c.UserContext(), caller(c).UserID, req, roles...)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Account created",
		"user_id": id,
	})
}

func (h *AdminHandler) Activate(c *fiber.Ctx) error {
	return h.setActive(c, true)
}

func (h *AdminHandler) Deactivate(c *fiber.Ctx) error {
	return h.setActive(c, false)
}

func (h *AdminHandler) setActive(c *fiber.Ctx, active bool) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.accounts.SetActive(c.UserContext(), caller(c).UserID, id, active); err != nil {
		return err
	}
	msg := "User deactivated successfully"
	if active {
		msg = "User activated successfully"
	}
	return ok(c, fiber.Map{"message": msg})
}

func (h *AdminHandler) ResetPassword(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req models.ResetPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.accounts.ResetPassword(c.UserContext(), caller(c).UserID, id, req); err != nil {
		return err
	}
	return ok(c, fiber.Map{"message": "Password reset successfully"})
}

// VisitorReport returns per-department daily ticket counts for start_date..end_date.
func (h *AdminHandler) VisitorReport(c *fiber.Ctx) error {
	r, err := h.reports.Visitors(c.UserContext(), c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"data": r})
}

// ExportVisitorReport streams the same report as a CSV download.
func (h *AdminHandler) ExportVisitorReport(c *fiber.Ctx) error {
	r, err := h.reports.Visitors(c.UserContext(), c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, r); err != nil {
		return fmt.Errorf("write visitor report: %w", err)
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", report.Filename(r)))
	return c.Send(buf.Bytes())
}
