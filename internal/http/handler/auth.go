package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"qlink/internal/auth"
	"qlink/internal/http/middleware"
	"qlink/internal/models"
)

type AuthService interface {
	Login(ctx context.Context, sess *auth.Session, req models.LoginRequest) (*auth.Session, models.LoginResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (int64, error)
	Logout(ctx context.Context, sess *auth.Session) error
	CurrentUser(ctx context.Context, userID int64) (*models.User, error)
	UpdateProfile(ctx context.Context, userID int64, req models.UpdateProfileRequest) (*models.User, error)
	ChangePassword(ctx context.Context, userID int64, req models.ChangePasswordRequest) error
	ResetPassword(ctx context.Context, adminID, userID int64, req models.ResetPasswordRequest) error
	SetActive(ctx context.Context, adminID, userID int64, active bool) error
	CreateAccount(ctx context.Context, actorID int64, req models.CreateAccountRequest, roles ...string) (int64, error)
}

// SessionCookies is implemented by *middleware.Auth.
type SessionCookies interface {
	IssueCSRF(c *fiber.Ctx) (string, error)
	SetSessionCookie(c *fiber.Ctx, sess *auth.Session) error
	ClearSessionCookie(c *fiber.Ctx)
}

type AuthHandler struct {
	svc     AuthService
	cookies SessionCookies
}

func NewAuthHandler(svc AuthService, cookies SessionCookies) *AuthHandler {
	return &AuthHandler{svc: svc, cookies: cookies}
}

func (h *AuthHandler) CSRFToken(c *fiber.Ctx) error {
	token, err := h.cookies.IssueCSRF(c)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"csrf_token": token})
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	id, err := h.svc.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Registration successful! You can now login.",
		"user_id": id,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	sess, resp, err := h.svc.Login(c.UserContext(), middleware.SessionFrom(c), req)
	if err != nil {
		return err
	}
	if err := h.cookies.SetSessionCookie(c, sess); err != nil {
		return err
	}
	// The regenerated session starts without a CSRF token; hand out its first one.
	csrf, err := h.cookies.IssueCSRF(c)
	if err != nil {
		return err
	}

	return ok(c, fiber.Map{
		"message":    "Login successful! Welcome back, " + resp.User.Name,
		"redirect":   resp.Redirect,
		"token":      resp.Token,
		"csrf_token": csrf,
		"user":       resp.User,
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.svc.Logout(c.UserContext(), middleware.SessionFrom(c)); err != nil {
		return err
	}
	h.cookies.ClearSessionCookie(c)
	return ok(c, fiber.Map{"message": "Logged out successfully"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := h.svc.CurrentUser(c.UserContext(), caller(c).UserID)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"user": models.ToUserResponse(*user)})
}

func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	var req models.UpdateProfileRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := h.svc.UpdateProfile(c.UserContext(), caller(c).UserID, req)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{
		"message": "Profile updated successfully",
		"user":    models.ToUserResponse(*user),
	})
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var req models.ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.svc.ChangePassword(c.UserContext(), caller(c).UserID, req); err != nil {
		return err
	}
	return ok(c, fiber.Map{"message": "Password changed successfully"})
}
