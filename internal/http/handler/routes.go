package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"qlink/internal/http/middleware"
	"qlink/internal/models"
)

type Routes struct {
	Auth        *middleware.Auth
	Accounts    *AuthHandler
	Queues      *QueueHandler
	Departments *DepartmentHandler
	Admin       *AdminHandler
	Display     fiber.Handler
	Ops         fiber.Handler // basic auth guard for /ops
	LoginLimit  int           // attempts per minute per IP, 0 disables
}

// Mount registers every API route on app. Identify and RequestMeta must already be in the chain.
func (r Routes) Mount(app *fiber.App) {
	staffOnly := middleware.RoleAuth(models.RoleStaff, models.RoleAdmin)
	adminOnly := middleware.RoleAuth(models.RoleAdmin)
	csrf := r.Auth.CSRF()

	app.Get("/", func(c *fiber.Ctx) error {
		return ok(c, fiber.Map{"message": "QLink API is running"})
	})

	api := app.Group("/api")
	api.Get("/csrf-token", r.Accounts.CSRFToken)
	api.Get("/config", r.Queues.Config)
	api.Get("/departments", r.Departments.List)
	api.Get("/queues/department-status", r.Queues.DepartmentStatus)

	authGroup := api.Group("/auth", csrf)
	if r.LoginLimit > 0 {
		limit := limiter.New(limiter.Config{
			Max:        r.LoginLimit,
			Expiration: time.Minute,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"success": false,
					"message": "Too many attempts. Please try again later.",
				})
			},
		})
		authGroup.Post("/login", limit, r.Accounts.Login)
		authGroup.Post("/register", limit, r.Accounts.Register)
	} else {
		authGroup.Post("/login", r.Accounts.Login)
		authGroup.Post("/register", r.Accounts.Register)
	}
	authGroup.Post("/logout", r.Accounts.Logout)

	signedIn := api.Group("", middleware.RequireAuth(), csrf)
	signedIn.Get("/me", r.Accounts.Me)
	signedIn.Put("/me", r.Accounts.UpdateMe)
	signedIn.Post("/me/password", r.Accounts.ChangePassword)

	signedIn.Post("/queues/join", r.Queues.Join)
	signedIn.Post("/queues/cancel", r.Queues.Cancel)
	signedIn.Get("/queues/status", r.Queues.Status)

	signedIn.Post("/queues/call-next", staffOnly, r.Queues.CallNext)
	signedIn.Post("/queues/done", staffOnly, r.Queues.Done)
	signedIn.Post("/queues/skip", staffOnly, r.Queues.Skip)
	signedIn.Get("/queues/staff-status", staffOnly, r.Queues.StaffStatus)

	admin := signedIn.Group("/admin", adminOnly)
	admin.Get("/stats", r.Admin.Stats)
	admin.Get("/analytics-overview", r.Admin.Overview)
	admin.Get("/recent-activity", r.Admin.RecentActivity)
	admin.Get("/staff", r.Admin.Staff)
	admin.Post("/staff", r.Admin.CreateStaff)
	admin.Get("/users", r.Admin.Users)
	admin.Post("/users/:id/activate", r.Admin.Activate)
	admin.Post("/users/:id/deactivate", r.Admin.Deactivate)
	admin.Post("/users/:id/reset-password", r.Admin.ResetPassword)
	admin.Get("/departments", r.Departments.ListAll)
	admin.Post("/departments", r.Departments.Create)
	admin.Put("/departments/:id", r.Departments.Update)
	admin.Get("/reports/visitors", r.Admin.VisitorReport)
	admin.Get("/reports/visitors/export", r.Admin.ExportVisitorReport)

	if r.Ops != nil {
		app.Post("/ops/admins", r.Ops, r.Admin.CreateAdmin)
	}
	if r.Display != nil {
		app.Get("/ws/display", RequireUpgrade(), r.Display)
	}
}
