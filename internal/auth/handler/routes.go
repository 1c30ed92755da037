package handler

import (
	"github.com/socialblog/auth-service/pkg/constant"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, h *AuthHandler) {
	auth := app.Group("/api/auth")
	auth.Post("/register", h.Register)
	auth.Post("/login", h.Login)
	auth.Post("/verify-2fa-email", h.VerifyEmail2FA)
	auth.Post("/refresh", h.Refresh)
	auth.Post("/logout", h.RequireAuth, h.Logout)
	auth.Get("/me", h.RequireAuth, h.Me)
	auth.Get("/session", h.OptionalAuth, h.Session)

	// Admin-only endpoints
	adminOnly := []fiber.Handler{h.RequireAuth, RequireRole(constant.RoleAdmin)}

	users := app.Group("/api/users", adminOnly...)
	users.Post("/:id/lock", h.LockUser)
	users.Post("/:id/unlock", h.UnlockUser)

	admin := app.Group("/api/admin", adminOnly...)
	admin.Get("/audit", h.AuditLog)
}
