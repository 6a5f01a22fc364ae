package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/school-service/internal/api/http/handlers"
	"github.com/spec-kit/school-service/internal/auth"
	"github.com/spec-kit/school-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	health := app.Group("/health")
	health.Get("/live", cfg.Health.Live)
	health.Get("/ready", cfg.Health.Ready)
	health.Get("/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/logout", cfg.Auth.Logout)

	// Group handlers apply to the whole prefix, so the public /auth routes
	// take the gate per route.
	authenticated := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAnyRole()}
	authGroup.Get("/me", append(authenticated, cfg.Auth.Me)...)
	authGroup.Post("/token", append(authenticated, cfg.Auth.IssueToken)...)
	authGroup.Post("/password/change", append(authenticated, cfg.Auth.ChangePassword)...)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireRoles(domain.RoleAdmin))
	admin.Post("/users", cfg.Admin.CreateUser)
	admin.Patch("/users/:id/status", cfg.Admin.UpdateStatus)
}
