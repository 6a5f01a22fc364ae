package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/school-service/internal/domain"
)

// RequireRoles ensures the authenticated identity holds one of the allowed roles.
// It must run after AuthMiddleware.Handle.
func RequireRoles(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return HTTPError(ErrNoToken)
		}
		if _, err := RequireRole(identity, allowed...); err != nil {
			return HTTPError(err)
		}
		return c.Next()
	}
}

// RequireAnyRole ensures the caller is authenticated with any known role.
func RequireAnyRole() fiber.Handler {
	return RequireRoles(domain.Roles...)
}
