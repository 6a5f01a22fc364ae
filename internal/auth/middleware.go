package auth

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/school-service/internal/domain"
)

const identityKey = "auth_identity"

// AuthMiddleware validates bearer tokens and stores the resolved identity.
type AuthMiddleware struct {
	resolver *IdentityResolver
	logger   *zap.Logger
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(resolver *IdentityResolver, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{resolver: resolver, logger: logger}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	identity, err := m.resolver.Authenticate(c.UserContext(), c.Get(fiber.HeaderAuthorization))
	if err != nil {
		if code := Code(err); code != "" {
			m.logger.Debug("authentication rejected",
				zap.String("path", c.Path()),
				zap.String("reason", code))
		}
		return HTTPError(err)
	}

	c.Locals(identityKey, identity)
	return c.Next()
}

// IdentityFromContext retrieves the authenticated identity.
func IdentityFromContext(c *fiber.Ctx) (*domain.Identity, bool) {
	val := c.Locals(identityKey)
	if val == nil {
		return nil, false
	}
	identity, ok := val.(*domain.Identity)
	return identity, ok
}
