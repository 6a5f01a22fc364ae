package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/school-service/internal/api/dto"
	"github.com/spec-kit/school-service/internal/auth"
	"github.com/spec-kit/school-service/internal/domain"
)

func respond(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// parseBody decodes the request body and runs its validation rules.
func parseBody[T interface{ Validate() error }](c *fiber.Ctx, req T) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	return dto.ValidationError(req.Validate())
}

func currentIdentity(c *fiber.Ctx) (*domain.Identity, error) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return nil, auth.ErrNoToken
	}
	return identity, nil
}
