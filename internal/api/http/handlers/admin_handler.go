package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/school-service/internal/api/dto"
	"github.com/spec-kit/school-service/internal/domain"
	"github.com/spec-kit/school-service/internal/service"
)

// AdminHandler exposes administrator account management.
type AdminHandler struct {
	auth *service.AuthService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(authService *service.AuthService) *AdminHandler {
	return &AdminHandler{auth: authService}
}

// CreateUser handles POST /admin/users.
func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	req := new(dto.CreateUserRequest)
	if err := parseBody(c, req); err != nil {
		return err
	}

	user, err := h.auth.CreateUser(c.UserContext(), service.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.Role(req.Role),
		Status:   domain.AccountStatus(req.Status),
	})
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, dto.NewUserResponse(user))
}

// UpdateStatus handles PATCH /admin/users/:id/status.
func (h *AdminHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid user id")
	}
	req := new(dto.UpdateStatusRequest)
	if err := parseBody(c, req); err != nil {
		return err
	}
	actor, err := currentIdentity(c)
	if err != nil {
		return err
	}

	user, err := h.auth.SetStatus(c.UserContext(), actor, id, domain.AccountStatus(req.Status))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, dto.NewUserResponse(user))
}
