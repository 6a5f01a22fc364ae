package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/school-service/internal/api/dto"
	"github.com/spec-kit/school-service/internal/auth"
	"github.com/spec-kit/school-service/internal/domain"
	"github.com/spec-kit/school-service/internal/service"
)

// AuthHandler exposes login, logout and session endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	req := new(dto.RegisterRequest)
	if err := parseBody(c, req); err != nil {
		return err
	}

	user, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, dto.NewUserResponse(user))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	req := new(dto.LoginRequest)
	if err := parseBody(c, req); err != nil {
		return err
	}

	result, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, dto.LoginResponse{
		Token: result.Token,
		User:  dto.NewUserResponse(result.User),
	})
}

// Logout handles POST /auth/logout. The presented token is cleared if it
// names a session; an unknown token still succeeds.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token, err := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}
	if err := h.auth.Logout(c.UserContext(), token); err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, fiber.Map{"logged_out": true})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	user, err := h.auth.Profile(c.UserContext(), identity.SubjectID)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, dto.MeResponse{
		SubjectID: identity.SubjectID,
		Role:      string(identity.Role),
		User:      dto.NewUserResponse(user),
	})
}

// IssueToken handles POST /auth/token: mints a signed token for the caller.
// Only a stored session may mint; a signed token cannot renew itself.
func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	if !identity.FromSession() {
		return auth.ErrSessionRequired
	}
	token, exp, err := h.auth.IssueSigned(c.UserContext(), identity.SubjectID)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, dto.TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: exp,
	})
}

// ChangePassword handles POST /auth/password/change.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}
	req := new(dto.ChangePasswordRequest)
	if err := parseBody(c, req); err != nil {
		return err
	}
	if err := h.auth.ChangePassword(c.UserContext(), identity.SubjectID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, fiber.Map{"password_changed": true})
}
