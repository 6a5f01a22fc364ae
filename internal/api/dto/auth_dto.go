package dto

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/spec-kit/school-service/internal/domain"
	apperrors "github.com/spec-kit/school-service/pkg/util/errorutil"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72
)

// RegisterRequest is a self-registration payload.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Validate checks the payload.
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLength, maxPasswordLength)),
		validation.Field(&r.Role, validation.Required, validation.In(string(domain.RoleStudent), string(domain.RoleParent))),
	)
}

// LoginRequest is an email/password login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the payload.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// ChangePasswordRequest replaces the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Validate checks the payload.
func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(minPasswordLength, maxPasswordLength)),
	)
}

// CreateUserRequest is an administrator-created account.
type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

// Validate checks the payload. Status may be omitted.
func (r CreateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLength, maxPasswordLength)),
		validation.Field(&r.Role, validation.Required, validation.In(roleValues()...)),
		validation.Field(&r.Status, validation.In(statusValues()...)),
	)
}

// UpdateStatusRequest sets an account status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// Validate checks the payload.
func (r UpdateStatusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required, validation.In(statusValues()...)),
	)
}

// UserResponse is the public view of a principal. It never carries the
// password hash or the session token.
type UserResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		Status:    string(u.Status),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// LoginResponse carries a new opaque session token and the profile.
type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// TokenResponse carries a signed token.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MeResponse is the authenticated identity plus its profile.
type MeResponse struct {
	SubjectID int64        `json:"subject_id"`
	Role      string       `json:"role"`
	User      UserResponse `json:"user"`
}

// ValidationError converts an ozzo validation result into a 400 DomainError
// with per-field messages.
func ValidationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewBadRequest(err.Error())
	}
	details := make(map[string]any, len(fieldErrs))
	for field, fieldErr := range fieldErrs {
		details[field] = fieldErr.Error()
	}
	return apperrors.NewValidationError("invalid payload", details)
}

func roleValues() []interface{} {
	values := make([]interface{}, 0, len(domain.Roles))
	for _, role := range domain.Roles {
		values = append(values, string(role))
	}
	return values
}

func statusValues() []interface{} {
	return []interface{}{
		string(domain.AccountStatusActive),
		string(domain.AccountStatusPending),
		string(domain.AccountStatusSuspended),
	}
}
