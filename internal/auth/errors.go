package auth

import (
	"errors"

	apperrors "github.com/spec-kit/school-service/pkg/util/errorutil"
)

// Authentication and authorization failures. Each maps to a fixed status and
// message in HTTPError.
var (
	ErrNoToken            = errors.New("authorization token required")
	ErrMalformedToken     = errors.New("malformed token")
	ErrInvalidSignature   = errors.New("invalid token signature")
	ErrExpiredToken       = errors.New("token expired")
	ErrUnknownOpaqueToken = errors.New("invalid or expired token")
	ErrInactiveAccount    = errors.New("account is not active")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrRoleDenied         = errors.New("insufficient permissions")
	ErrTooManyAttempts    = errors.New("too many failed login attempts, try again later")
	ErrSessionRequired    = errors.New("session token required")
)

type errorMapping struct {
	sentinel error
	code     string
	build    func(code, message string) error
}

var errorMappings = []errorMapping{
	{ErrNoToken, "NO_TOKEN", apperrors.NewUnauthorized},
	{ErrMalformedToken, "MALFORMED_TOKEN", apperrors.NewUnauthorized},
	{ErrInvalidSignature, "INVALID_SIGNATURE", apperrors.NewUnauthorized},
	{ErrExpiredToken, "EXPIRED_TOKEN", apperrors.NewUnauthorized},
	{ErrUnknownOpaqueToken, "UNKNOWN_TOKEN", apperrors.NewUnauthorized},
	{ErrInactiveAccount, "INACTIVE_ACCOUNT", apperrors.NewUnauthorized},
	{ErrInvalidCredentials, "INVALID_CREDENTIALS", apperrors.NewUnauthorized},
	{ErrSessionRequired, "SESSION_REQUIRED", apperrors.NewUnauthorized},
	{ErrRoleDenied, "ROLE_DENIED", apperrors.NewForbidden},
	{ErrTooManyAttempts, "TOO_MANY_ATTEMPTS", apperrors.NewTooManyRequests},
}

// HTTPError converts auth sentinels into DomainErrors. Other errors are
// returned unchanged and surface as internal errors.
func HTTPError(err error) error {
	if err == nil {
		return nil
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			return m.build(m.code, m.sentinel.Error())
		}
	}
	return err
}

// Code returns the taxonomy code for an auth failure, or "" when err is not one.
func Code(err error) string {
	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			return m.code
		}
	}
	return ""
}
