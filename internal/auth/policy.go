package auth

import "github.com/spec-kit/school-service/internal/domain"

// RequireRole returns identity unchanged when its role is allowed, otherwise
// ErrRoleDenied. Compose as RequireRole(resolver.Authenticate(...)).
func RequireRole(identity *domain.Identity, allowed ...domain.Role) (*domain.Identity, error) {
	if identity == nil {
		return nil, ErrRoleDenied
	}
	for _, role := range allowed {
		if identity.Role == role {
			return identity, nil
		}
	}
	return nil, ErrRoleDenied
}
