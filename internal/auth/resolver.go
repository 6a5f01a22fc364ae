package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/school-service/internal/domain"
)

const bearerPrefix = "bearer "

// SessionLookup finds the principal holding an opaque session token. It
// returns pgx.ErrNoRows when no principal holds the token.
type SessionLookup interface {
	GetBySessionToken(ctx context.Context, token string) (*domain.User, error)
}

type checkKind int

const (
	checkInvalid checkKind = iota
	checkSigned
	checkOpaque
)

// TokenCheckResult is the outcome of inspecting one credential: signed
// claims, a stored session's principal, or the reason it was rejected.
type TokenCheckResult struct {
	kind   checkKind
	claims *Claims
	role   domain.Role
	user   *domain.User
	reason error
}

func signedResult(claims *Claims, role domain.Role) TokenCheckResult {
	return TokenCheckResult{kind: checkSigned, claims: claims, role: role}
}

func opaqueResult(user *domain.User) TokenCheckResult {
	return TokenCheckResult{kind: checkOpaque, user: user}
}

func invalidResult(reason error) TokenCheckResult {
	return TokenCheckResult{kind: checkInvalid, reason: reason}
}

// Identity folds the result into a normalized identity or the rejection reason.
func (r TokenCheckResult) Identity() (*domain.Identity, error) {
	switch r.kind {
	case checkSigned:
		return &domain.Identity{SubjectID: r.claims.Sub, Role: r.role, Credential: domain.CredentialSigned}, nil
	case checkOpaque:
		return &domain.Identity{
			SubjectID:  r.user.ID,
			Role:       r.user.Role,
			Email:      r.user.Email,
			Credential: domain.CredentialOpaque,
		}, nil
	default:
		if r.reason == nil {
			return nil, ErrUnknownOpaqueToken
		}
		return nil, r.reason
	}
}

// ResolverConfig wires an IdentityResolver.
type ResolverConfig struct {
	Codec    *TokenCodec
	Sessions SessionLookup
	// SessionMaxAge rejects opaque sessions issued longer ago; zero disables the check.
	SessionMaxAge time.Duration
	Now           func() time.Time
}

// IdentityResolver authenticates bearer credentials of either format.
type IdentityResolver struct {
	codec    *TokenCodec
	sessions SessionLookup
	maxAge   time.Duration
	now      func() time.Time
}

// NewIdentityResolver constructs a resolver.
func NewIdentityResolver(cfg ResolverConfig) *IdentityResolver {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &IdentityResolver{
		codec:    cfg.Codec,
		sessions: cfg.Sessions,
		maxAge:   cfg.SessionMaxAge,
		now:      now,
	}
}

// BearerToken extracts the credential from an Authorization header value.
// The Bearer scheme prefix is optional.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" || strings.EqualFold(header, strings.TrimSpace(bearerPrefix)) {
		return "", ErrNoToken
	}
	if len(header) >= len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		header = strings.TrimSpace(header[len(bearerPrefix):])
	}
	if header == "" {
		return "", ErrNoToken
	}
	return header, nil
}

// Authenticate resolves an Authorization header value into an Identity.
// Signed tokens are checked first and need no storage access; anything the
// codec rejects is looked up once as an opaque session token.
func (r *IdentityResolver) Authenticate(ctx context.Context, header string) (*domain.Identity, error) {
	token, err := BearerToken(header)
	if err != nil {
		return nil, err
	}
	result, err := r.Check(ctx, token)
	if err != nil {
		return nil, err
	}
	return result.Identity()
}

// Check classifies a raw token. The returned error is reserved for storage
// failures; rejections are reported inside the result.
func (r *IdentityResolver) Check(ctx context.Context, token string) (TokenCheckResult, error) {
	claims, codecErr := r.codec.Decode(token)
	if codecErr == nil {
		role, err := domain.ParseRole(claims.Role)
		if err == nil {
			return signedResult(claims, role), nil
		}
		codecErr = fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	user, err := r.sessions.GetBySessionToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invalidResult(fallbackReason(codecErr)), nil
		}
		return TokenCheckResult{}, fmt.Errorf("lookup session: %w", err)
	}
	if !user.IsActive() || r.sessionTooOld(user) {
		return invalidResult(ErrUnknownOpaqueToken), nil
	}
	return opaqueResult(user), nil
}

func (r *IdentityResolver) sessionTooOld(user *domain.User) bool {
	if r.maxAge <= 0 {
		return false
	}
	if user.SessionIssuedAt == nil {
		return true
	}
	return !r.now().Before(user.SessionIssuedAt.Add(r.maxAge))
}

// fallbackReason keeps the codec's verdict for credentials that were
// structurally signed tokens, and reports everything else as unknown.
func fallbackReason(codecErr error) error {
	switch {
	case errors.Is(codecErr, ErrExpiredToken):
		return ErrExpiredToken
	case errors.Is(codecErr, ErrInvalidSignature):
		return ErrInvalidSignature
	default:
		return ErrUnknownOpaqueToken
	}
}
