package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/school-service/internal/auth"
	"github.com/spec-kit/school-service/internal/config"
	"github.com/spec-kit/school-service/internal/domain"
	"github.com/spec-kit/school-service/internal/events"
	"github.com/spec-kit/school-service/internal/repository"
	apperrors "github.com/spec-kit/school-service/pkg/util/errorutil"
)

// AuthService coordinates login, logout, token issuance and the minimal
// account administration around the principal store.
type AuthService struct {
	users      repository.UserRepository
	codec      *auth.TokenCodec
	limiter    LoginLimiter
	dispatcher events.Dispatcher
	bcryptCost int
	now        func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Limiter    LoginLimiter
	Dispatcher events.Dispatcher
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// LoginResult is a successful login: the principal profile and its new
// opaque session token.
type LoginResult struct {
	User  *domain.User
	Token string
}

// RegisterInput is a self-service registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.Role
}

// CreateUserInput is an administrator-created account.
type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.Role
	Status   domain.AccountStatus
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = NopLoginLimiter{}
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher(nil)
	}
	return &AuthService{
		users: deps.UserRepo,
		codec: auth.NewTokenCodec(auth.TokenCodecConfig{
			Secret: cfg.Auth.JWTSecret,
			TTL:    cfg.Auth.AccessTokenTTL(),
			Now:    now,
		}),
		limiter:    limiter,
		dispatcher: dispatcher,
		bcryptCost: cfg.Auth.BcryptCost,
		now:        now,
	}
}

// TokenCodec exposes the signed token codec for the identity resolver.
func (s *AuthService) TokenCodec() *auth.TokenCodec {
	return s.codec
}

// Login verifies credentials and starts a new opaque session, superseding
// any session the principal already had.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)

	if err := s.limiter.Allow(ctx, email); err != nil {
		s.publishRejected(ctx, email, err)
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("load user: %w", err)
		}
		auth.CompareDummyPassword(password)
		return nil, s.rejectCredentials(ctx, email)
	}

	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, s.rejectCredentials(ctx, email)
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}

	if !user.IsActive() {
		s.publishRejected(ctx, email, auth.ErrInactiveAccount)
		return nil, auth.ErrInactiveAccount
	}

	superseded := user.HasSession()
	token, err := s.IssueOpaque(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.limiter.Reset(ctx, email)

	actor := actorFor(user)
	if superseded {
		_ = s.dispatcher.Publish(ctx, events.Event{Type: events.EventSessionSuperseded, Actor: actor})
	}
	_ = s.dispatcher.Publish(ctx, events.Event{Type: events.EventLoginSucceeded, Actor: actor})

	issuedAt := s.now()
	user.SessionToken = &token
	user.SessionIssuedAt = &issuedAt
	return &LoginResult{User: user, Token: token}, nil
}

// Logout clears the session holding token. An unknown token is not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	cleared, err := s.users.ClearSessionToken(ctx, token)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if cleared {
		_ = s.dispatcher.Publish(ctx, events.Event{Type: events.EventLoggedOut})
	}
	return nil
}

// IssueOpaque generates a new session token and stores it for the subject,
// overwriting any previous token.
func (s *AuthService) IssueOpaque(ctx context.Context, subjectID int64) (string, error) {
	token, err := auth.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	issuedAt := s.now()
	if err := s.users.SetSessionToken(ctx, subjectID, &token, &issuedAt); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// IssueSigned mints a self-contained signed token for an active principal,
// carrying the role currently stored for it.
func (s *AuthService) IssueSigned(ctx context.Context, subjectID int64) (string, time.Time, error) {
	user, err := s.loadUser(ctx, subjectID)
	if err != nil {
		return "", time.Time{}, err
	}
	if !user.IsActive() {
		return "", time.Time{}, auth.ErrInactiveAccount
	}
	return s.codec.Encode(user.ID, user.Role)
}

// Register creates a pending student or parent account.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	if in.Role != domain.RoleStudent && in.Role != domain.RoleParent {
		return nil, apperrors.NewValidationError("invalid payload", map[string]any{
			"role": "must be one of: student, parent",
		})
	}
	return s.createUser(ctx, in.Name, in.Email, in.Password, in.Role, domain.AccountStatusPending)
}

// CreateUser creates an account of any role; status defaults to active.
func (s *AuthService) CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	status := in.Status
	if status == "" {
		status = domain.AccountStatusActive
	}
	return s.createUser(ctx, in.Name, in.Email, in.Password, in.Role, status)
}

func (s *AuthService) createUser(ctx context.Context, name, email, password string, role domain.Role, status domain.AccountStatus) (*domain.User, error) {
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Name:         strings.TrimSpace(name),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		Role:         role,
		Status:       status,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, apperrors.NewConflict(err.Error(), map[string]any{"email": user.Email})
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SetStatus changes an account's status. Leaving the active state ends the
// account's session.
func (s *AuthService) SetStatus(ctx context.Context, actor *domain.Identity, userID int64, status domain.AccountStatus) (*domain.User, error) {
	user, err := s.users.UpdateStatus(ctx, userID, status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	event := events.Event{
		Type: events.EventAccountStatusChanged,
		Payload: events.AccountStatusChangedPayload{
			TargetUserID: userID,
			NewStatus:    status,
			SessionEnded: status != domain.AccountStatusActive,
		},
	}
	if actor != nil {
		id := actor.SubjectID
		event.Actor = events.Actor{UserID: &id, Role: actor.Role, Email: actor.Email}
	}
	_ = s.dispatcher.Publish(ctx, event)
	return user, nil
}

// ChangePassword verifies the current password before storing the new hash.
// A wrong current password is a payload error, not an authentication failure.
func (s *AuthService) ChangePassword(ctx context.Context, subjectID int64, currentPassword, newPassword string) error {
	user, err := s.loadUser(ctx, subjectID)
	if err != nil {
		return err
	}
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return apperrors.NewValidationError("invalid payload", map[string]any{
				"current_password": "is incorrect",
			})
		}
		return fmt.Errorf("compare password: %w", err)
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, subjectID, hash)
}

// Profile loads the principal behind an identity.
func (s *AuthService) Profile(ctx context.Context, subjectID int64) (*domain.User, error) {
	return s.loadUser(ctx, subjectID)
}

func (s *AuthService) loadUser(ctx context.Context, subjectID int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (s *AuthService) rejectCredentials(ctx context.Context, email string) error {
	s.publishRejected(ctx, email, auth.ErrInvalidCredentials)
	return auth.ErrInvalidCredentials
}

func (s *AuthService) publishRejected(ctx context.Context, email string, reason error) {
	_ = s.dispatcher.Publish(ctx, events.Event{
		Type:    events.EventLoginRejected,
		Actor:   events.Actor{Email: email},
		Payload: events.LoginRejectedPayload{Reason: auth.Code(reason)},
	})
}

func actorFor(user *domain.User) events.Actor {
	id := user.ID
	return events.Actor{UserID: &id, Role: user.Role, Email: user.Email}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
