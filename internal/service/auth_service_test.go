package service

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/school-service/internal/auth"
	"github.com/spec-kit/school-service/internal/config"
	"github.com/spec-kit/school-service/internal/domain"
	"github.com/spec-kit/school-service/internal/events"
	"github.com/spec-kit/school-service/internal/mocks/users"
	apperrors "github.com/spec-kit/school-service/pkg/util/errorutil"
)

var (
	serviceEpoch  = time.Date(2026, 9, 1, 7, 30, 0, 0, time.UTC)
	opaqueTokenRe = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

func testConfig() config.Config {
	return config.Config{Auth: config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 60,
		BcryptCost:            4,
	}}
}

// countingLimiter is a LoginLimiter that reserves an attempt per Allow call
// and blocks once more than max attempts are pending.
type countingLimiter struct {
	max      int
	attempts map[string]int
	resets   int
}

func newCountingLimiter(max int) *countingLimiter {
	return &countingLimiter{max: max, attempts: map[string]int{}}
}

func (l *countingLimiter) Allow(_ context.Context, email string) error {
	l.attempts[email]++
	if l.attempts[email] > l.max {
		return auth.ErrTooManyAttempts
	}
	return nil
}

func (l *countingLimiter) Reset(_ context.Context, email string) {
	l.resets++
	delete(l.attempts, email)
}

type serviceFixture struct {
	svc      *AuthService
	repo     *users.MemoryUserRepository
	limiter  *countingLimiter
	logs     *observer.ObservedLogs
	resolver *auth.IdentityResolver
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	dispatcher := events.NewInMemoryDispatcher(zap.New(core))
	NewAuditService(dispatcher, zap.New(core)).RegisterHandlers()

	repo := users.NewMemoryUserRepository()
	limiter := newCountingLimiter(3)
	svc := NewAuthService(testConfig(), AuthDependencies{
		UserRepo:   repo,
		Limiter:    limiter,
		Dispatcher: dispatcher,
		Now:        func() time.Time { return serviceEpoch },
	})
	resolver := auth.NewIdentityResolver(auth.ResolverConfig{
		Codec:    svc.TokenCodec(),
		Sessions: repo,
		Now:      func() time.Time { return serviceEpoch },
	})
	return &serviceFixture{svc: svc, repo: repo, limiter: limiter, logs: logs, resolver: resolver}
}

func (f *serviceFixture) seed(t *testing.T, email, password string, role domain.Role, status domain.AccountStatus) *domain.User {
	t.Helper()
	hash, err := auth.HashPassword(password, 4)
	require.NoError(t, err)
	return f.repo.Seed(&domain.User{
		Name:         "Seeded " + string(role),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       status,
	})
}

func TestAuthService_LoginActive(t *testing.T) {
	f := newServiceFixture(t)
	seeded := f.seed(t, "ada@school.test", "pw-123456", domain.RoleTeacher, domain.AccountStatusActive)
	f.repo.ResetCounters()

	result, err := f.svc.Login(context.Background(), "  Ada@School.test ", "pw-123456")
	require.NoError(t, err)
	assert.Regexp(t, opaqueTokenRe, result.Token)
	assert.Equal(t, seeded.ID, result.User.ID)
	assert.Equal(t, 1, f.repo.Reads)
	assert.Equal(t, 1, f.repo.Writes)

	stored := f.repo.Snapshot(seeded.ID)
	require.NotNil(t, stored.SessionToken)
	assert.Equal(t, result.Token, *stored.SessionToken)
	assert.Equal(t, serviceEpoch, *stored.SessionIssuedAt)
	assert.Equal(t, 1, f.limiter.resets)
	assert.Equal(t, 1, f.logs.FilterMessage(string(events.EventLoginSucceeded)).Len())
}

func TestAuthService_LoginTwiceSupersedesFirstSession(t *testing.T) {
	f := newServiceFixture(t)
	f.seed(t, "ada@school.test", "pw-123456", domain.RoleTeacher, domain.AccountStatusActive)
	ctx := context.Background()

	first, err := f.svc.Login(ctx, "ada@school.test", "pw-123456")
	require.NoError(t, err)
	second, err := f.svc.Login(ctx, "ada@school.test", "pw-123456")
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	_, err = f.resolver.Authenticate(ctx, "Bearer "+first.Token)
	assert.ErrorIs(t, err, auth.ErrUnknownOpaqueToken)

	identity, err := f.resolver.Authenticate(ctx, "Bearer "+second.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTeacher, identity.Role)
	assert.Equal(t, "ada@school.test", identity.Email)

	assert.Equal(t, 1, f.logs.FilterMessage(string(events.EventSessionSuperseded)).Len())
}

func TestAuthService_LoginPendingAccount(t *testing.T) {
	f := newServiceFixture(t)
	seeded := f.seed(t, "new@school.test", "pw-123456", domain.RoleStudent, domain.AccountStatusPending)
	f.repo.ResetCounters()

	result, err := f.svc.Login(context.Background(), "new@school.test", "pw-123456")
	assert.ErrorIs(t, err, auth.ErrInactiveAccount)
	assert.Nil(t, result)
	assert.Zero(t, f.repo.Writes)
	assert.Nil(t, f.repo.Snapshot(seeded.ID).SessionToken)
}

func TestAuthService_LoginInvalidCredentials(t *testing.T) {
	f := newServiceFixture(t)
	f.seed(t, "ada@school.test", "pw-123456", domain.RoleTeacher, domain.AccountStatusActive)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "ada@school.test", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "nobody@school.test", "pw-123456")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	assert.Equal(t, 1, f.limiter.attempts["ada@school.test"])
	assert.Equal(t, 1, f.limiter.attempts["nobody@school.test"])
	assert.Equal(t, 2, f.logs.FilterMessage(string(events.EventLoginRejected)).Len())
}

func TestAuthService_LoginThrottled(t *testing.T) {
	f := newServiceFixture(t)
	f.seed(t, "ada@school.test", "pw-123456", domain.RoleTeacher, domain.AccountStatusActive)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, "ada@school.test", "wrong")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	}
	f.repo.ResetCounters()

	_, err := f.svc.Login(ctx, "ada@school.test", "pw-123456")
	assert.ErrorIs(t, err, auth.ErrTooManyAttempts)
	assert.Zero(t, f.repo.Reads)
}

func TestAuthService_Logout(t *testing.T) {
	f := newServiceFixture(t)
	seeded := f.seed(t, "ada@school.test", "pw-123456", domain.RoleTeacher, domain.AccountStatusActive)
	ctx := context.Background()

	result, err := f.svc.Login(ctx, "ada@school.test", "pw-123456")
	require.NoError(t, err)

	f.repo.ResetCounters()
	require.NoError(t, f.svc.Logout(ctx, result.Token))
	assert.Equal(t, 1, f.repo.Writes)
	assert.Nil(t, f.repo.Snapshot(seeded.ID).SessionToken)

	_, err = f.resolver.Authenticate(ctx, "Bearer "+result.Token)
	assert.ErrorIs(t, err, auth.ErrUnknownOpaqueToken)

	// unknown token: no-op
	require.NoError(t, f.svc.Logout(ctx, result.Token))
	assert.Equal(t, 1, f.logs.FilterMessage(string(events.EventLoggedOut)).Len())
}

func TestAuthService_IssueOpaqueDistinct(t *testing.T) {
	f := newServiceFixture(t)
	seeded := f.seed(t, "ada@school.test", "pw-123456", domain.RoleTeacher, domain.AccountStatusActive)
	ctx := context.Background()

	a, err := f.svc.IssueOpaque(ctx, seeded.ID)
	require.NoError(t, err)
	b, err := f.svc.IssueOpaque(ctx, seeded.ID)
	require.NoError(t, err)

	assert.Regexp(t, opaqueTokenRe, a)
	assert.Regexp(t, opaqueTokenRe, b)
	assert.NotEqual(t, a, b)
	assert.Equal(t, b, *f.repo.Snapshot(seeded.ID).SessionToken)

	_, err = f.svc.IssueOpaque(ctx, 999)
	assert.Error(t, err)
}

func TestAuthService_IssueSigned(t *testing.T) {
	f := newServiceFixture(t)
	seeded := f.seed(t, "kid@school.test", "pw-123456", domain.RoleParent, domain.AccountStatusActive)
	ctx := context.Background()

	token, exp, err := f.svc.IssueSigned(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, serviceEpoch.Add(time.Hour).Unix(), exp.Unix())

	f.repo.ResetCounters()
	identity, err := f.resolver.Authenticate(ctx, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, &domain.Identity{SubjectID: seeded.ID, Role: domain.RoleParent, Credential: domain.CredentialSigned}, identity)
	assert.Zero(t, f.repo.Reads)
}

func TestAuthService_IssueSignedRequiresActivePrincipal(t *testing.T) {
	f := newServiceFixture(t)
	seeded := f.seed(t, "ada@school.test", "pw-123456", domain.RoleTeacher, domain.AccountStatusActive)
	ctx := context.Background()

	_, err := f.svc.SetStatus(ctx, nil, seeded.ID, domain.AccountStatusSuspended)
	require.NoError(t, err)

	_, _, err = f.svc.IssueSigned(ctx, seeded.ID)
	assert.ErrorIs(t, err, auth.ErrInactiveAccount)

	_, _, err = f.svc.IssueSigned(ctx, 999)
	assert.Equal(t, http.StatusNotFound, apperrors.ToDomainError(err).HTTPStatus)
}

func TestAuthService_Register(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, RegisterInput{Name: "Kid", Email: "Kid@School.test", Password: "pw-123456", Role: domain.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, "kid@school.test", user.Email)
	assert.Equal(t, domain.AccountStatusPending, user.Status)
	assert.NotEqual(t, "pw-123456", user.PasswordHash)

	_, err = f.svc.Register(ctx, RegisterInput{Name: "Kid", Email: "kid@school.test", Password: "pw-123456", Role: domain.RoleParent})
	de := apperrors.ToDomainError(err)
	assert.Equal(t, http.StatusConflict, de.HTTPStatus)

	_, err = f.svc.Register(ctx, RegisterInput{Name: "Boss", Email: "boss@school.test", Password: "pw-123456", Role: domain.RoleAdmin})
	de = apperrors.ToDomainError(err)
	assert.Equal(t, http.StatusBadRequest, de.HTTPStatus)
}

func TestAuthService_SetStatusEndsSession(t *testing.T) {
	f := newServiceFixture(t)
	seeded := f.seed(t, "ada@school.test", "pw-123456", domain.RoleTeacher, domain.AccountStatusActive)
	ctx := context.Background()

	result, err := f.svc.Login(ctx, "ada@school.test", "pw-123456")
	require.NoError(t, err)

	admin := &domain.Identity{SubjectID: 100, Role: domain.RoleAdmin}
	updated, err := f.svc.SetStatus(ctx, admin, seeded.ID, domain.AccountStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusSuspended, updated.Status)
	assert.Nil(t, updated.SessionToken)

	_, err = f.resolver.Authenticate(ctx, result.Token)
	assert.ErrorIs(t, err, auth.ErrUnknownOpaqueToken)

	_, err = f.svc.SetStatus(ctx, admin, 999, domain.AccountStatusActive)
	assert.Equal(t, http.StatusNotFound, apperrors.ToDomainError(err).HTTPStatus)
	assert.Equal(t, 1, f.logs.FilterMessage(string(events.EventAccountStatusChanged)).Len())
}

func TestAuthService_ChangePassword(t *testing.T) {
	f := newServiceFixture(t)
	seeded := f.seed(t, "ada@school.test", "pw-123456", domain.RoleTeacher, domain.AccountStatusActive)
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, seeded.ID, "wrong", "new-password")
	assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
	de := apperrors.ToDomainError(err)
	assert.Equal(t, http.StatusBadRequest, de.HTTPStatus)
	assert.Contains(t, de.Details, "current_password")

	require.NoError(t, f.svc.ChangePassword(ctx, seeded.ID, "pw-123456", "new-password"))
	_, err = f.svc.Login(ctx, "ada@school.test", "pw-123456")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "ada@school.test", "new-password")
	assert.NoError(t, err)
}

func TestAuthService_Profile(t *testing.T) {
	f := newServiceFixture(t)
	seeded := f.seed(t, "ada@school.test", "pw-123456", domain.RoleTeacher, domain.AccountStatusActive)

	user, err := f.svc.Profile(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@school.test", user.Email)

	_, err = f.svc.Profile(context.Background(), 404)
	var de *apperrors.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)
}

func TestAuthService_ChangePasswordMissingPrincipal(t *testing.T) {
	f := newServiceFixture(t)

	err := f.svc.ChangePassword(context.Background(), 404, "pw-123456", "new-password")
	de := apperrors.ToDomainError(err)
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)
	assert.Equal(t, "user not found", de.Message)
}
