package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/school-service/internal/domain"
)

// stubSessions is a SessionLookup keyed by token that counts reads.
type stubSessions struct {
	users map[string]*domain.User
	err   error
	reads int
}

func (s *stubSessions) GetBySessionToken(_ context.Context, token string) (*domain.User, error) {
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[token]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

const opaqueFixture = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newResolverFixture(maxAge time.Duration) (*IdentityResolver, *stubSessions, *TokenCodec) {
	issued := testEpoch.Add(-time.Hour)
	sessions := &stubSessions{users: map[string]*domain.User{
		opaqueFixture: {
			ID:              11,
			Email:           "teacher@school.test",
			Role:            domain.RoleTeacher,
			Status:          domain.AccountStatusActive,
			SessionIssuedAt: &issued,
		},
	}}
	codec := newTestCodec("secret", testEpoch)
	resolver := NewIdentityResolver(ResolverConfig{
		Codec:         codec,
		Sessions:      sessions,
		SessionMaxAge: maxAge,
		Now:           fixedClock(testEpoch),
	})
	return resolver, sessions, codec
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":     "abc",
		"bearer abc":     "abc",
		"BEARER   abc  ": "abc",
		"abc":            "abc",
	}
	for header, want := range cases {
		got, err := BearerToken(header)
		require.NoError(t, err, header)
		assert.Equal(t, want, got)
	}

	for _, header := range []string{"", "   ", "Bearer ", "Bearer    "} {
		_, err := BearerToken(header)
		assert.ErrorIs(t, err, ErrNoToken, header)
	}
}

func TestIdentityResolver_SignedTokenSkipsStorage(t *testing.T) {
	resolver, sessions, codec := newResolverFixture(0)
	token, _, err := codec.Encode(5, domain.RoleAdmin)
	require.NoError(t, err)

	identity, err := resolver.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, &domain.Identity{SubjectID: 5, Role: domain.RoleAdmin, Credential: domain.CredentialSigned}, identity)
	assert.False(t, identity.FromSession())
	assert.Zero(t, sessions.reads)
}

func TestIdentityResolver_OpaqueToken(t *testing.T) {
	resolver, sessions, _ := newResolverFixture(0)

	identity, err := resolver.Authenticate(context.Background(), "Bearer "+opaqueFixture)
	require.NoError(t, err)
	assert.Equal(t, int64(11), identity.SubjectID)
	assert.Equal(t, domain.RoleTeacher, identity.Role)
	assert.Equal(t, "teacher@school.test", identity.Email)
	assert.True(t, identity.FromSession())
	assert.Equal(t, 1, sessions.reads)
}

func TestIdentityResolver_NoToken(t *testing.T) {
	resolver, sessions, _ := newResolverFixture(0)
	_, err := resolver.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Zero(t, sessions.reads)
}

func TestIdentityResolver_UnknownToken(t *testing.T) {
	resolver, sessions, _ := newResolverFixture(0)
	_, err := resolver.Authenticate(context.Background(), "Bearer not-a-real-token")
	assert.ErrorIs(t, err, ErrUnknownOpaqueToken)
	assert.Equal(t, 1, sessions.reads)
}

func TestIdentityResolver_InactivePrincipal(t *testing.T) {
	resolver, sessions, _ := newResolverFixture(0)
	sessions.users[opaqueFixture].Status = domain.AccountStatusSuspended

	_, err := resolver.Authenticate(context.Background(), opaqueFixture)
	assert.ErrorIs(t, err, ErrUnknownOpaqueToken)
}

func TestIdentityResolver_SessionMaxAge(t *testing.T) {
	resolver, sessions, _ := newResolverFixture(2 * time.Hour)
	_, err := resolver.Authenticate(context.Background(), opaqueFixture)
	require.NoError(t, err)

	old := testEpoch.Add(-3 * time.Hour)
	sessions.users[opaqueFixture].SessionIssuedAt = &old
	_, err = resolver.Authenticate(context.Background(), opaqueFixture)
	assert.ErrorIs(t, err, ErrUnknownOpaqueToken)

	sessions.users[opaqueFixture].SessionIssuedAt = nil
	_, err = resolver.Authenticate(context.Background(), opaqueFixture)
	assert.ErrorIs(t, err, ErrUnknownOpaqueToken)
}

func TestIdentityResolver_ExpiredAndTamperedSignedTokens(t *testing.T) {
	resolver, sessions, _ := newResolverFixture(0)

	old := newTestCodec("secret", testEpoch.Add(-2*time.Hour))
	expired, _, err := old.Encode(5, domain.RoleStudent)
	require.NoError(t, err)
	_, err = resolver.Authenticate(context.Background(), "Bearer "+expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	fresh, _, err := newTestCodec("secret", testEpoch).Encode(5, domain.RoleStudent)
	require.NoError(t, err)
	_, err = resolver.Authenticate(context.Background(), "Bearer "+tamperSignature(fresh))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// both fell back to one opaque lookup
	assert.Equal(t, 2, sessions.reads)
}

func TestIdentityResolver_UnknownRoleInClaims(t *testing.T) {
	resolver, _, codec := newResolverFixture(0)
	token, _, err := codec.Encode(5, domain.Role("janitor"))
	require.NoError(t, err)

	_, err = resolver.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnknownOpaqueToken)
}

func TestIdentityResolver_StorageFailure(t *testing.T) {
	resolver, sessions, _ := newResolverFixture(0)
	sessions.err = errors.New("connection reset")

	_, err := resolver.Authenticate(context.Background(), strings.Repeat("f", 64))
	require.Error(t, err)
	assert.Empty(t, Code(err))
	assert.ErrorIs(t, err, sessions.err)
}

func TestTokenCheckResult_Identity(t *testing.T) {
	_, err := TokenCheckResult{}.Identity()
	assert.ErrorIs(t, err, ErrUnknownOpaqueToken)

	_, err = invalidResult(ErrMalformedToken).Identity()
	assert.ErrorIs(t, err, ErrMalformedToken)
}
