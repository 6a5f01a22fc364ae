package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/school-service/internal/auth"
)

// LoginLimiter throttles repeated login attempts for one email.
type LoginLimiter interface {
	// Allow reserves one attempt and returns auth.ErrTooManyAttempts once the
	// window's budget is spent. Reservation and check are a single step, so
	// concurrent attempts cannot overshoot the budget.
	Allow(ctx context.Context, email string) error
	// Reset forgets the attempts counted for email after a successful login.
	Reset(ctx context.Context, email string)
}

// NopLoginLimiter never throttles.
type NopLoginLimiter struct{}

func (NopLoginLimiter) Allow(context.Context, string) error { return nil }
func (NopLoginLimiter) Reset(context.Context, string)       {}

// RedisLoginLimiter counts attempts per email in a fixed window that starts
// at the first attempt. A successful login clears the count, so only
// failures accumulate. Redis errors fail open.
type RedisLoginLimiter struct {
	client      redis.Cmdable
	maxAttempts int
	window      time.Duration
	logger      *zap.Logger
}

// NewLoginLimiter returns a Redis-backed limiter, or a no-op one when
// throttling is disabled or no client is available.
func NewLoginLimiter(client redis.Cmdable, maxAttempts int, window time.Duration, logger *zap.Logger) LoginLimiter {
	if client == nil || maxAttempts <= 0 {
		return NopLoginLimiter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLoginLimiter{client: client, maxAttempts: maxAttempts, window: window, logger: logger}
}

func loginAttemptKey(email string) string {
	return "login:attempts:" + email
}

func (l *RedisLoginLimiter) Allow(ctx context.Context, email string) error {
	key := loginAttemptKey(email)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("login limiter unavailable", zap.Error(err))
		return nil
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			l.logger.Warn("login limiter expire failed", zap.Error(err))
		}
	}
	if count > int64(l.maxAttempts) {
		return auth.ErrTooManyAttempts
	}
	return nil
}

func (l *RedisLoginLimiter) Reset(ctx context.Context, email string) {
	if err := l.client.Del(ctx, loginAttemptKey(email)).Err(); err != nil {
		l.logger.Warn("login limiter reset failed", zap.Error(err))
	}
}
