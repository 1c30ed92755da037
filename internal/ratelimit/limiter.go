// Package ratelimit throttles password guessing with redis counters shared by
// every instance of the service.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	autherror "github.com/socialblog/auth-service/internal/errors"

	"github.com/redis/go-redis/v9"
)

var ErrRedisUnavailable = errors.New("rate limiter backend unavailable")

type Config struct {
	MaxAttempts int
	Window      time.Duration
	Prefix      string
}

// LoginLimiter counts failed logins per email and per IP. Each counter lives
// for one window starting at its first failure.
type LoginLimiter struct {
	redis  redis.UniversalClient
	config Config
}

func NewLoginLimiter(client redis.UniversalClient, cfg Config) *LoginLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "login:fail"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	return &LoginLimiter{redis: client, config: cfg}
}

// Allow returns autherror.ErrTooManyLoginAttempts once either counter has
// reached the budget.
func (l *LoginLimiter) Allow(ctx context.Context, email, ip string) error {
	for _, key := range l.keys(email, ip) {
		count, err := l.redis.Get(ctx, key).Int()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count >= l.config.MaxAttempts {
			return autherror.ErrTooManyLoginAttempts
		}
	}
	return nil
}

// Fail records a failed attempt and reports autherror.ErrTooManyLoginAttempts
// when this attempt used up the budget.
func (l *LoginLimiter) Fail(ctx context.Context, email, ip string) error {
	exceeded := false
	for _, key := range l.keys(email, ip) {
		count, err := l.increment(ctx, key)
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxAttempts) {
			exceeded = true
		}
	}
	if exceeded {
		return autherror.ErrTooManyLoginAttempts
	}
	return nil
}

// Reset clears the email counter after a successful password check. The IP
// counter is left alone so one good account cannot launder guesses against others.
func (l *LoginLimiter) Reset(ctx context.Context, email, _ string) error {
	if err := l.redis.Del(ctx, l.emailKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *LoginLimiter) attempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.emailKey(email)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

func (l *LoginLimiter) increment(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}

func (l *LoginLimiter) keys(email, ip string) []string {
	keys := []string{l.emailKey(email)}
	if ip != "" {
		keys = append(keys, l.config.Prefix+":ip:"+ip)
	}
	return keys
}

func (l *LoginLimiter) emailKey(email string) string {
	return l.config.Prefix + ":email:" + strings.ToLower(email)
}
