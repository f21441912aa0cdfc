package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aihub-platform/backend/pkg/apperr"
)

// LoginMaxAttempts and LoginWindow match spec §4.10's brute-force limit:
// 5 attempts per client address per minute.
const (
	LoginMaxAttempts = 5
	LoginWindow      = time.Minute
)

// LoginRateLimiter limits login attempts per client address using Redis
// INCR + EXPIRE, grounded on wisbric-nightowl's internal/auth.RateLimiter.
type LoginRateLimiter struct {
	redis      *redis.Client
	maxAttempt int
	window     time.Duration
}

func NewLoginRateLimiter(rdb *redis.Client) *LoginRateLimiter {
	return &LoginRateLimiter{redis: rdb, maxAttempt: LoginMaxAttempts, window: LoginWindow}
}

// Check returns apperr.RateLimited if addr has exhausted its attempt budget,
// with RetryAfter populated from the counter's remaining TTL so the API
// layer can surface the {"error":"RateLimitExceeded", ...} shape.
func (rl *LoginRateLimiter) Check(ctx context.Context, addr string) error {
	key := rl.key(addr)

	count, err := rl.redis.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("checking login rate limit: %w", err)
	}
	if count < rl.maxAttempt {
		return nil
	}

	ttl, err := rl.redis.TTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("getting login rate limit ttl: %w", err)
	}
	return apperr.RateLimited("too many login attempts", int(ttl.Seconds()))
}

// RecordFailure increments the failed-attempt counter, setting the window
// expiry on the first increment.
func (rl *LoginRateLimiter) RecordFailure(ctx context.Context, addr string) error {
	key := rl.key(addr)

	incr := rl.redis.Incr(ctx, key)
	if err := incr.Err(); err != nil {
		return fmt.Errorf("recording login failure: %w", err)
	}
	if incr.Val() == 1 {
		if err := rl.redis.Expire(ctx, key, rl.window).Err(); err != nil {
			return fmt.Errorf("setting login rate limit expiry: %w", err)
		}
	}
	return nil
}

// Reset clears the counter for addr after a successful login.
func (rl *LoginRateLimiter) Reset(ctx context.Context, addr string) error {
	return rl.redis.Del(ctx, rl.key(addr)).Err()
}

func (rl *LoginRateLimiter) key(addr string) string {
	return "login_ratelimit:" + addr
}

// Category names one of spec §6's per-IP rate-limit buckets other than
// login (which LoginRateLimiter owns on its own counter/window).
type Category string

const (
	CategoryChat       Category = "chat"
	CategoryUpload     Category = "upload"
	CategorySettings   Category = "settings"
	CategoryKeyMgmt    Category = "key_mgmt"
)

// categoryLimits gives each category's requests-per-minute ceiling, per
// spec §6: chat 30/min, upload 10/min, settings 10/min, key management
// 10/min.
var categoryLimits = map[Category]int{
	CategoryChat:     30,
	CategoryUpload:   10,
	CategorySettings: 10,
	CategoryKeyMgmt:  10,
}

// RateLimiter enforces the non-login per-IP request ceilings of spec §6
// with the same Redis INCR+EXPIRE counter shape as LoginRateLimiter,
// keyed by category so chat/upload/settings/key-mgmt each get an
// independent budget per client address.
type RateLimiter struct {
	redis  *redis.Client
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{redis: rdb, window: time.Minute}
}

// Allow increments addr's counter for category and returns apperr.RateLimited
// once it exceeds the category's per-minute ceiling.
func (rl *RateLimiter) Allow(ctx context.Context, category Category, addr string) error {
	limit, ok := categoryLimits[category]
	if !ok {
		return fmt.Errorf("rate limit: unknown category %q", category)
	}

	key := rl.key(category, addr)
	incr := rl.redis.Incr(ctx, key)
	if err := incr.Err(); err != nil {
		return fmt.Errorf("checking %s rate limit: %w", category, err)
	}
	if incr.Val() == 1 {
		if err := rl.redis.Expire(ctx, key, rl.window).Err(); err != nil {
			return fmt.Errorf("setting %s rate limit expiry: %w", category, err)
		}
	}
	if incr.Val() <= int64(limit) {
		return nil
	}

	ttl, err := rl.redis.TTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("getting %s rate limit ttl: %w", category, err)
	}
	return apperr.RateLimited(fmt.Sprintf("%s rate limit exceeded", category), int(ttl.Seconds()))
}

func (rl *RateLimiter) key(category Category, addr string) string {
	return fmt.Sprintf("ratelimit:%s:%s", category, addr)
}
