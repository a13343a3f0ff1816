package phoneauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	errResendWindowActive       = errors.New("resend window active")
	errSendRateLimited          = errors.New("send rate limited")
	errResendLimiterUnavailable = errors.New("resend limiter unavailable")
)

// resendLimiter gates challenge sends. Per phone number it holds a
// cooldown key armed after each successful send; per IP it enforces a
// fixed window.
type resendLimiter struct {
	redis  *redis.Client
	config OTPConfig
}

func newResendLimiter(redisClient *redis.Client, cfg OTPConfig) *resendLimiter {
	return &resendLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Check rejects the send when the phone cooldown is armed or the IP
// window is exhausted. Called before any provider work.
func (l *resendLimiter) Check(ctx context.Context, phoneNumber, ip string) error {
	exists, err := l.redis.Exists(ctx, resendCooldownKey(phoneNumber)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errResendLimiterUnavailable, err)
	}
	if exists > 0 {
		return errResendWindowActive
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, sendIPKey(ip)); err != nil {
			return err
		}
	}

	return nil
}

// Arm starts the cooldown window for a phone number. Called only after
// the provider accepted the send, so a failed dispatch never locks the
// user out of retrying.
func (l *resendLimiter) Arm(ctx context.Context, phoneNumber string) error {
	if err := l.redis.Set(ctx, resendCooldownKey(phoneNumber), "1", l.config.ResendCooldown).Err(); err != nil {
		return fmt.Errorf("%w: %v", errResendLimiterUnavailable, err)
	}
	return nil
}

// Reset clears the cooldown window, used when a challenge is cancelled.
func (l *resendLimiter) Reset(ctx context.Context, phoneNumber string) error {
	if err := l.redis.Del(ctx, resendCooldownKey(phoneNumber)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errResendLimiterUnavailable, err)
	}
	return nil
}

func (l *resendLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errResendLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.IPWindow).Err(); err != nil {
			return fmt.Errorf("%w: %v", errResendLimiterUnavailable, err)
		}
	}

	if count > int64(l.config.IPMaxSends) {
		return errSendRateLimited
	}

	return nil
}

func resendCooldownKey(phoneNumber string) string {
	return "apcd:" + phoneNumber
}

func sendIPKey(ip string) string {
	return "apip:" + ip
}
