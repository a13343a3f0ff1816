package phoneauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func limiterTestConfig() OTPConfig {
	cfg := defaultConfig().OTP
	cfg.ResendCooldown = 30 * time.Second
	cfg.IPMaxSends = 2
	cfg.IPWindow = time.Hour
	return cfg
}

func TestResendLimiterCooldown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	limiter := newResendLimiter(rdb, limiterTestConfig())
	ctx := context.Background()
	phone := "+919876543210"

	if err := limiter.Check(ctx, phone, ""); err != nil {
		t.Fatalf("first check must pass: %v", err)
	}
	if err := limiter.Arm(ctx, phone); err != nil {
		t.Fatalf("Arm failed: %v", err)
	}

	if err := limiter.Check(ctx, phone, ""); !errors.Is(err, errResendWindowActive) {
		t.Fatalf("expected errResendWindowActive, got %v", err)
	}

	// Another number is unaffected.
	if err := limiter.Check(ctx, "+919876500000", ""); err != nil {
		t.Fatalf("other number must pass: %v", err)
	}

	mr.FastForward(31 * time.Second)
	if err := limiter.Check(ctx, phone, ""); err != nil {
		t.Fatalf("check after cooldown must pass: %v", err)
	}
}

func TestResendLimiterReset(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	limiter := newResendLimiter(rdb, limiterTestConfig())
	ctx := context.Background()
	phone := "+919876543210"

	if err := limiter.Arm(ctx, phone); err != nil {
		t.Fatalf("Arm failed: %v", err)
	}
	if err := limiter.Reset(ctx, phone); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := limiter.Check(ctx, phone, ""); err != nil {
		t.Fatalf("check after reset must pass: %v", err)
	}
}

func TestResendLimiterIPWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	limiter := newResendLimiter(rdb, limiterTestConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.Check(ctx, "+919876543210", "10.0.0.1"); err != nil {
			t.Fatalf("check %d must pass: %v", i, err)
		}
	}

	if err := limiter.Check(ctx, "+919876543210", "10.0.0.1"); !errors.Is(err, errSendRateLimited) {
		t.Fatalf("expected errSendRateLimited, got %v", err)
	}

	// Different IP has its own window.
	if err := limiter.Check(ctx, "+919876543210", "10.0.0.2"); err != nil {
		t.Fatalf("other IP must pass: %v", err)
	}

	mr.FastForward(2 * time.Hour)
	if err := limiter.Check(ctx, "+919876543210", "10.0.0.1"); err != nil {
		t.Fatalf("check after window must pass: %v", err)
	}
}

func TestResendLimiterIPThrottleDisabled(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	cfg := limiterTestConfig()
	cfg.EnableIPThrottle = false
	limiter := newResendLimiter(rdb, cfg)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := limiter.Check(ctx, "+919876543210", "10.0.0.1"); err != nil {
			t.Fatalf("check %d must pass with throttle off: %v", i, err)
		}
	}
}
