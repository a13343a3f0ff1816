package phoneauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSendRejectsInvalidNumberBeforeProviderCall(t *testing.T) {
	h := newTestHarness(t, nil)

	_, err := h.engine.Send(context.Background(), "not-a-number")
	if !errors.Is(err, ErrInvalidPhoneNumber) {
		t.Fatalf("expected ErrInvalidPhoneNumber, got %v", err)
	}
	if h.dispatch.sendCalls() != 0 || h.interactive.calls != 0 {
		t.Fatal("provider must not be called for an invalid number")
	}
	if got := h.engine.Metrics().Value(MetricSendRejectedInvalidNumber); got != 1 {
		t.Fatalf("expected 1 invalid-number rejection, got %d", got)
	}
}

func TestSendNormalizesWithDefaultCountryCode(t *testing.T) {
	h := newTestHarness(t, nil)

	handle, err := h.engine.Send(context.Background(), "98765 43210")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if handle.PhoneNumber != "+919876543210" {
		t.Fatalf("expected normalized +919876543210, got %s", handle.PhoneNumber)
	}
	if handle.Provider != ProviderInteractiveWeb {
		t.Fatalf("expected interactive provider on web, got %s", handle.Provider)
	}
	if h.interactive.lastContainer != "recaptcha-container" {
		t.Fatalf("expected default widget container, got %q", h.interactive.lastContainer)
	}
}

func TestSendSingleFlight(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	if _, err := h.engine.Send(ctx, "9876543210"); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}

	_, err := h.engine.Send(ctx, "9876543210")
	if !errors.Is(err, ErrConcurrentRequest) {
		t.Fatalf("expected ErrConcurrentRequest, got %v", err)
	}
	if h.interactive.calls != 1 {
		t.Fatalf("expected exactly one provider call, got %d", h.interactive.calls)
	}
}

func TestSendCooldownAfterConfirm(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	handle, err := h.engine.Send(ctx, "9876543210")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := h.engine.Confirm(ctx, handle, "123456"); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	_, err = h.engine.Send(ctx, "9876543210")
	if !errors.Is(err, ErrResendCooldown) {
		t.Fatalf("expected ErrResendCooldown, got %v", err)
	}

	// The window lapses and sends work again.
	h.mr.FastForward(31 * time.Second)
	if _, err := h.engine.Send(ctx, "9876543210"); err != nil {
		t.Fatalf("Send after cooldown failed: %v", err)
	}
}

func TestSendCooldownNotArmedOnProviderFailure(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	h.interactive.beginErr = errors.New("auth/network-request-failed")

	_, err := h.engine.Send(ctx, "9876543210")
	if !errors.Is(err, ErrNetworkOrTimeout) {
		t.Fatalf("expected ErrNetworkOrTimeout, got %v", err)
	}

	// The failed dispatch must not lock out a retry.
	h.interactive.beginErr = nil
	if _, err := h.engine.Send(ctx, "9876543210"); err != nil {
		t.Fatalf("retry after provider failure failed: %v", err)
	}
}

func TestSendIPThrottle(t *testing.T) {
	h := newTestHarness(t, func(cfg *Config, _ *Builder) {
		cfg.OTP.IPMaxSends = 1
	})
	ctx := WithClientIP(context.Background(), "10.0.0.1")

	if _, err := h.engine.Send(ctx, "9876543210"); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}
	if err := h.engine.Cancel(ctx); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	_, err := h.engine.Send(ctx, "9876543210")
	if !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("expected ErrTooManyRequests from IP window, got %v", err)
	}
	if got := h.engine.Metrics().Value(MetricSendRateLimited); got != 1 {
		t.Fatalf("expected 1 rate-limited send, got %d", got)
	}
}

func TestConfirmWrongThenRightCodeSameHandle(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	handle, err := h.engine.Send(ctx, "9876543210")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	_, err = h.engine.Confirm(ctx, handle, "000000")
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	result, err := h.engine.Confirm(ctx, handle, "123456")
	if err != nil {
		t.Fatalf("Confirm with correct code failed: %v", err)
	}
	if result.PhoneNumber != "+919876543210" {
		t.Fatalf("expected result phone from challenge record, got %s", result.PhoneNumber)
	}
	if got := h.engine.Metrics().Value(MetricConfirmSuccess); got != 1 {
		t.Fatalf("expected 1 confirm success, got %d", got)
	}
}

func TestConfirmEmptyCodeRejectedLocally(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	handle, err := h.engine.Send(ctx, "9876543210")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if _, err := h.engine.Confirm(ctx, handle, ""); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode for empty code, got %v", err)
	}
	if h.interactive.session.confirmCount() != 0 {
		t.Fatal("empty code must not reach the provider")
	}

	// The handle stays valid.
	if _, err := h.engine.Confirm(ctx, handle, "123456"); err != nil {
		t.Fatalf("Confirm after empty code failed: %v", err)
	}
}

func TestConfirmAttemptCapDiscardsHandle(t *testing.T) {
	h := newTestHarness(t, func(cfg *Config, _ *Builder) {
		cfg.OTP.MaxAttempts = 2
	})
	ctx := context.Background()

	handle, err := h.engine.Send(ctx, "9876543210")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if _, err := h.engine.Confirm(ctx, handle, "000001"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if _, err := h.engine.Confirm(ctx, handle, "000002"); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("expected ErrTooManyRequests at the cap, got %v", err)
	}

	// The discarded handle no longer confirms, even with the right code.
	if _, err := h.engine.Confirm(ctx, handle, "123456"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired after discard, got %v", err)
	}
	if got := h.engine.Metrics().Value(MetricConfirmAttemptsExceeded); got != 1 {
		t.Fatalf("expected 1 attempts-exceeded, got %d", got)
	}
}

func TestConfirmExpiredChallenge(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	handle, err := h.engine.Send(ctx, "9876543210")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	h.mr.FastForward(6 * time.Minute)

	if _, err := h.engine.Confirm(ctx, handle, "123456"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired for expired challenge, got %v", err)
	}

	// Flight returned to idle, so a new send works.
	h.mr.FastForward(time.Minute)
	if _, err := h.engine.Send(ctx, "9876543210"); err != nil {
		t.Fatalf("Send after expiry failed: %v", err)
	}
}

func TestConfirmTransientErrorRetainsHandle(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	handle, err := h.engine.Send(ctx, "9876543210")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	h.interactive.session.err = errors.New("auth/network-request-failed")
	if _, err := h.engine.Confirm(ctx, handle, "123456"); !errors.Is(err, ErrNetworkOrTimeout) {
		t.Fatalf("expected ErrNetworkOrTimeout, got %v", err)
	}

	// Same handle, same code, after the network recovers.
	h.interactive.session.err = nil
	if _, err := h.engine.Confirm(ctx, handle, "123456"); err != nil {
		t.Fatalf("Confirm after transient failure failed: %v", err)
	}
}

func TestConfirmStaleHandle(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	stale := ConfirmationHandle{ID: "bogus", PhoneNumber: "+919876543210"}
	if _, err := h.engine.Confirm(ctx, stale, "123456"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired for stale handle, got %v", err)
	}
}

func TestCancelClearsChallengeAndCooldown(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	handle, err := h.engine.Send(ctx, "9876543210")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if err := h.engine.Cancel(ctx); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	// Cooldown cleared: an immediate re-send succeeds.
	if _, err := h.engine.Send(ctx, "9876543210"); err != nil {
		t.Fatalf("Send after cancel failed: %v", err)
	}

	// The cancelled handle is dead.
	if _, err := h.engine.Confirm(ctx, handle, "123456"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired for cancelled handle, got %v", err)
	}
}

func TestCancelWithNothingInFlightIsNoOp(t *testing.T) {
	h := newTestHarness(t, nil)

	if err := h.engine.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel with nothing in flight must return nil, got %v", err)
	}
	if got := h.engine.Metrics().Value(MetricChallengeCancelled); got != 0 {
		t.Fatalf("no-op cancel must not count, got %d", got)
	}
}

func TestNativeFallbackToServerDispatch(t *testing.T) {
	native := &spyNative{available: true, startErr: ErrPluginUnavailable}
	h := newTestHarness(t, func(_ *Config, b *Builder) {
		b.WithNativeProvider(native)
	})

	ctx := WithPlatform(context.Background(), PlatformAndroid)

	handle, err := h.engine.Send(ctx, "9876543210")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if handle.Provider != ProviderServerDispatch {
		t.Fatalf("expected fallback to server dispatch, got %s", handle.Provider)
	}
	if native.calls != 1 {
		t.Fatalf("expected one plugin attempt, got %d", native.calls)
	}
	if h.dispatch.sendCalls() != 1 {
		t.Fatalf("expected one dispatch call, got %d", h.dispatch.sendCalls())
	}
	if got := h.engine.Metrics().Value(MetricNativeFallback); got != 1 {
		t.Fatalf("expected 1 native fallback, got %d", got)
	}

	// The challenge completes on the fallback session.
	if _, err := h.engine.Confirm(ctx, handle, "123456"); err != nil {
		t.Fatalf("Confirm on fallback session failed: %v", err)
	}
}

func TestNativeUnavailableSelectsServerDispatch(t *testing.T) {
	native := &spyNative{available: false}
	h := newTestHarness(t, func(_ *Config, b *Builder) {
		b.WithNativeProvider(native)
	})

	ctx := WithPlatform(context.Background(), PlatformIOS)

	handle, err := h.engine.Send(ctx, "9876543210")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if handle.Provider != ProviderServerDispatch {
		t.Fatalf("expected server dispatch, got %s", handle.Provider)
	}
	if native.calls != 0 {
		t.Fatal("unavailable plugin must not be invoked")
	}
	if h.interactive.calls != 0 {
		t.Fatal("interactive path must never serve a native shell")
	}
}

func TestSendClassifiesProviderError(t *testing.T) {
	h := newTestHarness(t, nil)

	h.interactive.beginErr = errors.New("rpc failed: auth/quota-exceeded (project limit)")

	_, err := h.engine.Send(context.Background(), "9876543210")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestConfirmLatencyHistogramRecorded(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	handle, err := h.engine.Send(ctx, "9876543210")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := h.engine.Confirm(ctx, handle, "123456"); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	buckets := snap.Histograms[MetricConfirmLatency]
	if len(buckets) == 0 {
		t.Fatal("expected latency histogram in snapshot")
	}
	var total uint64
	for _, b := range buckets {
		total += b
	}
	if total != 1 {
		t.Fatalf("expected one latency sample, got %d", total)
	}
}
