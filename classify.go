package phoneauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// classifyProviderError maps an error from a challenge provider onto the
// package taxonomy. Providers in the Firebase family report stable
// "auth/..." code strings inside their messages, so matching is by code
// substring. Errors that already carry a package sentinel pass through
// unchanged; anything unmapped becomes ErrProviderUnknown with the
// original message preserved.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}

	for _, sentinel := range []error{
		ErrInvalidPhoneNumber,
		ErrConcurrentRequest,
		ErrResendCooldown,
		ErrPluginUnavailable,
		ErrTooManyRequests,
		ErrQuotaExceeded,
		ErrChallengeInitFailure,
		ErrInvalidCode,
		ErrCodeExpired,
		ErrSessionExpired,
		ErrNetworkOrTimeout,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrNetworkOrTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "auth/invalid-phone-number", "auth/missing-phone-number"):
		return fmt.Errorf("%w: %v", ErrInvalidPhoneNumber, err)
	case containsAny(msg, "auth/too-many-requests"):
		return fmt.Errorf("%w: %v", ErrTooManyRequests, err)
	case containsAny(msg, "auth/quota-exceeded", "auth/sms-quota-exceeded"):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	case containsAny(msg, "auth/invalid-verification-code", "auth/missing-verification-code"):
		return fmt.Errorf("%w: %v", ErrInvalidCode, err)
	case containsAny(msg, "auth/code-expired"):
		return fmt.Errorf("%w: %v", ErrCodeExpired, err)
	case containsAny(msg, "auth/session-expired", "auth/invalid-verification-id", "auth/missing-verification-id"):
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	case containsAny(msg, "auth/captcha-check-failed", "auth/invalid-app-credential", "auth/app-not-authorized", "auth/missing-app-credential"):
		return fmt.Errorf("%w: %v", ErrChallengeInitFailure, err)
	case containsAny(msg, "auth/network-request-failed", "auth/timeout", "auth/internal-error"):
		return fmt.Errorf("%w: %v", ErrNetworkOrTimeout, err)
	case containsAny(msg, "auth/requires-recent-login"):
		return fmt.Errorf("%w: %v", ErrReauthenticationRequired, err)
	case containsAny(msg, "auth/user-not-found"):
		return fmt.Errorf("%w: %v", ErrUserNotFound, err)
	case containsAny(msg, "auth/wrong-password", "auth/invalid-credential", "auth/invalid-login-credentials"):
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	case containsAny(msg, "auth/email-already-in-use"):
		return fmt.Errorf("%w: %v", ErrPrincipalExists, err)
	}

	return fmt.Errorf("%w: %v", ErrProviderUnknown, err)
}

// annotateForEnvironment adds an operator-facing diagnostic when a
// throttling error was produced inside a WebView. The interactive widget
// cannot pass attestation there and the provider reports the failed
// attempts as abuse; the fix is routing, not retrying. The error kind is
// unchanged.
func annotateForEnvironment(err error, env Environment) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrTooManyRequests) {
		return err
	}
	if !env.Native() && !env.InsideWebView {
		return err
	}
	return fmt.Errorf("%w (inside a WebView the interactive challenge is rejected as abuse; use the native plugin or server dispatch)", err)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
