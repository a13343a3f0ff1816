package phoneauth

import "errors"

var (
	// ErrInvalidPhoneNumber is returned when a phone number cannot be
	// normalized to E.164 form. Raised before any provider call is made.
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
	// ErrConcurrentRequest is returned when a send or confirm overlaps an
	// operation already in flight. Verification providers penalize rapid
	// repeated attempts as abuse, so this is a hard guard.
	ErrConcurrentRequest = errors.New("verification request already in flight")
	// ErrResendCooldown is returned when a resend is attempted before the
	// cooldown window from the previous successful send has elapsed.
	ErrResendCooldown = errors.New("resend cooldown active")
	// ErrPluginUnavailable is returned when the native plugin path was
	// selected but the plugin cannot serve the request and no server
	// dispatch fallback is configured.
	ErrPluginUnavailable = errors.New("native plugin unavailable")
	// ErrTooManyRequests is returned when the provider throttles the
	// caller or the confirm attempt cap is exhausted.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrQuotaExceeded is returned when the provider reports an exhausted
	// SMS or verification quota.
	ErrQuotaExceeded = errors.New("verification quota exceeded")
	// ErrChallengeInitFailure is returned when the interactive challenge
	// widget fails to initialize.
	ErrChallengeInitFailure = errors.New("challenge initialization failed")
	// ErrInvalidCode is returned when the provider rejects the submitted
	// code. The confirmation handle stays valid for another attempt.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrCodeExpired is returned when the code behind a challenge has
	// expired. The handle is discarded.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrSessionExpired is returned when the verification session behind a
	// handle no longer exists. The handle is discarded.
	ErrSessionExpired = errors.New("verification session expired")
	// ErrPhoneRequired is returned by SignIn when password authentication
	// succeeded but the profile carries no phone number. The principal is
	// signed back out before this error is surfaced.
	ErrPhoneRequired = errors.New("phone number required")
	// ErrReauthenticationRequired is returned by DeleteAccount when the
	// identity provider demands a recent sign-in. The principal is signed
	// out so the caller cannot remain half-authenticated.
	ErrReauthenticationRequired = errors.New("recent re-authentication required")
	// ErrNetworkOrTimeout is returned when a provider call fails on the
	// network or exceeds the configured provider timeout.
	ErrNetworkOrTimeout = errors.New("network failure or timeout")
	// ErrProviderUnknown wraps provider errors that map to no taxonomy
	// member. The original message is preserved for diagnostics.
	ErrProviderUnknown = errors.New("unknown provider error")
	// ErrEngineNotReady is returned when a required collaborator was not
	// configured through the Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidCredentials is returned on failed password authentication.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPrincipalExists is returned when sign-up targets an email that
	// already has an identity.
	ErrPrincipalExists = errors.New("account already exists")
	// ErrUserNotFound is returned when no identity exists for a lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrProfileNotFound is returned by ProfileStore implementations when
	// no profile document exists for a principal.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrBackendUnavailable is returned when a backing store (Redis,
	// Mongo) cannot be reached.
	ErrBackendUnavailable = errors.New("verification backend unavailable")
)

// UserMessage maps an engine error to a short actionable message suitable
// for direct display. Unknown errors get a generic retry message.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPhoneNumber):
		return "Enter the phone number in international format, e.g. +919876543210."
	case errors.Is(err, ErrConcurrentRequest):
		return "A verification is already in progress. Wait for it to finish."
	case errors.Is(err, ErrResendCooldown):
		return "Code already sent. Wait a minute before requesting another."
	case errors.Is(err, ErrPluginUnavailable):
		return "Phone verification is unavailable on this device right now."
	case errors.Is(err, ErrTooManyRequests):
		return "Too many attempts. Try again later."
	case errors.Is(err, ErrQuotaExceeded):
		return "SMS limit reached. Try again tomorrow."
	case errors.Is(err, ErrChallengeInitFailure):
		return "Could not start verification. Reload and try again."
	case errors.Is(err, ErrInvalidCode):
		return "That code is not correct. Check the SMS and retry."
	case errors.Is(err, ErrCodeExpired):
		return "That code expired. Request a new one."
	case errors.Is(err, ErrSessionExpired):
		return "Verification session expired. Start over."
	case errors.Is(err, ErrPhoneRequired):
		return "Add and verify a phone number to sign in."
	case errors.Is(err, ErrReauthenticationRequired):
		return "Sign in again to confirm this action."
	case errors.Is(err, ErrNetworkOrTimeout):
		return "Network problem. Check your connection and retry."
	case errors.Is(err, ErrInvalidCredentials):
		return "Email or password is incorrect."
	case errors.Is(err, ErrPrincipalExists):
		return "An account with this email already exists."
	default:
		return "Something went wrong. Please try again."
	}
}
