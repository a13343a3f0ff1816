// Package phoneauth provides the phone-number OTP verification core of a
// property-management product: a dual-path challenge engine (interactive
// web widget, native mobile plugin, or server-side SMS dispatch), a
// single-flight send/confirm lifecycle with resend cooldown, profile
// reconciliation after successful verification, and an auth facade that
// enforces phone verification as a mandatory second factor.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// phoneauth is the public surface. It exposes [Engine], [Builder],
// [Config], the collaborator interfaces ([IdentityProvider],
// [ProfileStore], the challenge providers), and value types. Challenge
// records and cooldown windows are parked in Redis; live provider
// sessions are held per Engine instance and addressed through opaque
// [ConfirmationHandle] values.
//
// # What this package must NOT do
//
//   - Render anything, route anything, or talk to an SMS carrier; the
//     sender behind server dispatch is an opaque collaborator.
//   - Attempt the interactive web challenge inside a native WebView.
//     Provider selection treats that as a defect, not a degraded mode.
//   - Hold more than one in-flight challenge per Engine instance.
package phoneauth
