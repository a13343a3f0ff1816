package internaldefs

import (
	phoneauth "github.com/stayhq/phoneauth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   phoneauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   phoneauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: phoneauth.MetricSendSuccess, Name: "phoneauth_otp_send_success_total", Help: "Successfully dispatched verification challenges."},
	{ID: phoneauth.MetricSendFailure, Name: "phoneauth_otp_send_failure_total", Help: "Challenge sends rejected by a provider."},
	{ID: phoneauth.MetricSendRejectedInvalidNumber, Name: "phoneauth_otp_send_invalid_number_total", Help: "Sends rejected at phone number normalization."},
	{ID: phoneauth.MetricSendRejectedInFlight, Name: "phoneauth_otp_send_in_flight_total", Help: "Sends refused by the single-flight guard."},
	{ID: phoneauth.MetricSendRejectedCooldown, Name: "phoneauth_otp_send_cooldown_total", Help: "Sends refused by the resend cooldown window."},
	{ID: phoneauth.MetricSendRateLimited, Name: "phoneauth_otp_send_rate_limited_total", Help: "Sends refused by the per-IP window."},
	{ID: phoneauth.MetricNativeFallback, Name: "phoneauth_otp_native_fallback_total", Help: "Native plugin sends that fell back to server dispatch."},
	{ID: phoneauth.MetricConfirmSuccess, Name: "phoneauth_otp_confirm_success_total", Help: "Successful code confirmations."},
	{ID: phoneauth.MetricConfirmInvalidCode, Name: "phoneauth_otp_confirm_invalid_code_total", Help: "Wrong-code submissions."},
	{ID: phoneauth.MetricConfirmExpired, Name: "phoneauth_otp_confirm_expired_total", Help: "Confirmations against expired codes or sessions."},
	{ID: phoneauth.MetricConfirmAttemptsExceeded, Name: "phoneauth_otp_confirm_attempts_exceeded_total", Help: "Challenges discarded at the attempt cap."},
	{ID: phoneauth.MetricChallengeCancelled, Name: "phoneauth_otp_cancelled_total", Help: "Explicitly cancelled challenges."},
	{ID: phoneauth.MetricReconcileCreated, Name: "phoneauth_profile_reconcile_created_total", Help: "Profiles created by reconciliation."},
	{ID: phoneauth.MetricReconcileUpdated, Name: "phoneauth_profile_reconcile_updated_total", Help: "Profiles updated by reconciliation."},
	{ID: phoneauth.MetricSignInSuccess, Name: "phoneauth_sign_in_success_total", Help: "Completed password sign-ins."},
	{ID: phoneauth.MetricSignInFailure, Name: "phoneauth_sign_in_failure_total", Help: "Rejected password sign-ins."},
	{ID: phoneauth.MetricSignInPhoneRequired, Name: "phoneauth_sign_in_phone_required_total", Help: "Sign-ins reverted because the profile carries no phone number."},
	{ID: phoneauth.MetricSignUpSuccess, Name: "phoneauth_sign_up_success_total", Help: "Completed sign-ups."},
	{ID: phoneauth.MetricSignUpFailure, Name: "phoneauth_sign_up_failure_total", Help: "Rejected sign-ups."},
	{ID: phoneauth.MetricGuestSession, Name: "phoneauth_guest_session_total", Help: "Anonymous sign-ins."},
	{ID: phoneauth.MetricSignOut, Name: "phoneauth_sign_out_total", Help: "Sign-outs."},
	{ID: phoneauth.MetricAccountDeleted, Name: "phoneauth_account_deleted_total", Help: "Completed account deletions."},
	{ID: phoneauth.MetricAccountDeleteReauth, Name: "phoneauth_account_delete_reauth_total", Help: "Deletions blocked pending re-authentication."},
}

var HistogramDefs = []HistogramDef{
	{ID: phoneauth.MetricConfirmLatency, Name: "phoneauth_confirm_latency_seconds", Help: "Send-to-verified latency histogram."},
}

// HistogramBounds mirror the engine's confirm latency buckets, in
// seconds.
var HistogramBounds = []string{
	"1",
	"5",
	"15",
	"30",
	"60",
	"120",
	"300",
	"+Inf",
}

// HistogramUpperBounds are the same bounds as float64 values for
// exporters that take numeric buckets.
var HistogramUpperBounds = []float64{1, 5, 15, 30, 60, 120, 300}

// HistogramBoundSuffix is the metric-name-safe form of each bound.
var HistogramBoundSuffix = []string{
	"1",
	"5",
	"15",
	"30",
	"60",
	"120",
	"300",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot to the fixed bucket
// count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
