package phoneauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventOTPSend             = "otp_send"
	auditEventOTPSendRateLimited  = "otp_send_rate_limited"
	auditEventOTPNativeFallback   = "otp_native_fallback"
	auditEventOTPConfirm          = "otp_confirm"
	auditEventOTPCancel           = "otp_cancel"
	auditEventProfileReconciled   = "profile_reconciled"
	auditEventPhoneLinked         = "phone_linked"
	auditEventSignUpSuccess       = "sign_up_success"
	auditEventSignUpFailure       = "sign_up_failure"
	auditEventSignInSuccess       = "sign_in_success"
	auditEventSignInFailure       = "sign_in_failure"
	auditEventSignInPhoneMissing  = "sign_in_phone_missing"
	auditEventGuestSession        = "guest_session"
	auditEventSignOut             = "sign_out"
	auditEventPasswordReset       = "password_reset_request"
	auditEventAccountDeleted      = "account_deleted"
	auditEventAccountDeleteDenied = "account_delete_denied"
)

// AuditErrorCode is the stable machine-readable form an engine error
// takes inside an AuditEvent.
type AuditErrorCode string

const (
	auditErrInvalidPhone       AuditErrorCode = "invalid_phone_number"
	auditErrConcurrent         AuditErrorCode = "concurrent_request"
	auditErrCooldown           AuditErrorCode = "resend_cooldown"
	auditErrPluginUnavailable  AuditErrorCode = "plugin_unavailable"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrQuotaExceeded      AuditErrorCode = "quota_exceeded"
	auditErrChallengeInit      AuditErrorCode = "challenge_init_failure"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrCodeExpired        AuditErrorCode = "code_expired"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrPhoneRequired      AuditErrorCode = "phone_required"
	auditErrReauthRequired     AuditErrorCode = "reauthentication_required"
	auditErrNetwork            AuditErrorCode = "network_or_timeout"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	phoneNumber string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		PhoneNumber: phoneNumber,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidPhoneNumber):
		return auditErrInvalidPhone
	case errors.Is(err, ErrConcurrentRequest):
		return auditErrConcurrent
	case errors.Is(err, ErrResendCooldown):
		return auditErrCooldown
	case errors.Is(err, ErrPluginUnavailable):
		return auditErrPluginUnavailable
	case errors.Is(err, ErrTooManyRequests):
		return auditErrRateLimited
	case errors.Is(err, ErrQuotaExceeded):
		return auditErrQuotaExceeded
	case errors.Is(err, ErrChallengeInitFailure):
		return auditErrChallengeInit
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrPhoneRequired):
		return auditErrPhoneRequired
	case errors.Is(err, ErrReauthenticationRequired):
		return auditErrReauthRequired
	case errors.Is(err, ErrNetworkOrTimeout):
		return auditErrNetwork
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrPrincipalExists):
		return auditErrDuplicate
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrProfileNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
