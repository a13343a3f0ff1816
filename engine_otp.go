package phoneauth

import (
	"context"
	"errors"
	"time"

	"github.com/stayhq/phoneauth/internal"
)

// Send normalizes phoneNumber, selects a challenge provider for the
// current environment, and dispatches a verification challenge. The
// returned handle addresses the challenge for [Engine.Confirm] and stays
// valid until confirmed, cancelled, or expired.
//
// Invalid numbers are rejected before any provider call. At most one
// challenge is in flight per engine; overlapping sends get
// ErrConcurrentRequest. A send inside the resend cooldown window gets
// ErrResendCooldown.
func (e *Engine) Send(ctx context.Context, phoneNumber string) (ConfirmationHandle, error) {
	ip := clientIPFromContext(ctx)

	normalized, err := NormalizePhoneNumber(phoneNumber, e.config.OTP.DefaultCountryCode)
	if err != nil {
		e.metricInc(MetricSendRejectedInvalidNumber)
		e.emitAudit(ctx, auditEventOTPSend, false, "", "", err, nil)
		return ConfirmationHandle{}, err
	}

	if ok, current := e.flight.beginSend(); !ok {
		e.metricInc(MetricSendRejectedInFlight)
		e.emitAudit(ctx, auditEventOTPSend, false, "", normalized, ErrConcurrentRequest, func() map[string]string {
			return map[string]string{
				"state": current.String(),
			}
		})
		return ConfirmationHandle{}, ErrConcurrentRequest
	}

	if err := e.limiter.Check(ctx, normalized, ip); err != nil {
		e.flight.sendFailed()
		switch {
		case errors.Is(err, errResendWindowActive):
			e.metricInc(MetricSendRejectedCooldown)
			e.emitAudit(ctx, auditEventOTPSendRateLimited, false, "", normalized, ErrResendCooldown, nil)
			return ConfirmationHandle{}, ErrResendCooldown
		case errors.Is(err, errSendRateLimited):
			e.metricInc(MetricSendRateLimited)
			e.emitAudit(ctx, auditEventOTPSendRateLimited, false, "", normalized, ErrTooManyRequests, nil)
			return ConfirmationHandle{}, ErrTooManyRequests
		default:
			e.emitAudit(ctx, auditEventOTPSend, false, "", normalized, ErrBackendUnavailable, nil)
			return ConfirmationHandle{}, errors.Join(ErrBackendUnavailable, err)
		}
	}

	env := DetectEnvironment(ctx, e.native != nil && e.native.Available())
	kind := SelectProvider(env)

	session, kind, err := e.dispatchChallenge(ctx, kind, normalized, env)
	if err != nil {
		e.flight.sendFailed()
		e.metricInc(MetricSendFailure)
		e.emitAudit(ctx, auditEventOTPSend, false, "", normalized, err, func() map[string]string {
			return map[string]string{
				"provider": kind.String(),
			}
		})
		return ConfirmationHandle{}, err
	}

	cid, err := internal.NewChallengeID()
	if err != nil {
		e.flight.sendFailed()
		e.metricInc(MetricSendFailure)
		e.emitAudit(ctx, auditEventOTPSend, false, "", normalized, err, nil)
		return ConfirmationHandle{}, err
	}
	challengeID := cid.String()

	now := time.Now()
	record := &challengeRecord{
		PhoneNumber: normalized,
		Provider:    kind,
		IssuedAt:    now.Unix(),
		ExpiresAt:   now.Add(e.config.OTP.CodeTTL).Unix(),
	}
	if err := e.challenges.Save(ctx, challengeID, record, e.config.OTP.CodeTTL); err != nil {
		e.flight.sendFailed()
		e.metricInc(MetricSendFailure)
		e.emitAudit(ctx, auditEventOTPSend, false, "", normalized, ErrBackendUnavailable, nil)
		return ConfirmationHandle{}, errors.Join(ErrBackendUnavailable, err)
	}

	// Cooldown arms only after the provider accepted the send, so a
	// failed dispatch never locks the user out of retrying.
	if err := e.limiter.Arm(ctx, normalized); err != nil {
		e.log.Warn().Str("phone", normalized).Msg("phoneauth: cooldown arm failed")
	}

	e.flight.sendSucceeded(challengeID, normalized, kind, session)

	e.metricInc(MetricSendSuccess)
	e.emitAudit(ctx, auditEventOTPSend, true, "", normalized, nil, func() map[string]string {
		return map[string]string{
			"provider":     kind.String(),
			"challenge_id": challengeID,
		}
	})

	return ConfirmationHandle{
		ID:          challengeID,
		PhoneNumber: normalized,
		Provider:    kind,
	}, nil
}

// dispatchChallenge starts the challenge on the selected provider. A
// native plugin that cannot serve the send falls back to server dispatch
// transparently: same return contract, logged and audited.
func (e *Engine) dispatchChallenge(ctx context.Context, kind ChallengeProviderKind, phoneNumber string, env Environment) (ChallengeSession, ChallengeProviderKind, error) {
	pctx, cancel := e.providerContext(ctx)
	defer cancel()

	switch kind {
	case ProviderNativePlugin:
		if e.native != nil && e.native.Available() {
			session, err := e.native.StartVerification(pctx, phoneNumber)
			if err == nil {
				return session, ProviderNativePlugin, nil
			}
			classified := classifyProviderError(err)
			if !errors.Is(classified, ErrPluginUnavailable) {
				return nil, ProviderNativePlugin, annotateForEnvironment(classified, env)
			}
		}
		if e.dispatch == nil {
			return nil, ProviderNativePlugin, ErrPluginUnavailable
		}
		e.metricInc(MetricNativeFallback)
		e.log.Info().Str("phone", phoneNumber).Msg("phoneauth: native plugin unavailable, falling back to server dispatch")
		e.emitAudit(ctx, auditEventOTPNativeFallback, true, "", phoneNumber, nil, nil)
		session, err := e.dispatch.SendCode(pctx, phoneNumber)
		if err != nil {
			return nil, ProviderServerDispatch, annotateForEnvironment(classifyProviderError(err), env)
		}
		return session, ProviderServerDispatch, nil

	case ProviderServerDispatch:
		if e.dispatch == nil {
			return nil, ProviderServerDispatch, ErrPluginUnavailable
		}
		session, err := e.dispatch.SendCode(pctx, phoneNumber)
		if err != nil {
			return nil, ProviderServerDispatch, annotateForEnvironment(classifyProviderError(err), env)
		}
		return session, ProviderServerDispatch, nil

	default:
		if e.interactive == nil {
			if e.dispatch != nil {
				session, err := e.dispatch.SendCode(pctx, phoneNumber)
				if err != nil {
					return nil, ProviderServerDispatch, annotateForEnvironment(classifyProviderError(err), env)
				}
				return session, ProviderServerDispatch, nil
			}
			return nil, ProviderInteractiveWeb, ErrChallengeInitFailure
		}
		session, err := e.interactive.Begin(pctx, e.config.OTP.WidgetContainerID, phoneNumber)
		if err != nil {
			return nil, ProviderInteractiveWeb, annotateForEnvironment(classifyProviderError(err), env)
		}
		return session, ProviderInteractiveWeb, nil
	}
}

// Confirm submits code against the challenge behind handle. The provider
// is authoritative on correctness; the engine rejects only the empty
// string. On a wrong code the handle stays valid until the attempt cap;
// expired codes and sessions discard the handle. Success reconciles the
// profile before returning.
func (e *Engine) Confirm(ctx context.Context, handle ConfirmationHandle, code string) (*VerifiedResult, error) {
	return e.confirm(ctx, handle, code, "")
}

func (e *Engine) confirm(ctx context.Context, handle ConfirmationHandle, code, principalID string) (*VerifiedResult, error) {
	if code == "" {
		e.metricInc(MetricConfirmInvalidCode)
		e.emitAudit(ctx, auditEventOTPConfirm, false, principalID, handle.PhoneNumber, ErrInvalidCode, func() map[string]string {
			return map[string]string{
				"reason": "empty_code",
			}
		})
		return nil, ErrInvalidCode
	}

	session, ok, current := e.flight.beginConfirm(handle.ID)
	if !ok {
		if current == flightVerifying || current == flightSending {
			e.emitAudit(ctx, auditEventOTPConfirm, false, principalID, handle.PhoneNumber, ErrConcurrentRequest, nil)
			return nil, ErrConcurrentRequest
		}
		e.metricInc(MetricConfirmExpired)
		e.emitAudit(ctx, auditEventOTPConfirm, false, principalID, handle.PhoneNumber, ErrSessionExpired, func() map[string]string {
			return map[string]string{
				"reason": "stale_handle",
			}
		})
		return nil, ErrSessionExpired
	}

	record, err := e.challenges.Get(ctx, handle.ID)
	if err != nil {
		e.flight.confirmFinished(false)
		if errors.Is(err, errChallengeNotFound) {
			e.metricInc(MetricConfirmExpired)
			e.emitAudit(ctx, auditEventOTPConfirm, false, principalID, handle.PhoneNumber, ErrSessionExpired, nil)
			return nil, ErrSessionExpired
		}
		e.emitAudit(ctx, auditEventOTPConfirm, false, principalID, handle.PhoneNumber, ErrBackendUnavailable, nil)
		return nil, errors.Join(ErrBackendUnavailable, err)
	}

	pctx, cancel := e.providerContext(ctx)
	result, err := session.Confirm(pctx, code)
	cancel()
	if err != nil {
		return nil, e.confirmFailed(ctx, handle, principalID, classifyProviderError(err))
	}

	if result == nil {
		result = &VerifiedResult{}
	}
	if result.PhoneNumber == "" {
		result.PhoneNumber = record.PhoneNumber
	}
	if result.PrincipalID == "" {
		result.PrincipalID = principalID
	}

	if err := e.challenges.Delete(ctx, handle.ID); err != nil {
		e.log.Warn().Str("challenge_id", handle.ID).Msg("phoneauth: challenge cleanup failed")
	}
	e.flight.confirmFinished(false)

	if result.PrincipalID != "" {
		if _, err := e.Reconcile(ctx, result.PrincipalID, result.PhoneNumber); err != nil {
			e.emitAudit(ctx, auditEventOTPConfirm, false, result.PrincipalID, result.PhoneNumber, err, func() map[string]string {
				return map[string]string{
					"reason": "reconcile_failed",
				}
			})
			return nil, err
		}
	}

	e.metricInc(MetricConfirmSuccess)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricConfirmLatency, time.Since(time.Unix(record.IssuedAt, 0)))
	}
	e.emitAudit(ctx, auditEventOTPConfirm, true, result.PrincipalID, result.PhoneNumber, nil, func() map[string]string {
		return map[string]string{
			"provider": record.Provider.String(),
		}
	})

	return result, nil
}

// confirmFailed settles flight and store state after a rejected
// confirmation and maps the outcome onto the taxonomy.
func (e *Engine) confirmFailed(ctx context.Context, handle ConfirmationHandle, principalID string, classified error) error {
	switch {
	case errors.Is(classified, ErrInvalidCode):
		_, recErr := e.challenges.RecordFailure(ctx, handle.ID, e.config.OTP.MaxAttempts)
		if errors.Is(recErr, errChallengeAttemptsExceeded) {
			e.flight.confirmFinished(false)
			e.metricInc(MetricConfirmAttemptsExceeded)
			e.emitAudit(ctx, auditEventOTPConfirm, false, principalID, handle.PhoneNumber, ErrTooManyRequests, func() map[string]string {
				return map[string]string{
					"reason": "attempt_cap",
				}
			})
			return ErrTooManyRequests
		}
		if errors.Is(recErr, errChallengeNotFound) {
			e.flight.confirmFinished(false)
			e.metricInc(MetricConfirmExpired)
			e.emitAudit(ctx, auditEventOTPConfirm, false, principalID, handle.PhoneNumber, ErrSessionExpired, nil)
			return ErrSessionExpired
		}
		// Wrong code with attempts left: the handle stays usable.
		e.flight.confirmFinished(true)
		e.metricInc(MetricConfirmInvalidCode)
		e.emitAudit(ctx, auditEventOTPConfirm, false, principalID, handle.PhoneNumber, ErrInvalidCode, nil)
		return classified

	case errors.Is(classified, ErrCodeExpired), errors.Is(classified, ErrSessionExpired):
		if err := e.challenges.Delete(ctx, handle.ID); err != nil {
			e.log.Warn().Str("challenge_id", handle.ID).Msg("phoneauth: challenge cleanup failed")
		}
		e.flight.confirmFinished(false)
		e.metricInc(MetricConfirmExpired)
		e.emitAudit(ctx, auditEventOTPConfirm, false, principalID, handle.PhoneNumber, classified, nil)
		return classified

	default:
		// Transient failure: keep the challenge so the user can retry
		// the same code after the network recovers.
		e.flight.confirmFinished(true)
		e.emitAudit(ctx, auditEventOTPConfirm, false, principalID, handle.PhoneNumber, classified, nil)
		return classified
	}
}

// Cancel discards the in-flight challenge, if any, and returns the
// engine to idle. Cancelling with nothing in flight is a no-op. The
// resend cooldown for the cancelled number is cleared so the user can
// immediately start over with a corrected number.
func (e *Engine) Cancel(ctx context.Context) error {
	challengeID, phoneNumber, had := e.flight.cancel()
	if !had {
		return nil
	}

	if err := e.challenges.Delete(ctx, challengeID); err != nil {
		e.log.Warn().Str("challenge_id", challengeID).Msg("phoneauth: challenge cleanup failed")
	}
	if err := e.limiter.Reset(ctx, phoneNumber); err != nil {
		e.log.Warn().Str("phone", phoneNumber).Msg("phoneauth: cooldown reset failed")
	}

	e.metricInc(MetricChallengeCancelled)
	e.emitAudit(ctx, auditEventOTPCancel, true, "", phoneNumber, nil, nil)
	return nil
}
