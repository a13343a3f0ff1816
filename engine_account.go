package phoneauth

import (
	"context"
	"errors"
)

// SignUp creates an identity and its profile. The phone number is stored
// unverified; verification happens through [Engine.LinkPhoneNumber] and
// [Engine.VerifyOTP] afterwards.
func (e *Engine) SignUp(ctx context.Context, req SignUpRequest) (*Principal, error) {
	if req.Email == "" || req.Password == "" {
		e.metricInc(MetricSignUpFailure)
		e.emitAudit(ctx, auditEventSignUpFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "missing_credentials",
			}
		})
		return nil, ErrInvalidCredentials
	}

	var normalized string
	if req.PhoneNumber != "" {
		var err error
		normalized, err = NormalizePhoneNumber(req.PhoneNumber, e.config.OTP.DefaultCountryCode)
		if err != nil {
			e.metricInc(MetricSignUpFailure)
			e.emitAudit(ctx, auditEventSignUpFailure, false, "", "", err, nil)
			return nil, err
		}
	}

	principal, err := e.identity.CreateAccount(ctx, req.Email, req.Password)
	if err != nil {
		classified := classifyProviderError(err)
		e.metricInc(MetricSignUpFailure)
		e.emitAudit(ctx, auditEventSignUpFailure, false, "", normalized, classified, nil)
		return nil, classified
	}

	role := req.Role
	if role == "" {
		role = e.config.Profile.DefaultRole
	}

	profile := &UserProfile{
		PrincipalID:   principal.ID,
		FullName:      req.FullName,
		Email:         req.Email,
		PhoneNumber:   normalized,
		PhoneVerified: false,
		Role:          role,
		ReferralCode:  req.ReferralCode,
	}
	if err := e.profiles.Create(ctx, profile); err != nil {
		e.metricInc(MetricSignUpFailure)
		e.emitAudit(ctx, auditEventSignUpFailure, false, principal.ID, normalized, err, func() map[string]string {
			return map[string]string{
				"reason": "profile_create_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricSignUpSuccess)
	e.emitAudit(ctx, auditEventSignUpSuccess, true, principal.ID, normalized, nil, nil)
	return principal, nil
}

// SignIn authenticates with email and password. A principal whose
// profile carries no phone number is signed back out and the call
// returns ErrPhoneRequired: password-only access would bypass the
// mandatory second factor.
func (e *Engine) SignIn(ctx context.Context, email, password string) (*Principal, error) {
	principal, err := e.identity.SignInWithPassword(ctx, email, password)
	if err != nil {
		classified := classifyProviderError(err)
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventSignInFailure, false, "", "", classified, nil)
		return nil, classified
	}

	phone := principal.PhoneNumber
	if phone == "" {
		profile, perr := e.profiles.Get(ctx, principal.ID)
		if perr == nil {
			phone = profile.PhoneNumber
		} else if !errors.Is(perr, ErrProfileNotFound) {
			e.metricInc(MetricSignInFailure)
			e.emitAudit(ctx, auditEventSignInFailure, false, principal.ID, "", perr, nil)
			return nil, perr
		}
	}

	if phone == "" {
		// Never leave a half-authenticated session behind.
		if serr := e.identity.SignOut(ctx); serr != nil {
			e.log.Warn().Str("principal_id", principal.ID).Msg("phoneauth: sign-out after missing phone failed")
		}
		e.metricInc(MetricSignInPhoneRequired)
		e.emitAudit(ctx, auditEventSignInPhoneMissing, false, principal.ID, "", ErrPhoneRequired, nil)
		return nil, ErrPhoneRequired
	}

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditEventSignInSuccess, true, principal.ID, phone, nil, nil)
	return principal, nil
}

// SignInAnonymous starts a guest session. Guests have no profile.
func (e *Engine) SignInAnonymous(ctx context.Context) (*Principal, error) {
	principal, err := e.identity.SignInAnonymous(ctx)
	if err != nil {
		classified := classifyProviderError(err)
		e.emitAudit(ctx, auditEventGuestSession, false, "", "", classified, nil)
		return nil, classified
	}

	e.metricInc(MetricGuestSession)
	e.emitAudit(ctx, auditEventGuestSession, true, principal.ID, "", nil, nil)
	return principal, nil
}

// SignOut ends the current session and discards any in-flight challenge.
func (e *Engine) SignOut(ctx context.Context) error {
	if err := e.Cancel(ctx); err != nil {
		e.log.Warn().Msg("phoneauth: challenge cancel during sign-out failed")
	}

	if err := e.identity.SignOut(ctx); err != nil {
		classified := classifyProviderError(err)
		e.emitAudit(ctx, auditEventSignOut, false, "", "", classified, nil)
		return classified
	}

	e.metricInc(MetricSignOut)
	e.emitAudit(ctx, auditEventSignOut, true, "", "", nil, nil)
	return nil
}

// SendPasswordReset requests a password reset for email. Delivery is the
// identity provider's concern.
func (e *Engine) SendPasswordReset(ctx context.Context, email string) error {
	if err := e.identity.SendPasswordReset(ctx, email); err != nil {
		classified := classifyProviderError(err)
		e.emitAudit(ctx, auditEventPasswordReset, false, "", "", classified, nil)
		return classified
	}

	e.emitAudit(ctx, auditEventPasswordReset, true, "", "", nil, nil)
	return nil
}

// DeleteAccount removes the profile and then the identity for
// principalID. The profile delete is best effort: a failure is logged
// and the identity deletion proceeds, since the identity is the one
// record that must not outlive the request. When the provider demands a
// recent sign-in the principal is signed out and the call returns
// ErrReauthenticationRequired; the caller re-authenticates and retries.
func (e *Engine) DeleteAccount(ctx context.Context, principalID string) error {
	if principalID == "" {
		return ErrUserNotFound
	}

	if err := e.profiles.Delete(ctx, principalID); err != nil && !errors.Is(err, ErrProfileNotFound) {
		e.log.Warn().Str("principal_id", principalID).Msg("phoneauth: profile delete failed, continuing with identity deletion")
	}

	if err := e.identity.DeleteIdentity(ctx, principalID); err != nil {
		classified := classifyProviderError(err)
		if errors.Is(classified, ErrReauthenticationRequired) {
			if serr := e.identity.SignOut(ctx); serr != nil {
				e.log.Warn().Str("principal_id", principalID).Msg("phoneauth: sign-out after reauth demand failed")
			}
			e.metricInc(MetricAccountDeleteReauth)
			e.emitAudit(ctx, auditEventAccountDeleteDenied, false, principalID, "", ErrReauthenticationRequired, nil)
			return ErrReauthenticationRequired
		}
		e.emitAudit(ctx, auditEventAccountDeleteDenied, false, principalID, "", classified, nil)
		return classified
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, principalID, "", nil, nil)
	return nil
}

// SendOTP dispatches a verification challenge to phoneNumber. Thin alias
// over [Engine.Send] for callers driving the verification UI.
func (e *Engine) SendOTP(ctx context.Context, phoneNumber string) (ConfirmationHandle, error) {
	return e.Send(ctx, phoneNumber)
}

// VerifyOTP confirms code for principalID's challenge and reconciles the
// profile on success.
func (e *Engine) VerifyOTP(ctx context.Context, principalID string, handle ConfirmationHandle, code string) (*VerifiedResult, error) {
	result, err := e.confirm(ctx, handle, code, principalID)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventPhoneLinked, true, result.PrincipalID, result.PhoneNumber, nil, nil)
	return result, nil
}

// LinkPhoneNumber starts verification of phoneNumber for an existing
// principal. Identical contract to [Engine.Send]; the principal binds at
// confirmation time through [Engine.VerifyOTP].
func (e *Engine) LinkPhoneNumber(ctx context.Context, principalID, phoneNumber string) (ConfirmationHandle, error) {
	if principalID == "" {
		return ConfirmationHandle{}, ErrUserNotFound
	}
	return e.Send(ctx, phoneNumber)
}
