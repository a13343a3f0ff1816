package phoneauth

import (
	"context"
	"errors"
	"fmt"
)

// Reconcile settles the profile for principalID after verifiedPhone was
// confirmed. An absent profile is created with the default role and the
// verified number. For an existing profile a stored non-empty phone
// number wins over the verified one: the user may have corrected their
// number in the profile while verification was pending, and silently
// overwriting that edit loses data. In both cases the phone number and
// the verified flag land in one atomic document update.
func (e *Engine) Reconcile(ctx context.Context, principalID, verifiedPhone string) (*UserProfile, error) {
	if principalID == "" {
		return nil, ErrUserNotFound
	}

	profile, err := e.profiles.Get(ctx, principalID)
	switch {
	case err == nil:
		phone := profile.PhoneNumber
		if phone == "" {
			phone = verifiedPhone
		}
		updated, err := e.profiles.SetVerifiedPhone(ctx, principalID, phone)
		if err != nil {
			e.emitAudit(ctx, auditEventProfileReconciled, false, principalID, phone, err, nil)
			return nil, fmt.Errorf("reconcile update: %w", err)
		}
		e.metricInc(MetricReconcileUpdated)
		e.emitAudit(ctx, auditEventProfileReconciled, true, principalID, phone, nil, func() map[string]string {
			return map[string]string{
				"outcome":      "updated",
				"stored_wins":  fmt.Sprintf("%t", phone != verifiedPhone),
			}
		})
		return updated, nil

	case errors.Is(err, ErrProfileNotFound):
		created := &UserProfile{
			PrincipalID:   principalID,
			PhoneNumber:   verifiedPhone,
			PhoneVerified: true,
			Role:          e.config.Profile.DefaultRole,
		}
		if err := e.profiles.Create(ctx, created); err != nil {
			e.emitAudit(ctx, auditEventProfileReconciled, false, principalID, verifiedPhone, err, nil)
			return nil, fmt.Errorf("reconcile create: %w", err)
		}
		e.metricInc(MetricReconcileCreated)
		e.emitAudit(ctx, auditEventProfileReconciled, true, principalID, verifiedPhone, nil, func() map[string]string {
			return map[string]string{
				"outcome": "created",
			}
		})
		return created, nil

	default:
		e.emitAudit(ctx, auditEventProfileReconciled, false, principalID, verifiedPhone, err, nil)
		return nil, fmt.Errorf("reconcile load: %w", err)
	}
}
