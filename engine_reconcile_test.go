package phoneauth

import (
	"context"
	"errors"
	"testing"
)

func TestReconcileStoredNumberWins(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	if err := h.profiles.Create(ctx, &UserProfile{
		PrincipalID: "principal-1",
		PhoneNumber: "+911111111111",
		Role:        RoleResident,
	}); err != nil {
		t.Fatalf("profile seed failed: %v", err)
	}

	updated, err := h.engine.Reconcile(ctx, "principal-1", "+922222222222")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if updated.PhoneNumber != "+911111111111" {
		t.Fatalf("stored number must win, got %s", updated.PhoneNumber)
	}
	if !updated.PhoneVerified {
		t.Fatal("expected phone marked verified")
	}
	if got := h.engine.Metrics().Value(MetricReconcileUpdated); got != 1 {
		t.Fatalf("expected 1 reconcile update, got %d", got)
	}
}

func TestReconcileFillsEmptyStoredNumber(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	if err := h.profiles.Create(ctx, &UserProfile{
		PrincipalID: "principal-1",
		Role:        RoleResident,
	}); err != nil {
		t.Fatalf("profile seed failed: %v", err)
	}

	updated, err := h.engine.Reconcile(ctx, "principal-1", "+919876543210")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if updated.PhoneNumber != "+919876543210" {
		t.Fatalf("expected verified number stored, got %s", updated.PhoneNumber)
	}
	if !updated.PhoneVerified {
		t.Fatal("expected phone marked verified")
	}
}

func TestReconcileCreatesMissingProfile(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	created, err := h.engine.Reconcile(ctx, "principal-9", "+919876543210")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if created.Role != RoleResident {
		t.Fatalf("expected default role, got %s", created.Role)
	}
	if !created.PhoneVerified {
		t.Fatal("expected created profile verified")
	}

	stored, err := h.profiles.Get(ctx, "principal-9")
	if err != nil {
		t.Fatalf("profile load failed: %v", err)
	}
	if stored.PhoneNumber != "+919876543210" {
		t.Fatalf("unexpected stored phone %s", stored.PhoneNumber)
	}
	if got := h.engine.Metrics().Value(MetricReconcileCreated); got != 1 {
		t.Fatalf("expected 1 reconcile create, got %d", got)
	}
}

func TestReconcileRequiresPrincipal(t *testing.T) {
	h := newTestHarness(t, nil)

	if _, err := h.engine.Reconcile(context.Background(), "", "+919876543210"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdatePhoneNumberResetsVerified(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	if err := h.profiles.Create(ctx, &UserProfile{
		PrincipalID:   "principal-1",
		PhoneNumber:   "+911111111111",
		PhoneVerified: true,
		Role:          RoleResident,
	}); err != nil {
		t.Fatalf("profile seed failed: %v", err)
	}

	updated, err := h.profiles.UpdatePhoneNumber(ctx, "principal-1", "+922222222222")
	if err != nil {
		t.Fatalf("UpdatePhoneNumber failed: %v", err)
	}
	if updated.PhoneVerified {
		t.Fatal("changing the number must reset the verified flag")
	}
	if updated.PhoneNumber != "+922222222222" {
		t.Fatalf("unexpected phone %s", updated.PhoneNumber)
	}
}
