package phoneauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRedisProfileStoreRoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewRedisProfileStore(rdb)
	ctx := context.Background()

	profile := &UserProfile{
		PrincipalID:  "principal-1",
		FullName:     "Asha Rao",
		Email:        "asha@example.com",
		PhoneNumber:  "+919876543210",
		Role:         RoleOwner,
		ReferralCode: "REF42",
		CreatedAt:    time.Now().Truncate(time.Second),
	}
	if err := store.Create(ctx, profile); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "principal-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.FullName != profile.FullName || got.Email != profile.Email {
		t.Fatalf("profile mismatch: %+v", got)
	}
	if got.Role != RoleOwner || got.ReferralCode != "REF42" {
		t.Fatalf("profile mismatch: %+v", got)
	}
	if got.PhoneVerified {
		t.Fatal("fresh profile must not be verified")
	}
}

func TestRedisProfileStoreMissing(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewRedisProfileStore(rdb)
	if _, err := store.Get(context.Background(), "absent"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestRedisProfileStoreSetVerifiedPhone(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewRedisProfileStore(rdb)
	ctx := context.Background()

	if err := store.Create(ctx, &UserProfile{PrincipalID: "principal-1", Role: RoleResident}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := store.SetVerifiedPhone(ctx, "principal-1", "+919876543210")
	if err != nil {
		t.Fatalf("SetVerifiedPhone failed: %v", err)
	}
	if !updated.PhoneVerified || updated.PhoneNumber != "+919876543210" {
		t.Fatalf("expected phone set and verified atomically, got %+v", updated)
	}

	// Both fields changed together in the stored copy as well.
	stored, err := store.Get(ctx, "principal-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !stored.PhoneVerified || stored.PhoneNumber != "+919876543210" {
		t.Fatalf("stored copy mismatch: %+v", stored)
	}
}

func TestRedisProfileStoreUpdatePhoneResetsVerified(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewRedisProfileStore(rdb)
	ctx := context.Background()

	if err := store.Create(ctx, &UserProfile{
		PrincipalID:   "principal-1",
		PhoneNumber:   "+911111111111",
		PhoneVerified: true,
		Role:          RoleResident,
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := store.UpdatePhoneNumber(ctx, "principal-1", "+922222222222")
	if err != nil {
		t.Fatalf("UpdatePhoneNumber failed: %v", err)
	}
	if updated.PhoneVerified {
		t.Fatal("number change must drop the verified flag")
	}
}

func TestRedisProfileStoreUpdateMissingProfile(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewRedisProfileStore(rdb)
	if _, err := store.SetVerifiedPhone(context.Background(), "absent", "+919876543210"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestRedisProfileStoreDelete(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := NewRedisProfileStore(rdb)
	ctx := context.Background()

	if err := store.Create(ctx, &UserProfile{PrincipalID: "principal-1", Role: RoleResident}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Delete(ctx, "principal-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "principal-1"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected profile gone, got %v", err)
	}
}
