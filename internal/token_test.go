package internal

import "testing"

func TestChallengeIDRoundTrip(t *testing.T) {
	cid, err := NewChallengeID()
	if err != nil {
		t.Fatalf("NewChallengeID failed: %v", err)
	}

	encoded := cid.String()
	if encoded == "" {
		t.Fatal("expected non-empty encoding")
	}

	parsed, err := ParseChallengeID(encoded)
	if err != nil {
		t.Fatalf("ParseChallengeID failed: %v", err)
	}
	if parsed != cid {
		t.Fatal("round trip mismatch")
	}
}

func TestParseChallengeIDRejectsGarbage(t *testing.T) {
	if _, err := ParseChallengeID("not base64url!!"); err == nil {
		t.Fatal("expected parse failure")
	}
	if _, err := ParseChallengeID("AAAA"); err == nil {
		t.Fatal("expected size failure")
	}
}

func TestNewOTP(t *testing.T) {
	for _, digits := range []int{6, 8, 10} {
		otp, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d) failed: %v", digits, err)
		}
		if len(otp) != digits {
			t.Fatalf("expected %d digits, got %q", digits, otp)
		}
		for _, c := range otp {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit in OTP %q", otp)
			}
		}
	}
}

func TestNewOTPRejectsBadLength(t *testing.T) {
	for _, digits := range []int{0, 5, 11} {
		if _, err := NewOTP(digits); err == nil {
			t.Fatalf("expected error for %d digits", digits)
		}
	}
}

func TestHashSecretBytesDeterministic(t *testing.T) {
	a := HashSecretBytes([]byte("123456"))
	b := HashSecretBytes([]byte("123456"))
	c := HashSecretBytes([]byte("654321"))

	if a != b {
		t.Fatal("same input must hash identically")
	}
	if a == c {
		t.Fatal("different inputs must hash differently")
	}
}
