package phoneauth

import (
	"fmt"
	"strings"
)

// NormalizePhoneNumber converts raw user input into E.164 form. Input
// without a leading "+" gets the configured default country code
// prepended; separators and punctuation are stripped. The result must
// match +[1-9] followed by up to 14 digits or ErrInvalidPhoneNumber is
// returned.
func NormalizePhoneNumber(raw, defaultCountryCode string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidPhoneNumber)
	}

	hasPlus := strings.HasPrefix(trimmed, "+")
	digits := stripNonDigits(trimmed)
	if digits == "" {
		return "", fmt.Errorf("%w: no digits in %q", ErrInvalidPhoneNumber, raw)
	}

	var normalized string
	if hasPlus {
		normalized = "+" + digits
	} else {
		normalized = defaultCountryCode + digits
	}

	if err := validateE164(normalized); err != nil {
		return "", err
	}

	return normalized, nil
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validateE164(s string) error {
	if len(s) < 3 || s[0] != '+' {
		return fmt.Errorf("%w: %q is not E.164", ErrInvalidPhoneNumber, s)
	}
	body := s[1:]
	if len(body) > 15 {
		return fmt.Errorf("%w: %q exceeds 15 digits", ErrInvalidPhoneNumber, s)
	}
	if body[0] == '0' {
		return fmt.Errorf("%w: %q has a leading zero country code", ErrInvalidPhoneNumber, s)
	}
	for i := 0; i < len(body); i++ {
		if body[i] < '0' || body[i] > '9' {
			return fmt.Errorf("%w: %q contains non-digit characters", ErrInvalidPhoneNumber, s)
		}
	}
	return nil
}
