package phoneauth

import (
	"errors"
	"time"
)

// Config groups every tunable of the engine. Instances are configured
// during initialization and treated as immutable afterwards.
type Config struct {
	OTP     OTPConfig
	Profile ProfileConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls challenge issuance and confirmation.
type OTPConfig struct {
	// DefaultCountryCode is prepended to numbers submitted without a
	// leading "+", e.g. "+91".
	DefaultCountryCode string
	// ResendCooldown is the minimum gap between successful sends to the
	// same phone number.
	ResendCooldown time.Duration
	// CodeTTL bounds how long a parked challenge stays confirmable.
	CodeTTL time.Duration
	// OTPDigits is the server-dispatch code length.
	OTPDigits int
	// MaxAttempts caps wrong-code submissions per challenge.
	MaxAttempts int
	// ProviderTimeout bounds every outbound provider call.
	ProviderTimeout time.Duration
	// RedisPrefix namespaces challenge and cooldown keys.
	RedisPrefix string
	// EnableIPThrottle turns on the per-IP send window.
	EnableIPThrottle bool
	// IPMaxSends and IPWindow shape the per-IP send window.
	IPMaxSends int
	IPWindow   time.Duration
	// WidgetContainerID names the DOM element the interactive web
	// challenge binds to.
	WidgetContainerID string
}

/*
====================================
PROFILE CONFIG
====================================
*/

// ProfileConfig controls profile creation during reconciliation.
type ProfileConfig struct {
	// DefaultRole is assigned when reconciliation creates a profile.
	DefaultRole Role
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		OTP: OTPConfig{
			DefaultCountryCode: "+91",
			ResendCooldown:     60 * time.Second,
			CodeTTL:            10 * time.Minute,
			OTPDigits:          6,
			MaxAttempts:        5,
			ProviderTimeout:    45 * time.Second,
			RedisPrefix:        "apc",
			EnableIPThrottle:   true,
			IPMaxSends:         10,
			IPWindow:           time.Hour,
			WidgetContainerID:  "recaptcha-container",
		},
		Profile: ProfileConfig{
			DefaultRole: RoleResident,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.OTP.DefaultCountryCode) < 2 || c.OTP.DefaultCountryCode[0] != '+' {
		return errors.New("OTP DefaultCountryCode must start with '+' followed by digits")
	}
	for _, r := range c.OTP.DefaultCountryCode[1:] {
		if r < '0' || r > '9' {
			return errors.New("OTP DefaultCountryCode must start with '+' followed by digits")
		}
	}
	if c.OTP.ResendCooldown <= 0 {
		return errors.New("OTP ResendCooldown must be > 0")
	}
	if c.OTP.CodeTTL <= 0 {
		return errors.New("OTP CodeTTL must be > 0")
	}
	if c.OTP.ResendCooldown > c.OTP.CodeTTL {
		return errors.New("OTP ResendCooldown must not exceed CodeTTL")
	}
	if c.OTP.OTPDigits < 6 || c.OTP.OTPDigits > 10 {
		return errors.New("OTP OTPDigits must be between 6 and 10")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	if c.OTP.ProviderTimeout <= 0 {
		return errors.New("OTP ProviderTimeout must be > 0")
	}
	if c.OTP.RedisPrefix == "" {
		return errors.New("OTP RedisPrefix must not be empty")
	}
	if c.OTP.EnableIPThrottle {
		if c.OTP.IPMaxSends <= 0 {
			return errors.New("OTP IPMaxSends must be > 0 when IP throttle is enabled")
		}
		if c.OTP.IPWindow <= 0 {
			return errors.New("OTP IPWindow must be > 0 when IP throttle is enabled")
		}
	}
	if c.OTP.WidgetContainerID == "" {
		return errors.New("OTP WidgetContainerID must not be empty")
	}

	if c.Profile.DefaultRole == "" {
		return errors.New("Profile DefaultRole must not be empty")
	}
	switch c.Profile.DefaultRole {
	case RoleOwner, RoleResident, RoleGuest:
		// valid
	default:
		return errors.New("Profile DefaultRole is not a known role")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
