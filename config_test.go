package phoneauth

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestConfigValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"country code missing plus", func(c *Config) { c.OTP.DefaultCountryCode = "91" }},
		{"country code non-digit", func(c *Config) { c.OTP.DefaultCountryCode = "+9a" }},
		{"zero cooldown", func(c *Config) { c.OTP.ResendCooldown = 0 }},
		{"zero ttl", func(c *Config) { c.OTP.CodeTTL = 0 }},
		{"cooldown exceeds ttl", func(c *Config) {
			c.OTP.ResendCooldown = time.Hour
			c.OTP.CodeTTL = time.Minute
		}},
		{"otp too short", func(c *Config) { c.OTP.OTPDigits = 4 }},
		{"otp too long", func(c *Config) { c.OTP.OTPDigits = 12 }},
		{"zero attempts", func(c *Config) { c.OTP.MaxAttempts = 0 }},
		{"zero provider timeout", func(c *Config) { c.OTP.ProviderTimeout = 0 }},
		{"empty prefix", func(c *Config) { c.OTP.RedisPrefix = "" }},
		{"ip throttle without limit", func(c *Config) { c.OTP.IPMaxSends = 0 }},
		{"ip throttle without window", func(c *Config) { c.OTP.IPWindow = 0 }},
		{"empty widget container", func(c *Config) { c.OTP.WidgetContainerID = "" }},
		{"empty default role", func(c *Config) { c.Profile.DefaultRole = "" }},
		{"unknown default role", func(c *Config) { c.Profile.DefaultRole = "janitor" }},
		{"audit without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestBuilderRequirements(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().Build(); err == nil {
		t.Fatal("expected error without redis")
	}
	if _, err := New().WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without identity provider")
	}
	if _, err := New().
		WithRedis(rdb).
		WithIdentityProvider(&mockIdentity{}).
		WithProfileStore(NewRedisProfileStore(rdb)).
		Build(); err == nil {
		t.Fatal("expected error without any challenge provider")
	}
	if _, err := New().
		WithRedis(rdb).
		WithIdentityProvider(&mockIdentity{}).
		WithProfileStore(NewRedisProfileStore(rdb)).
		WithNativeProvider(&spyNative{available: true}).
		Build(); err == nil {
		t.Fatal("expected error for native provider without dispatch fallback")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)

	builder := New().
		WithRedis(rdb).
		WithIdentityProvider(&mockIdentity{}).
		WithProfileStore(NewRedisProfileStore(rdb)).
		WithServerDispatchProvider(&spyDispatch{session: &scriptedSession{code: "123456"}})

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := builder.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}
