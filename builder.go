package phoneauth

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. Collaborators are attached with the
// With* methods; Build validates the combination and fails fast on
// anything the engine cannot run without.
type Builder struct {
	config Config
	redis  *redis.Client

	identity    IdentityProvider
	profiles    ProfileStore
	interactive InteractiveChallengeProvider
	native      NativePluginProvider
	dispatch    ServerDispatchProvider

	auditSink AuditSink
	logger    *zerolog.Logger

	built bool
}

// New starts a builder with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the default configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis attaches the redis client backing challenges and cooldowns.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithIdentityProvider attaches the identity backend.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identity = p
	return b
}

// WithProfileStore attaches the profile document store.
func (b *Builder) WithProfileStore(s ProfileStore) *Builder {
	b.profiles = s
	return b
}

// WithInteractiveProvider attaches the browser widget challenge path.
func (b *Builder) WithInteractiveProvider(p InteractiveChallengeProvider) *Builder {
	b.interactive = p
	return b
}

// WithNativeProvider attaches the mobile-shell plugin challenge path.
func (b *Builder) WithNativeProvider(p NativePluginProvider) *Builder {
	b.native = p
	return b
}

// WithServerDispatchProvider attaches the server-side SMS challenge
// path. Also the fallback when the native plugin cannot serve a send.
func (b *Builder) WithServerDispatchProvider(p ServerDispatchProvider) *Builder {
	b.dispatch = p
	return b
}

// WithAuditSink attaches the audit destination. Audit stays off unless
// Config.Audit.Enabled is also set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger attaches a zerolog logger. Without one the engine logs
// nowhere.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithMetricsEnabled toggles counter recording.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the confirm latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the assembly and produces the engine. A builder can
// be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.identity == nil {
		return nil, errors.New("identity provider required")
	}
	if b.profiles == nil {
		return nil, errors.New("profile store required")
	}
	if b.interactive == nil && b.native == nil && b.dispatch == nil {
		return nil, errors.New("at least one challenge provider required")
	}
	if b.native != nil && b.dispatch == nil {
		return nil, errors.New("native provider requires a server dispatch fallback")
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		identity:    b.identity,
		profiles:    b.profiles,
		interactive: b.interactive,
		native:      b.native,
		dispatch:    b.dispatch,
		challenges:  newChallengeStore(b.redis, cfg.OTP.RedisPrefix),
		limiter:     newResendLimiter(b.redis, cfg.OTP),
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
		log:         logger,
	}
	engine.listeners = newSessionListeners(engine)

	b.built = true

	return engine, nil
}
