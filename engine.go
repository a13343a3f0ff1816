package phoneauth

import (
	"context"

	"github.com/rs/zerolog"
)

// Engine is the phone verification and auth core. Build one through
// [New]; all methods are safe for concurrent use afterwards.
type Engine struct {
	config Config

	identity    IdentityProvider
	profiles    ProfileStore
	interactive InteractiveChallengeProvider
	native      NativePluginProvider
	dispatch    ServerDispatchProvider

	challenges *challengeStore
	limiter    *resendLimiter
	flight     flightGuard

	audit   *auditDispatcher
	metrics *Metrics
	log     zerolog.Logger

	listeners *sessionListeners
}

// Close releases engine resources: the audit dispatcher is drained and
// every session watcher is detached.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.listeners != nil {
		e.listeners.close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Metrics exposes the live counter set for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// providerContext bounds one outbound provider call. Interactive and
// native challenges block on user-invisible infrastructure (widget
// attestation, SMS routing), so an unbounded wait turns into a hung UI.
func (e *Engine) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.OTP.ProviderTimeout)
}
